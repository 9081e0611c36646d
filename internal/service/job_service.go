package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/slabscan/api/internal/model"
	"github.com/slabscan/api/internal/store"
)

// JobService is the UI-facing surface over the job store.
type JobService struct {
	store     *store.JobStore
	retention time.Duration
}

func NewJobService(s *store.JobStore, retention time.Duration) *JobService {
	return &JobService{
		store:     s,
		retention: retention,
	}
}

// Submit starts tracking a newly uploaded card under a fresh job id
func (s *JobService) Submit(ctx context.Context, req *model.SubmitJobRequest) (*model.GradingJob, error) {
	job, err := s.store.Enqueue(model.GradingJob{
		ID:       uuid.New().String(),
		CardID:   req.CardID,
		Category: req.Category,
		Status:   model.JobStatusUploading,
		Stage:    model.StageUploading,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return &job, nil
}

// List returns every tracked job, oldest first
func (s *JobService) List(ctx context.Context) []model.GradingJob {
	return s.store.List()
}

// Get returns one job
func (s *JobService) Get(ctx context.Context, jobID string) (*model.GradingJob, error) {
	job, err := s.store.Get(jobID)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Dismiss removes a job; an outstanding status check for it is discarded
func (s *JobService) Dismiss(ctx context.Context, jobID string) error {
	return s.store.Remove(jobID)
}

// ClearCompleted prunes completed jobs past the retention window
func (s *JobService) ClearCompleted(ctx context.Context) int {
	return s.store.ClearCompleted(s.retention)
}
