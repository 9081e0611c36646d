package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/slabscan/api/internal/client"
	"github.com/slabscan/api/internal/grading"
	"github.com/slabscan/api/internal/model"
	"github.com/slabscan/api/internal/store"
)

const (
	TaskTypeReprocess = "report:reprocess"
	QueueReprocess    = "reprocess"
)

var (
	ErrResultNotFound = store.ErrResultNotFound
	ErrInvalidReport  = errors.New("report failed validation")
)

// ResultCache stores trusted results and retains untrusted raw reports.
type ResultCache interface {
	SaveResult(ctx context.Context, cardID string, result *model.ParsedGradingResult) error
	GetResult(ctx context.Context, cardID string) (*model.ParsedGradingResult, error)
	SaveRaw(ctx context.Context, cardID, raw string) error
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ReportService runs raw grading reports through parse and validation and
// decides whether the result can be trusted.
type ReportService struct {
	cache    ResultCache
	enqueuer TaskEnqueuer
	archiver client.ReportArchiver
}

// NewReportService creates the service. archiver may be nil.
func NewReportService(cache ResultCache, enqueuer TaskEnqueuer, archiver client.ReportArchiver) *ReportService {
	return &ReportService{
		cache:    cache,
		enqueuer: enqueuer,
		archiver: archiver,
	}
}

// Parse runs the pipeline without side effects
func (s *ReportService) Parse(raw string) *model.ParseReportResponse {
	result, warnings := grading.ParseReport(raw)
	return &model.ParseReportResponse{
		Result:     result,
		Validation: grading.ValidateResult(result),
		Warnings:   warnings,
	}
}

// Process parses and validates a delivered report. A valid result is cached and
// archived; an invalid one is retained raw and queued for reprocessing.
func (s *ReportService) Process(ctx context.Context, job model.GradingJob, raw string) (*model.ParseReportResponse, error) {
	resp := s.evaluate(job, raw)
	if !resp.Validation.Valid {
		if err := s.cache.SaveRaw(ctx, job.CardID, raw); err != nil {
			log.Printf("[Report] failed to retain raw report for card %s: %v", job.CardID, err)
		}
		if err := s.enqueueReprocess(job); err != nil {
			log.Printf("[Report] failed to queue reprocessing for card %s: %v", job.CardID, err)
		}
		return resp, fmt.Errorf("%w: %s", ErrInvalidReport, strings.Join(resp.Validation.Errors, "; "))
	}

	if err := s.persist(ctx, job, raw, resp.Result); err != nil {
		return resp, err
	}
	return resp, nil
}

// Reprocess re-runs the pipeline for a report fetched again from the backend.
// It only caches; an invalid report is returned as an error so the task retries.
func (s *ReportService) Reprocess(ctx context.Context, job model.GradingJob, raw string) (*model.ParseReportResponse, error) {
	resp := s.evaluate(job, raw)
	if !resp.Validation.Valid {
		return resp, fmt.Errorf("%w: %s", ErrInvalidReport, strings.Join(resp.Validation.Errors, "; "))
	}
	if err := s.persist(ctx, job, raw, resp.Result); err != nil {
		return resp, err
	}
	return resp, nil
}

// HandleReport lets the poller hand over reports delivered with completion.
func (s *ReportService) HandleReport(ctx context.Context, job model.GradingJob, raw string) {
	if _, err := s.Process(ctx, job, raw); err != nil {
		log.Printf("[Report] job %s (card %s): %v", job.ID, job.CardID, err)
	}
}

// ReportUnavailable queues a fetch for a completed job whose report could not
// be read at completion time.
func (s *ReportService) ReportUnavailable(_ context.Context, job model.GradingJob) {
	if err := s.enqueueReprocess(job); err != nil {
		log.Printf("[Report] failed to queue report fetch for card %s: %v", job.CardID, err)
		return
	}
	log.Printf("[Report] job %s (card %s) completed without a report, fetch queued", job.ID, job.CardID)
}

// GetResult returns the cached result for a card
func (s *ReportService) GetResult(ctx context.Context, cardID string) (*model.ParsedGradingResult, error) {
	return s.cache.GetResult(ctx, cardID)
}

func (s *ReportService) evaluate(job model.GradingJob, raw string) *model.ParseReportResponse {
	resp := s.Parse(raw)
	for _, w := range resp.Warnings {
		log.Printf("[Report] card %s: %s", job.CardID, w)
	}
	for _, w := range resp.Validation.Warnings {
		log.Printf("[Report] card %s: %s", job.CardID, w)
	}
	return resp
}

func (s *ReportService) persist(ctx context.Context, job model.GradingJob, raw string, result *model.ParsedGradingResult) error {
	if err := s.cache.SaveResult(ctx, job.CardID, result); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}

	if s.archiver != nil {
		url, err := s.archiver.ArchiveReport(ctx, job.CardID, job.ID, raw)
		if err != nil {
			log.Printf("[Report] failed to archive report for card %s: %v", job.CardID, err)
		} else {
			log.Printf("[Report] archived report for card %s to %s", job.CardID, url)
		}
	}
	return nil
}

func (s *ReportService) enqueueReprocess(job model.GradingJob) error {
	if s.enqueuer == nil {
		return errors.New("no task queue configured")
	}
	task, err := NewReprocessTask(&model.ReprocessTaskPayload{
		JobID:    job.ID,
		CardID:   job.CardID,
		Category: job.Category,
	})
	if err != nil {
		return err
	}

	_, err = s.enqueuer.Enqueue(task,
		asynq.Queue(QueueReprocess),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// NewReprocessTask builds the asynq task for a report that needs another pass
func NewReprocessTask(payload *model.ReprocessTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeReprocess, data), nil
}
