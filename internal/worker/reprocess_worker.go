package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/slabscan/api/internal/client"
	"github.com/slabscan/api/internal/model"
	"github.com/slabscan/api/internal/service"
)

// ReprocessWorker re-fetches reports that failed validation and runs them
// through the pipeline again.
type ReprocessWorker struct {
	reports *service.ReportService
	fetcher client.ReportFetcher
}

// NewReprocessWorker creates a new reprocess worker
func NewReprocessWorker(reports *service.ReportService, fetcher client.ReportFetcher) *ReprocessWorker {
	return &ReprocessWorker{
		reports: reports,
		fetcher: fetcher,
	}
}

// ProcessTask handles report:reprocess tasks. A report that is still invalid
// returns an error so asynq retries it.
func (w *ReprocessWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ReprocessTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.CardID == "" {
		return fmt.Errorf("missing card id: %w", asynq.SkipRetry)
	}

	log.Printf("[Reprocess] starting job %s (card %s)", payload.JobID, payload.CardID)

	raw, err := w.fetcher.GetReport(ctx, payload.CardID, payload.Category)
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("report for card %s not found: %w", payload.CardID, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to fetch report: %w", err)
	}

	job := model.GradingJob{
		ID:       payload.JobID,
		CardID:   payload.CardID,
		Category: payload.Category,
	}
	if _, err := w.reports.Reprocess(ctx, job, raw); err != nil {
		return err
	}

	log.Printf("[Reprocess] job %s (card %s) result cached", payload.JobID, payload.CardID)
	return nil
}
