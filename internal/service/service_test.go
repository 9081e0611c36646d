package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/slabscan/api/internal/model"
	"github.com/slabscan/api/internal/store"
)

const validReport = `**Final Grade:** 9.2
**Grade Uncertainty:** ±0.25

### Card Information
- Card Name: Charizard
- Set Name: Base Set
- Year: 1999
`

const invalidReport = `The card looks sharp but no numeric grade was produced.`

type memCache struct {
	mu      sync.Mutex
	results map[string]*model.ParsedGradingResult
	raw     map[string]string
}

func newMemCache() *memCache {
	return &memCache{results: map[string]*model.ParsedGradingResult{}, raw: map[string]string{}}
}

func (c *memCache) SaveResult(_ context.Context, cardID string, r *model.ParsedGradingResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[cardID] = r
	return nil
}

func (c *memCache) GetResult(_ context.Context, cardID string) (*model.ParsedGradingResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[cardID]
	if !ok {
		return nil, ErrResultNotFound
	}
	return r, nil
}

func (c *memCache) SaveRaw(_ context.Context, cardID, raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw[cardID] = raw
	return nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (e *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueReprocess}, nil
}

type fakeArchiver struct {
	keys []string
	err  error
}

func (a *fakeArchiver) ArchiveReport(_ context.Context, cardID, jobID, _ string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, cardID+"/"+jobID)
	return "https://cdn.example.com/reports/" + cardID + "/" + jobID + ".txt", nil
}

func testJob() model.GradingJob {
	return model.GradingJob{ID: "job-1", CardID: "card-1", Category: model.CategoryPokemon}
}

func TestReportService_ProcessValid(t *testing.T) {
	cache := newMemCache()
	enq := &fakeEnqueuer{}
	arch := &fakeArchiver{}
	svc := NewReportService(cache, enq, arch)

	resp, err := svc.Process(context.Background(), testJob(), validReport)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !resp.Validation.Valid {
		t.Fatalf("expected valid result, errors: %v", resp.Validation.Errors)
	}
	if resp.Result.DecimalGrade == nil || *resp.Result.DecimalGrade != 9.0 {
		t.Errorf("decimal grade = %v, want 9.0", resp.Result.DecimalGrade)
	}

	cached, err := svc.GetResult(context.Background(), "card-1")
	if err != nil {
		t.Fatalf("result not cached: %v", err)
	}
	if cached.CardInfo.CardName == nil || *cached.CardInfo.CardName != "Charizard" {
		t.Errorf("card name = %v", cached.CardInfo.CardName)
	}
	if len(arch.keys) != 1 || arch.keys[0] != "card-1/job-1" {
		t.Errorf("archive keys = %v", arch.keys)
	}
	if len(enq.tasks) != 0 {
		t.Error("valid report must not be queued for reprocessing")
	}
}

func TestReportService_ProcessInvalid(t *testing.T) {
	cache := newMemCache()
	enq := &fakeEnqueuer{}
	arch := &fakeArchiver{}
	svc := NewReportService(cache, enq, arch)

	_, err := svc.Process(context.Background(), testJob(), invalidReport)
	if !errors.Is(err, ErrInvalidReport) {
		t.Fatalf("expected ErrInvalidReport, got %v", err)
	}

	if _, err := svc.GetResult(context.Background(), "card-1"); !errors.Is(err, ErrResultNotFound) {
		t.Error("invalid result must not be cached")
	}
	if cache.raw["card-1"] != invalidReport {
		t.Error("raw report should be retained")
	}
	if len(arch.keys) != 0 {
		t.Error("invalid report must not be archived")
	}
	if len(enq.tasks) != 1 || enq.tasks[0].Type() != TaskTypeReprocess {
		t.Fatalf("expected one reprocess task, got %d", len(enq.tasks))
	}

	var payload model.ReprocessTaskPayload
	if err := json.Unmarshal(enq.tasks[0].Payload(), &payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if payload.JobID != "job-1" || payload.CardID != "card-1" || payload.Category != model.CategoryPokemon {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestReportService_ReportUnavailableQueuesFetch(t *testing.T) {
	cache := newMemCache()
	enq := &fakeEnqueuer{}
	svc := NewReportService(cache, enq, nil)

	svc.ReportUnavailable(context.Background(), testJob())

	if len(enq.tasks) != 1 || enq.tasks[0].Type() != TaskTypeReprocess {
		t.Fatalf("expected one reprocess task, got %d", len(enq.tasks))
	}
	var payload model.ReprocessTaskPayload
	if err := json.Unmarshal(enq.tasks[0].Payload(), &payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if payload.CardID != "card-1" || payload.JobID != "job-1" {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if _, ok := cache.raw["card-1"]; ok {
		t.Error("nothing to retain when no report was read")
	}
}

func TestReportService_NotGradableIsValid(t *testing.T) {
	svc := NewReportService(newMemCache(), &fakeEnqueuer{}, nil)

	resp, err := svc.Process(context.Background(), testJob(), "**Grade:** N/A - card is trimmed\n**Decimal Grade:** 7.5")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if resp.Result.DecimalGrade != nil || resp.Result.GradeUncertainty != model.UncertaintyNA {
		t.Errorf("unexpected ungradeable result: %+v", resp.Result)
	}
}

func TestReportService_ArchiveFailureIgnored(t *testing.T) {
	cache := newMemCache()
	svc := NewReportService(cache, &fakeEnqueuer{}, &fakeArchiver{err: errors.New("r2 down")})

	if _, err := svc.Process(context.Background(), testJob(), validReport); err != nil {
		t.Fatalf("archive failure must not fail processing: %v", err)
	}
	if _, ok := cache.results["card-1"]; !ok {
		t.Error("result should still be cached")
	}
}

func TestReportService_Reprocess(t *testing.T) {
	enq := &fakeEnqueuer{}
	svc := NewReportService(newMemCache(), enq, nil)

	if _, err := svc.Reprocess(context.Background(), testJob(), invalidReport); !errors.Is(err, ErrInvalidReport) {
		t.Fatalf("expected ErrInvalidReport, got %v", err)
	}
	if len(enq.tasks) != 0 {
		t.Error("reprocess must not enqueue another task")
	}

	if _, err := svc.Reprocess(context.Background(), testJob(), validReport); err != nil {
		t.Fatalf("Reprocess failed: %v", err)
	}
	if _, err := svc.GetResult(context.Background(), "card-1"); err != nil {
		t.Errorf("result not cached: %v", err)
	}
}

func TestReportService_ParseHasNoSideEffects(t *testing.T) {
	cache := newMemCache()
	enq := &fakeEnqueuer{}
	svc := NewReportService(cache, enq, nil)

	resp := svc.Parse(invalidReport)
	if resp.Validation.Valid {
		t.Error("expected invalid validation")
	}
	if len(cache.raw) != 0 || len(enq.tasks) != 0 {
		t.Error("Parse must not touch cache or queue")
	}
}

func TestJobService_Lifecycle(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := store.NewJobStore(store.WithClock(func() time.Time { return now }))
	svc := NewJobService(s, 5*time.Minute)
	ctx := context.Background()

	first, err := svc.Submit(ctx, &model.SubmitJobRequest{CardID: "card", Category: model.CategorySports})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	second, err := svc.Submit(ctx, &model.SubmitJobRequest{CardID: "card", Category: model.CategorySports})
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if first.ID == second.ID {
		t.Error("resubmission must get a new job id")
	}
	if first.Status != model.JobStatusUploading || !first.UploadedAt.Equal(now) {
		t.Errorf("unexpected submitted job: %+v", first)
	}

	if got := svc.List(ctx); len(got) != 2 {
		t.Fatalf("list len = %d, want 2", len(got))
	}

	if err := svc.Dismiss(ctx, first.ID); err != nil {
		t.Fatalf("Dismiss failed: %v", err)
	}
	if _, err := svc.Get(ctx, first.ID); !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if err := svc.Dismiss(ctx, first.ID); !errors.Is(err, store.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound on second dismiss, got %v", err)
	}

	completed := model.JobStatusCompleted
	s.UpdateStatus(second.ID, model.JobUpdate{Status: &completed})
	if n := svc.ClearCompleted(ctx); n != 0 {
		t.Errorf("cleared %d jobs inside retention window", n)
	}
	now = now.Add(6 * time.Minute)
	if n := svc.ClearCompleted(ctx); n != 1 {
		t.Errorf("cleared %d jobs, want 1", n)
	}
}
