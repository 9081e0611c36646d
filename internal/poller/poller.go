// Package poller drives in-flight grading jobs to a terminal state by
// polling the grading backend on an adaptive schedule.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slabscan/api/internal/client"
	"github.com/slabscan/api/internal/grading"
	"github.com/slabscan/api/internal/model"
	"github.com/slabscan/api/internal/store"
)

// ErrCycleInProgress is returned by Cycle when another cycle has not finished.
var ErrCycleInProgress = errors.New("poll cycle already in progress")

// FailedToStartMessage is recorded on jobs the backend never picked up.
const FailedToStartMessage = "Grading failed to start. Please try submitting the card again."

// ReportSink receives the report of a completed job. ReportUnavailable is
// called when the report could neither be read inline nor fetched.
type ReportSink interface {
	HandleReport(ctx context.Context, job model.GradingJob, report string)
	ReportUnavailable(ctx context.Context, job model.GradingJob)
}

// Config is the polling policy.
type Config struct {
	// StuckThreshold fails jobs still pending and never processing after this long.
	StuckThreshold time.Duration
	// GracePeriod is how long transient and reported failures are retried.
	GracePeriod time.Duration
	// ExpectedDuration drives elapsed-time progress inference.
	ExpectedDuration time.Duration
}

// DefaultConfig returns the recommended thresholds.
func DefaultConfig() Config {
	return Config{
		StuckThreshold:   120 * time.Second,
		GracePeriod:      300 * time.Second,
		ExpectedDuration: grading.ExpectedDuration,
	}
}

type backoffStep struct {
	below time.Duration
	delay time.Duration
}

var backoff = []backoffStep{
	{30 * time.Second, 3 * time.Second},
	{60 * time.Second, 5 * time.Second},
	{120 * time.Second, 10 * time.Second},
	{300 * time.Second, 15 * time.Second},
}

const maxDelay = 30 * time.Second

// NextDelay maps the oldest in-flight job's elapsed time to the next poll delay.
func NextDelay(elapsed time.Duration) time.Duration {
	for _, step := range backoff {
		if elapsed < step.below {
			return step.delay
		}
	}
	return maxDelay
}

// Option configures a Poller
type Option func(*Poller)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithReportSink hands completion reports to sink.
func WithReportSink(sink ReportSink) Option {
	return func(p *Poller) { p.sink = sink }
}

// WithReportFetcher fetches the report when a completion payload carries none.
func WithReportFetcher(f client.ReportFetcher) Option {
	return func(p *Poller) { p.fetcher = f }
}

// Poller runs a single polling loop over the set of in-flight jobs.
type Poller struct {
	store   *store.JobStore
	checker client.StatusChecker
	sink    ReportSink
	fetcher client.ReportFetcher
	cfg     Config
	now     func() time.Time

	running atomic.Bool
	wake    chan struct{}
}

// New creates a poller and subscribes it to new jobs in s.
func New(s *store.JobStore, checker client.StatusChecker, cfg Config, opts ...Option) *Poller {
	p := &Poller{
		store:   s,
		checker: checker,
		cfg:     cfg,
		now:     time.Now,
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}

	s.Subscribe(func(ev store.Event) {
		if ev.Type == store.EventEnqueued {
			p.Wake()
		}
	})
	return p
}

// Wake reschedules the loop immediately.
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. With nothing in flight it sleeps until woken.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("[Poller] started")
	defer log.Printf("[Poller] stopped")

	for {
		if err := p.Cycle(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
			log.Printf("[Poller] cycle failed: %v", err)
		}

		delay, ok := p.NextPoll()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			}
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// NextPoll returns the delay before the next cycle, or false when nothing is in flight.
func (p *Poller) NextPoll() (time.Duration, bool) {
	jobs := p.store.InFlight()
	if len(jobs) == 0 {
		return 0, false
	}
	return NextDelay(jobs[0].Elapsed(p.now())), true
}

type checkResult struct {
	payload *client.StatusPayload
	err     error
}

// Cycle checks every in-flight job in parallel and applies the results.
// Results for jobs removed or finished meanwhile are discarded.
func (p *Poller) Cycle(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrCycleInProgress
	}
	defer p.running.Store(false)

	jobs := p.store.InFlight()
	if len(jobs) == 0 {
		return nil
	}

	results := make([]checkResult, len(jobs))
	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = p.check(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	for i, job := range jobs {
		current, err := p.store.Get(job.ID)
		if err != nil || current.Status.IsTerminal() {
			continue
		}
		p.apply(ctx, current, results[i])
	}
	return nil
}

func (p *Poller) check(ctx context.Context, job model.GradingJob) (res checkResult) {
	defer func() {
		if r := recover(); r != nil {
			res = checkResult{err: fmt.Errorf("status check panicked: %v", r)}
		}
	}()

	payload, err := p.checker.CheckStatus(ctx, job.CardID, job.Category)
	if err == nil && payload == nil {
		err = errors.New("empty status payload")
	}
	return checkResult{payload: payload, err: err}
}

func (p *Poller) apply(ctx context.Context, job model.GradingJob, res checkResult) {
	elapsed := job.Elapsed(p.now())

	switch {
	case res.err != nil:
		p.failAfterGrace(job, elapsed, fmt.Sprintf("Unable to reach grading service: %v", res.err))
	case res.payload.IsComplete():
		p.complete(ctx, job, res.payload)
	case res.payload.Error != "":
		p.failAfterGrace(job, elapsed, res.payload.Error)
	case p.neverStarted(job, res.payload) && elapsed > p.cfg.StuckThreshold:
		log.Printf("[Poller] job %s (card %s) never started after %s", job.ID, job.CardID, elapsed.Round(time.Second))
		p.fail(job, FailedToStartMessage)
	default:
		p.advance(job, elapsed, res.payload)
	}
}

// neverStarted reports a job the backend has not picked up and for which no
// progress was ever observed.
func (p *Poller) neverStarted(job model.GradingJob, payload *client.StatusPayload) bool {
	if payload.IsProcessing || job.Status == model.JobStatusProcessing {
		return false
	}
	return payload.Progress == nil || *payload.Progress == 0
}

func (p *Poller) complete(ctx context.Context, job model.GradingJob, payload *client.StatusPayload) {
	resultURL := payload.ResultURL
	if resultURL == "" {
		resultURL = "/" + job.Category.PathSegment() + "/" + job.CardID
	}
	status := model.JobStatusCompleted
	stage := model.StageCompleted
	progress := 100

	updated, err := p.store.UpdateStatus(job.ID, model.JobUpdate{
		Status:        &status,
		Stage:         &stage,
		Progress:      &progress,
		ClearEstimate: true,
		ResultURL:     &resultURL,
	})
	if err != nil {
		log.Printf("[Poller] failed to complete job %s: %v", job.ID, err)
		return
	}
	log.Printf("[Poller] job %s (card %s) completed", job.ID, job.CardID)

	if p.sink == nil {
		return
	}
	report := payload.Report
	if report == "" {
		report = p.fetchReport(ctx, updated)
	}
	if report == "" {
		p.sink.ReportUnavailable(ctx, updated)
		return
	}
	p.sink.HandleReport(ctx, updated, report)
}

func (p *Poller) fetchReport(ctx context.Context, job model.GradingJob) string {
	if p.fetcher == nil {
		return ""
	}
	report, err := p.fetcher.GetReport(ctx, job.CardID, job.Category)
	if err != nil {
		log.Printf("[Poller] failed to fetch report for job %s (card %s): %v", job.ID, job.CardID, err)
		return ""
	}
	return report
}

func (p *Poller) failAfterGrace(job model.GradingJob, elapsed time.Duration, message string) {
	if elapsed < p.cfg.GracePeriod {
		log.Printf("[Poller] job %s: %s (retrying, %s elapsed)", job.ID, message, elapsed.Round(time.Second))
		return
	}
	p.fail(job, message)
}

func (p *Poller) fail(job model.GradingJob, message string) {
	status := model.JobStatusError
	if _, err := p.store.UpdateStatus(job.ID, model.JobUpdate{
		Status:        &status,
		ErrorMessage:  &message,
		ClearEstimate: true,
	}); err != nil {
		log.Printf("[Poller] failed to mark job %s as failed: %v", job.ID, err)
		return
	}
	log.Printf("[Poller] job %s failed: %s", job.ID, message)
}

func (p *Poller) advance(job model.GradingJob, elapsed time.Duration, payload *client.StatusPayload) {
	progress := grading.EstimateProgress(elapsed, p.cfg.ExpectedDuration)
	if payload.Progress != nil && *payload.Progress > progress {
		// 100 is reserved for a confirmed completion
		progress = min(*payload.Progress, 99)
	}

	est := grading.EstimateStage(elapsed, progress)
	u := model.JobUpdate{Progress: &progress}
	if est.Stage.Rank() > job.Stage.Rank() {
		u.Stage = &est.Stage
	}
	if est.RemainingSeconds != nil {
		u.EstimatedTimeRemaining = est.RemainingSeconds
	} else {
		u.ClearEstimate = true
	}

	status := model.JobStatusQueued
	if payload.IsProcessing {
		status = model.JobStatusProcessing
	}
	if status.Rank() > job.Status.Rank() {
		u.Status = &status
	}

	if _, err := p.store.UpdateStatus(job.ID, u); err != nil {
		log.Printf("[Poller] failed to update job %s: %v", job.ID, err)
	}
}
