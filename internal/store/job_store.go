// Package store holds the in-memory registry of grading jobs and the
// Redis-backed persistence around it.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/slabscan/api/internal/model"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobExists         = errors.New("job already exists")
	ErrTerminal          = errors.New("job already finished")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// EventType identifies the mutation that produced an Event.
type EventType string

const (
	EventEnqueued EventType = "enqueued"
	EventUpdated  EventType = "updated"
	EventRemoved  EventType = "removed"
)

// Event is delivered to listeners after every mutation, with a snapshot of the job.
type Event struct {
	Type EventType
	Job  model.GradingJob
}

// Listener receives store events. Listeners may read from the store but must
// not mutate it.
type Listener func(Event)

// Persister mirrors job snapshots to durable storage.
type Persister interface {
	Save(ctx context.Context, job *model.GradingJob) error
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]model.GradingJob, error)
}

// Option configures a JobStore
type Option func(*JobStore)

// WithPersister mirrors every mutation through p.
func WithPersister(p Persister) Option {
	return func(s *JobStore) { s.persister = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *JobStore) { s.now = now }
}

// JobStore is the single owner of GradingJob records. All mutation goes
// through Enqueue, UpdateStatus, Remove and ClearCompleted.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.GradingJob

	// Each mutation takes a ticket under mu and delivers its events once
	// every earlier ticket has been delivered.
	nextTicket uint64
	emitMu     sync.Mutex
	emitCond   *sync.Cond
	delivered  uint64
	listeners  []Listener

	persister Persister
	now       func() time.Time
}

// NewJobStore creates an empty store
func NewJobStore(opts ...Option) *JobStore {
	s := &JobStore{
		jobs: make(map[string]*model.GradingJob),
		now:  time.Now,
	}
	s.emitCond = sync.NewCond(&s.emitMu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener for all subsequent events.
func (s *JobStore) Subscribe(l Listener) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Enqueue adds a new job. It fails if the id is already present.
func (s *JobStore) Enqueue(job model.GradingJob) (model.GradingJob, error) {
	if job.ID == "" {
		return model.GradingJob{}, fmt.Errorf("job id is required")
	}

	s.mu.Lock()
	if _, exists := s.jobs[job.ID]; exists {
		s.mu.Unlock()
		return model.GradingJob{}, ErrJobExists
	}

	if job.Status == "" {
		job.Status = model.JobStatusUploading
	}
	if job.Status.IsTerminal() {
		s.mu.Unlock()
		return model.GradingJob{}, fmt.Errorf("%w: cannot enqueue a %s job", ErrInvalidTransition, job.Status)
	}
	if job.Stage == "" {
		job.Stage = model.StageUploading
	}
	if job.UploadedAt.IsZero() {
		job.UploadedAt = s.now()
	}
	job.Progress = 0
	job.CompletedAt = nil
	job.ResultURL = ""
	job.ErrorMessage = ""

	stored := job
	s.jobs[job.ID] = &stored
	s.emitLocked(Event{Type: EventEnqueued, Job: stored})
	return stored, nil
}

// UpdateStatus shallow-merges u into the job. Terminal jobs reject every write,
// status never moves backwards and progress never decreases.
func (s *JobStore) UpdateStatus(id string, u model.JobUpdate) (model.GradingJob, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return model.GradingJob{}, ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		s.mu.Unlock()
		return model.GradingJob{}, ErrTerminal
	}

	next := *job
	if u.Status != nil && *u.Status != next.Status {
		if err := checkTransition(next.Status, *u.Status); err != nil {
			s.mu.Unlock()
			return model.GradingJob{}, err
		}
		next.Status = *u.Status
		if next.Status == model.JobStatusCompleted {
			now := s.now()
			next.CompletedAt = &now
		}
	}
	if u.Stage != nil {
		next.Stage = *u.Stage
	}
	if u.Progress != nil {
		p := min(max(*u.Progress, 0), 100)
		if p > next.Progress {
			next.Progress = p
		}
	}
	if u.ClearEstimate {
		next.EstimatedTimeRemaining = nil
	} else if u.EstimatedTimeRemaining != nil {
		eta := *u.EstimatedTimeRemaining
		next.EstimatedTimeRemaining = &eta
	}
	if u.ResultURL != nil {
		next.ResultURL = *u.ResultURL
	}
	if u.ErrorMessage != nil {
		next.ErrorMessage = *u.ErrorMessage
	}

	*job = next
	s.emitLocked(Event{Type: EventUpdated, Job: next})
	return next, nil
}

func checkTransition(from, to model.JobStatus) error {
	if to.Rank() < 0 {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if to == model.JobStatusError || to.Rank() > from.Rank() {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Remove deletes a job regardless of its status.
func (s *JobStore) Remove(id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	s.emitLocked(Event{Type: EventRemoved, Job: *job})
	return nil
}

// ClearCompleted removes completed jobs whose completion is older than retention.
func (s *JobStore) ClearCompleted(retention time.Duration) int {
	s.mu.Lock()
	now := s.now()
	var removed []model.GradingJob
	for id, job := range s.jobs {
		if job.Status != model.JobStatusCompleted || job.CompletedAt == nil {
			continue
		}
		if now.Sub(*job.CompletedAt) >= retention {
			removed = append(removed, *job)
			delete(s.jobs, id)
		}
	}
	sortJobs(removed)

	events := make([]Event, 0, len(removed))
	for _, job := range removed {
		events = append(events, Event{Type: EventRemoved, Job: job})
	}
	s.emitLocked(events...)
	return len(removed)
}

// Get returns a snapshot of one job.
func (s *JobStore) Get(id string) (model.GradingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return model.GradingJob{}, ErrJobNotFound
	}
	return *job, nil
}

// List returns a snapshot of all jobs, oldest submission first.
func (s *JobStore) List() []model.GradingJob {
	s.mu.RLock()
	jobs := make([]model.GradingJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	s.mu.RUnlock()

	sortJobs(jobs)
	return jobs
}

// InFlight returns the jobs that still need status polling, oldest first.
func (s *JobStore) InFlight() []model.GradingJob {
	s.mu.RLock()
	var jobs []model.GradingJob
	for _, job := range s.jobs {
		if job.Status.IsInFlight() {
			jobs = append(jobs, *job)
		}
	}
	s.mu.RUnlock()

	sortJobs(jobs)
	return jobs
}

// Restore loads persisted jobs that are not already present.
func (s *JobStore) Restore(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}
	jobs, err := s.persister.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load jobs: %w", err)
	}

	s.mu.Lock()
	var restored []Event
	for _, job := range jobs {
		if _, exists := s.jobs[job.ID]; exists || job.ID == "" {
			continue
		}
		stored := job
		s.jobs[job.ID] = &stored
		restored = append(restored, Event{Type: EventEnqueued, Job: stored})
	}
	s.emitLocked(restored...)
	return len(restored), nil
}

// emitLocked must be called with s.mu held. It releases s.mu before waiting
// for its turn, so listeners can read from the store.
func (s *JobStore) emitLocked(events ...Event) {
	ticket := s.nextTicket
	s.nextTicket++
	s.mu.Unlock()

	s.emitMu.Lock()
	for s.delivered != ticket {
		s.emitCond.Wait()
	}
	listeners := s.listeners
	s.emitMu.Unlock()

	defer func() {
		s.emitMu.Lock()
		s.delivered++
		s.emitCond.Broadcast()
		s.emitMu.Unlock()
	}()

	for _, ev := range events {
		s.persist(ev)
		for _, l := range listeners {
			l(ev)
		}
	}
}

func (s *JobStore) persist(ev Event) {
	if s.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var err error
	if ev.Type == EventRemoved {
		err = s.persister.Delete(ctx, ev.Job.ID)
	} else {
		job := ev.Job
		err = s.persister.Save(ctx, &job)
	}
	if err != nil {
		log.Printf("[JobStore] failed to persist %s event for job %s: %v", ev.Type, ev.Job.ID, err)
	}
}

func sortJobs(jobs []model.GradingJob) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].UploadedAt.Equal(jobs[j].UploadedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].UploadedAt.Before(jobs[j].UploadedAt)
	})
}
