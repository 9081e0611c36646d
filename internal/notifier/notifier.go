// Package notifier sends a one-time notification when a grading job completes.
package notifier

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/slabscan/api/internal/model"
	"github.com/slabscan/api/internal/store"
)

// Notification is the fire-and-forget message handed to sinks.
type Notification struct {
	JobID    string
	CardID   string
	Category model.Category
	Message  string
	Icon     string
}

// Sink delivers notifications. Errors are logged and otherwise ignored.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// CompletionNotifier fires at most once per job id. The notified set is kept
// apart from the store so dismissing a job does not reset it.
type CompletionNotifier struct {
	mu       sync.Mutex
	notified map[string]struct{}

	sinks   []Sink
	icon    string
	timeout time.Duration
}

// New creates a notifier delivering to sinks.
func New(icon string, sinks ...Sink) *CompletionNotifier {
	return &CompletionNotifier{
		notified: make(map[string]struct{}),
		sinks:    sinks,
		icon:     icon,
		timeout:  5 * time.Second,
	}
}

// Attach subscribes the notifier to completion events from s.
func (n *CompletionNotifier) Attach(s *store.JobStore) {
	s.Subscribe(n.HandleEvent)
}

// HandleEvent is a store listener.
func (n *CompletionNotifier) HandleEvent(ev store.Event) {
	if ev.Type != store.EventUpdated || ev.Job.Status != model.JobStatusCompleted {
		return
	}
	n.NotifyCompleted(ev.Job)
}

// NotifyCompleted sends the completion notification unless job.ID was already
// notified. It reports whether sinks were invoked.
func (n *CompletionNotifier) NotifyCompleted(job model.GradingJob) bool {
	n.mu.Lock()
	if _, done := n.notified[job.ID]; done {
		n.mu.Unlock()
		return false
	}
	n.notified[job.ID] = struct{}{}
	n.mu.Unlock()

	msg := Notification{
		JobID:    job.ID,
		CardID:   job.CardID,
		Category: job.Category,
		Message:  Message(job.Category),
		Icon:     n.icon,
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	for _, sink := range n.sinks {
		if err := sink.Notify(ctx, msg); err != nil {
			log.Printf("[Notify] failed to notify job %s: %v", job.ID, err)
		}
	}
	return true
}

// Notified reports whether job id has already been notified.
func (n *CompletionNotifier) Notified(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.notified[id]
	return ok
}

// Message is the user-facing completion text for a category.
func Message(category model.Category) string {
	return fmt.Sprintf("Your %s card has been graded", category.DisplayName())
}
