package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/slabscan/api/internal/model"
	"github.com/slabscan/api/internal/store"
)

type countingSink struct {
	mu    sync.Mutex
	calls []Notification
}

func (s *countingSink) Notify(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, n)
	return nil
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func completedJob(id string) model.GradingJob {
	return model.GradingJob{
		ID:       id,
		CardID:   "card-" + id,
		Category: model.CategoryPokemon,
		Status:   model.JobStatusCompleted,
	}
}

func TestNotifyCompleted_ExactlyOnce(t *testing.T) {
	sink := &countingSink{}
	n := New("/icon.png", sink)

	if !n.NotifyCompleted(completedJob("j")) {
		t.Fatal("first completion should notify")
	}
	if n.NotifyCompleted(completedJob("j")) {
		t.Fatal("second completion must not notify")
	}

	if sink.count() != 1 {
		t.Fatalf("sink calls = %d, want 1", sink.count())
	}
	got := sink.calls[0]
	if got.Message != "Your Pokémon card has been graded" || got.Icon != "/icon.png" || got.JobID != "j" {
		t.Errorf("unexpected notification: %+v", got)
	}
}

func TestNotifyCompleted_Concurrent(t *testing.T) {
	sink := &countingSink{}
	n := New("", sink)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.NotifyCompleted(completedJob("j"))
		}()
	}
	wg.Wait()

	if sink.count() != 1 {
		t.Errorf("sink calls = %d, want 1", sink.count())
	}
}

func TestNotifyCompleted_SinkErrorIgnored(t *testing.T) {
	failing := SinkFunc(func(context.Context, Notification) error {
		return errors.New("permission denied")
	})
	sink := &countingSink{}
	n := New("", failing, sink)

	if !n.NotifyCompleted(completedJob("j")) {
		t.Fatal("expected notification")
	}
	if sink.count() != 1 {
		t.Errorf("later sinks must still run after a failure, calls = %d", sink.count())
	}
}

func TestAttach_StoreEvents(t *testing.T) {
	s := store.NewJobStore()
	sink := &countingSink{}
	n := New("", sink)
	n.Attach(s)

	s.Enqueue(model.GradingJob{ID: "j", CardID: "c", Category: model.CategoryMagic})
	processing := model.JobStatusProcessing
	s.UpdateStatus("j", model.JobUpdate{Status: &processing})
	if sink.count() != 0 {
		t.Fatal("non-completion events must not notify")
	}

	completed := model.JobStatusCompleted
	if _, err := s.UpdateStatus("j", model.JobUpdate{Status: &completed}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	// a second completion signal is rejected by the store and the set
	s.UpdateStatus("j", model.JobUpdate{Status: &completed})
	n.HandleEvent(store.Event{Type: store.EventUpdated, Job: completedJob("j")})

	if sink.count() != 1 {
		t.Fatalf("sink calls = %d, want 1", sink.count())
	}

	// dismissing and re-adding under the same id does not re-notify
	s.Remove("j")
	s.Enqueue(model.GradingJob{ID: "j", CardID: "c", Category: model.CategoryMagic})
	s.UpdateStatus("j", model.JobUpdate{Status: &completed})
	if sink.count() != 1 {
		t.Errorf("re-added job notified again, calls = %d", sink.count())
	}

	if sink.calls[0].Message != "Your Magic: The Gathering card has been graded" {
		t.Errorf("message = %q", sink.calls[0].Message)
	}
}
