package worker

import (
	"context"
	"log"
	"time"
)

// CompletedPruner is satisfied by *service.JobService.
type CompletedPruner interface {
	ClearCompleted(ctx context.Context) int
}

// Janitor periodically prunes completed jobs past their retention window.
type Janitor struct {
	pruner   CompletedPruner
	interval time.Duration
}

func NewJanitor(pruner CompletedPruner, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Janitor{
		pruner:   pruner,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := j.pruner.ClearCompleted(ctx); n > 0 {
				log.Printf("[Janitor] cleared %d completed jobs", n)
			}
		}
	}
}
