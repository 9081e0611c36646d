package grading

import (
	"time"

	"github.com/slabscan/api/internal/model"
)

// ExpectedDuration is the typical end-to-end grading time observed from the backend.
const ExpectedDuration = 90 * time.Second

// StageEstimate is the display phase and remaining time for a job.
type StageEstimate struct {
	Stage model.Stage
	// RemainingSeconds is nil when no estimate can be given.
	RemainingSeconds *int
}

// EstimateStage maps elapsed time and progress to a display stage.
func EstimateStage(elapsed time.Duration, progress int) StageEstimate {
	if progress >= 100 {
		return StageEstimate{Stage: model.StageCompleted, RemainingSeconds: intPtr(0)}
	}
	if elapsed < 0 {
		elapsed = 0
	}

	remaining := int((ExpectedDuration - elapsed) / time.Second)

	switch {
	case elapsed < 5*time.Second:
		return StageEstimate{Stage: model.StageUploading, RemainingSeconds: intPtr(85)}
	case elapsed < 10*time.Second:
		return StageEstimate{Stage: model.StageQueued, RemainingSeconds: intPtr(80)}
	case elapsed < 20*time.Second:
		return StageEstimate{Stage: model.StageIdentifying, RemainingSeconds: intPtr(70)}
	case elapsed < 50*time.Second:
		return StageEstimate{Stage: model.StageGrading, RemainingSeconds: intPtr(max(10, remaining))}
	case elapsed < 55*time.Second:
		return StageEstimate{Stage: model.StageCalculating, RemainingSeconds: intPtr(max(5, remaining))}
	case elapsed < ExpectedDuration:
		return StageEstimate{Stage: model.StageSaving, RemainingSeconds: intPtr(max(1, remaining))}
	}
	return StageEstimate{Stage: model.StageExtendedGrading}
}

// EstimateProgress infers a percentage from elapsed time. It stays below 100
// until the backend confirms completion.
func EstimateProgress(elapsed, expected time.Duration) int {
	if elapsed <= 0 || expected <= 0 {
		return 0
	}
	p := int(elapsed * 100 / expected)
	return min(95, p)
}

func intPtr(v int) *int {
	return &v
}
