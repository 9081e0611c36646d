package model

import "time"

// GradingJob tracks one card submission from upload to a graded result.
type GradingJob struct {
	ID                     string     `json:"id"`
	CardID                 string     `json:"cardId"`
	Category               Category   `json:"category"`
	Status                 JobStatus  `json:"status"`
	Stage                  Stage      `json:"stage"`
	UploadedAt             time.Time  `json:"uploadedAt"`
	Progress               int        `json:"progress"`
	EstimatedTimeRemaining *int       `json:"estimatedTimeRemaining"`
	ResultURL              string     `json:"resultUrl,omitempty"`
	ErrorMessage           string     `json:"errorMessage,omitempty"`
	CompletedAt            *time.Time `json:"completedAt,omitempty"`
}

// Elapsed returns the time since submission.
func (j *GradingJob) Elapsed(now time.Time) time.Duration {
	return now.Sub(j.UploadedAt)
}

// JobUpdate is a partial set of fields merged into a job. Nil fields are left untouched.
type JobUpdate struct {
	Status                 *JobStatus
	Stage                  *Stage
	Progress               *int
	EstimatedTimeRemaining *int
	ClearEstimate          bool
	ResultURL              *string
	ErrorMessage           *string
}

// SubmitJobRequest represents the request to start tracking a grading job
type SubmitJobRequest struct {
	CardID   string   `json:"cardId" validate:"required,max=128"`
	Category Category `json:"category" validate:"required,oneof=sports pokemon magic yugioh lorcana other"`
}

// ClearCompletedResponse reports how many finished jobs were pruned
type ClearCompletedResponse struct {
	Removed int `json:"removed"`
}

// JobListResponse wraps the job snapshot returned to UI consumers
type JobListResponse struct {
	Jobs []GradingJob `json:"jobs"`
}

// ReprocessTaskPayload is the asynq payload for report reprocessing
type ReprocessTaskPayload struct {
	JobID    string   `json:"jobId"`
	CardID   string   `json:"cardId"`
	Category Category `json:"category"`
}
