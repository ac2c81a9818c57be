package batch

import (
	"context"
	"errors"
	"time"

	"storyboard/internal/domain"
)

// StatusNone is reported when a subject has never had a job.
const StatusNone = "none"

// Status is the progress report of the most recent job of a subject.
type Status struct {
	JobID                string     `json:"jobId,omitempty"`
	Status               string     `json:"status"`
	TotalChunks          int        `json:"totalChunks"`
	ProcessedChunks      int        `json:"processedChunks"`
	FailedChunks         int        `json:"failedChunks"`
	CompletionPercentage int        `json:"completionPercentage"`
	IsComplete           bool       `json:"isComplete"`
	Error                string     `json:"error,omitempty"`
	RunAfter             *time.Time `json:"runAfter,omitempty"`
	CreatedAt            *time.Time `json:"createdAt,omitempty"`
	UpdatedAt            *time.Time `json:"updatedAt,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
}

// StatusFromJob builds the report for job.
func StatusFromJob(job *domain.Job) Status {
	created, updated := job.CreatedAt, job.UpdatedAt
	return Status{
		JobID:                job.ID,
		Status:               string(job.Status),
		TotalChunks:          job.Progress.Total,
		ProcessedChunks:      job.Progress.Processed,
		FailedChunks:         job.Progress.Failed,
		CompletionPercentage: job.Progress.Percentage(),
		IsComplete:           job.IsComplete(),
		Error:                job.Error,
		RunAfter:             job.RunAfter,
		CreatedAt:            &created,
		UpdatedAt:            &updated,
		CompletedAt:          job.CompletedAt,
	}
}

// JobStatus reports on the most recent job of subjectID regardless of its state.
// A subject without jobs yields StatusNone, not an error.
func (m *Manager) JobStatus(ctx context.Context, subjectID string) (Status, error) {
	job, err := m.jobs.LatestJobForSubject(ctx, subjectID)
	if errors.Is(err, domain.ErrNotFound) {
		return Status{Status: StatusNone}, nil
	}
	if err != nil {
		return Status{}, persistenceError("load latest job", err)
	}
	return StatusFromJob(job), nil
}
