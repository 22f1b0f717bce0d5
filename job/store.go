package job

import (
	"context"
	"time"
)

// ListOpts controls which jobs ListJobs returns. Results are ordered by
// SubmittedAt ascending.
type ListOpts struct {
	// Statuses filters by status. Empty matches every status.
	Statuses []Status
	// DefinitionID filters by definition. Empty matches all.
	DefinitionID string
	// Name filters by trigger name. Empty matches all.
	Name string
	// SubmittedBefore only returns jobs submitted before this instant.
	SubmittedBefore time.Time
	// UpdatedBefore only returns jobs whose last transition happened
	// before this instant.
	UpdatedBefore time.Time
	// Limit caps the number of returned jobs. Zero means no limit.
	Limit int
}

// CountOpts controls which jobs CountJobs counts.
type CountOpts struct {
	Status       Status
	DefinitionID string
}

// Store defines the persistence contract for jobs. Transitions out of
// COMPLETED are refused with ErrJobCompleted.
type Store interface {
	// CreateJob persists a new job.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// StartJob moves the job to PROCESSING. When retry is set it also
	// increments Retried and stamps LastRetriedAt. Returns the updated job.
	StartJob(ctx context.Context, jobID string, retry bool, at time.Time) (*Job, error)

	// CompleteJob moves the job to COMPLETED and stamps CompletedAt.
	CompleteJob(ctx context.Context, jobID string, at time.Time) error

	// FailJob moves the job to FAILED and stamps CompletedAt.
	FailJob(ctx context.Context, jobID string, at time.Time) error

	// RequeueJob moves the job back to PENDING ahead of a retry.
	RequeueJob(ctx context.Context, jobID string, at time.Time) error

	// ResetJob atomically returns the job to PENDING with CompletedAt
	// cleared and LastRetriedAt set, and resets its PENDING and FAILED
	// tasks to PENDING with Retried zeroed. COMPLETED tasks are kept.
	ResetJob(ctx context.Context, jobID string, at time.Time) error

	// ListJobs returns jobs matching the options.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs counts jobs matching the options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
