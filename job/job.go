package job

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is waiting to be executed.
	StatusPending Status = "PENDING"
	// StatusProcessing means a handler is currently running the job.
	StatusProcessing Status = "PROCESSING"
	// StatusCompleted means the job finished successfully. Terminal.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed means the job gave up and will not be retried.
	StatusFailed Status = "FAILED"
)

// DefaultMaxRetries is the retry budget of a newly created job.
const DefaultMaxRetries = 3

// Job is one persisted execution of a job definition.
type Job struct {
	// ID is the execution idempotency key.
	ID string `json:"id"`
	// DefinitionID is the ID of the definition this job was created from.
	DefinitionID string `json:"jobId"`
	// Name is the trigger name, copied for filtering.
	Name    string          `json:"name"`
	Version int             `json:"version"`
	Payload json.RawMessage `json:"payload"`
	Status  Status          `json:"status"`
	// Retried counts dispatch attempts beyond the first.
	Retried       int        `json:"retried"`
	MaxRetries    int        `json:"maxRetries"`
	SubmittedAt   time.Time  `json:"submittedAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	LastRetriedAt *time.Time `json:"lastRetriedAt,omitempty"`
}

// TriggerOptions rebuilds the trigger options this job was created with.
func (j *Job) TriggerOptions() TriggerOptions {
	return TriggerOptions{Name: j.Name, Payload: j.Payload}
}
