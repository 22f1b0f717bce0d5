package taskio

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	// StatusPending means the task has not completed yet.
	StatusPending Status = "PENDING"
	// StatusCompleted means the task succeeded and its result is cached.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed means the last attempt failed.
	StatusFailed Status = "FAILED"
)

// DefaultMaxRetries is the retry budget of a newly created task.
const DefaultMaxRetries = 3

// Task is one cached checkpoint inside a job's handler execution.
type Task struct {
	ID          string          `json:"id"`
	JobID       string          `json:"jobId"`
	Name        string          `json:"name"`
	Status      Status          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Retried     int             `json:"retried"`
	MaxRetries  int             `json:"maxRetries"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
