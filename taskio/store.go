package taskio

import (
	"context"
	"time"
)

// Store defines the persistence contract for tasks.
type Store interface {
	// EnsureTask inserts t when no task with t.ID exists and returns the
	// stored row either way. Concurrent callers observe the same row.
	EnsureTask(ctx context.Context, t *Task) (*Task, error)

	// GetTask retrieves a task by ID. Returns ErrTaskNotFound if absent.
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// CompleteTask marks a task COMPLETED and stores its serialized result.
	CompleteTask(ctx context.Context, taskID string, result []byte, at time.Time) error

	// FailTask marks a task FAILED and increments its retry counter.
	FailTask(ctx context.Context, taskID string, at time.Time) error

	// ListTasks returns the tasks of a job ordered by creation time.
	ListTasks(ctx context.Context, jobID string) ([]*Task, error)
}
