package taskio

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned by stores when a task does not exist.
	ErrTaskNotFound = errors.New("taskio: task not found")
	// ErrInvalidWait is returned by Wait for negative durations.
	ErrInvalidWait = errors.New("taskio: wait duration must be non-negative")
	// ErrNoTrigger is returned by TriggerJob when the IO has no trigger.
	ErrNoTrigger = errors.New("taskio: no trigger configured")
)

// Kind classifies a task failure.
type Kind int

const (
	// KindNone is reported for errors that did not come from a task.
	KindNone Kind = iota
	// KindTaskFailed means the task body failed; the job may be retried.
	KindTaskFailed
	// KindExceededRetries means the task used up its retry budget.
	KindExceededRetries
)

// String returns a human-readable name for k.
func (k Kind) String() string {
	switch k {
	case KindTaskFailed:
		return "task_failed"
	case KindExceededRetries:
		return "exceeded_retries"
	default:
		return "none"
	}
}

// Error is returned by RunTask and Run when a task fails.
type Error struct {
	Kind     Kind
	TaskID   string
	CacheKey string
	// Err is the error returned by the task body. Nil for KindExceededRetries.
	Err error
}

func (e *Error) Error() string {
	if e.Kind == KindExceededRetries {
		return fmt.Sprintf("taskio: task %q exceeded retries", e.CacheKey)
	}
	return fmt.Sprintf("taskio: task %q failed: %v", e.CacheKey, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, or KindNone.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindNone
}
