package middleware

import (
	"context"
	"errors"

	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/taskio"
)

// Failure classifies a handler error. The value doubles as the metric and
// log attribute.
type Failure string

const (
	FailureNone Failure = "none"
	// FailureTaskFailed is a task body error; the task still has budget.
	FailureTaskFailed Failure = "task_failed"
	// FailureExceededRetries is a task that used up its own budget.
	FailureExceededRetries Failure = "exceeded_retries"
	// FailurePermanent is an error marked with job.Permanent.
	FailurePermanent Failure = "permanent"
	FailureTimeout   Failure = "timeout"
	FailurePanic     Failure = "panic"
	// FailureError is any other handler error.
	FailureError Failure = "error"
)

// Classify returns the Failure for a handler error. Task classification
// wins over everything else, so a task that timed out internally is still
// reported by its task kind.
func Classify(err error) Failure {
	if err == nil {
		return FailureNone
	}
	switch taskio.KindOf(err) {
	case taskio.KindExceededRetries:
		return FailureExceededRetries
	case taskio.KindTaskFailed:
		return FailureTaskFailed
	}

	var pe *PanicError
	switch {
	case job.IsPermanent(err):
		return FailurePermanent
	case errors.As(err, &pe):
		return FailurePanic
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	default:
		return FailureError
	}
}

// Final reports whether a failure of this class ends the job. A task
// failure never does: the task's own budget bounds it and surfaces as
// FailureExceededRetries. Other errors end the job once its retry budget
// is spent.
func (f Failure) Final(j *job.Job) bool {
	switch f {
	case FailureNone, FailureTaskFailed:
		return false
	case FailureExceededRetries, FailurePermanent:
		return true
	default:
		return j.Retried >= j.MaxRetries
	}
}

// Outcome names the state a job moves to after an attempt.
func Outcome(a *Attempt, err error) string {
	f := Classify(err)
	switch {
	case f == FailureNone:
		return "completed"
	case f.Final(a.Job):
		return "failed"
	default:
		return "retrying"
	}
}
