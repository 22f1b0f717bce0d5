package middleware

import (
	"context"

	"github.com/xraph/jobhook/job"
)

// Handler runs the job's registered handler with a fresh Task IO.
type Handler func(ctx context.Context) error

// Middleware wraps one handler attempt. It MUST call next unless it means
// to short-circuit the attempt, and it must return next's error unchanged
// or wrapped so Classify still sees the original failure.
type Middleware func(ctx context.Context, a *Attempt, next Handler) error

// Attempt is one run of a job's handler.
type Attempt struct {
	// Job is the row after the PROCESSING transition, so Retried already
	// counts this attempt when Retry is set.
	Job *job.Job
	// Retry marks a redelivery.
	Retry bool
	// Admin marks a redelivery started by the bulk-retry tool.
	Admin bool
}

// Remaining is the job-level retry budget left after this attempt.
func (a *Attempt) Remaining() int {
	return max(0, a.Job.MaxRetries-a.Job.Retried)
}

// Chain composes middleware; the first one is the outermost wrapper.
//
//	Chain(recover, logging)(ctx, a, h) runs recover → logging → h
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, a *Attempt, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, a, prev)
			}
		}
		return h(ctx)
	}
}
