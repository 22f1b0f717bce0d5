// Package ext defines the extension system for jobhook.
// Extensions are notified of lifecycle events (job triggered, completed,
// failed, etc.) and can react to them with logging, metrics or audit
// trails.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/jobhook/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobTriggered is called after a trigger persists a job, before dispatch.
type JobTriggered interface {
	OnJobTriggered(ctx context.Context, j *job.Job) error
}

// JobStarted is called when an execution moves a job to PROCESSING.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobRetrying is called when a failed job is requeued for redelivery.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, err error, delay time.Duration) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// CronFired is called when a cron entry fires its trigger.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName string, jobs []*job.Job) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
