// Package ext defines the extension system for jobhook.
//
// Extensions are notified of lifecycle events and can react to them,
// for example by recording metrics or writing audit logs. Each lifecycle
// hook is a separate interface so extensions opt in only to the events
// they care about.
//
// # Implementing an Extension
//
//	type AuditExtension struct{}
//
//	func (e *AuditExtension) Name() string { return "audit" }
//
//	func (e *AuditExtension) OnJobFailed(ctx context.Context, j *job.Job, err error) error {
//	    slog.WarnContext(ctx, "job failed", "job_id", j.ID, "error", err)
//	    return nil
//	}
//
// Register it on the client:
//
//	client, err := jobhook.New(ctx, jobhook.WithExtension(&AuditExtension{}), ...)
//
// # Job Lifecycle Hooks
//
//   - [JobTriggered]: a trigger persisted the job
//   - [JobStarted]: an execution moved the job to PROCESSING
//   - [JobCompleted]: the handler returned nil
//   - [JobRetrying]: the handler failed and a redelivery is scheduled
//   - [JobFailed]: the job is FAILED and will not be redelivered
//
// # Other Hooks
//
//   - [CronFired]: a cron entry fired its trigger
//   - [Shutdown]: the client is stopping
//
// Hooks run synchronously on the goroutine that produced the event and
// their errors are logged, never propagated.
package ext
