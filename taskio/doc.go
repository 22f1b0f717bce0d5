// Package taskio is the toolkit handed to a running job handler.
//
// An [IO] is bound to one job ID for the duration of one handler execution.
// Its central primitive is the cached task: a named sub-step whose result is
// persisted the first time it succeeds and replayed verbatim on every later
// run of the same job.
//
//	err := io.RunTask("send-confirmation-email", func(ctx context.Context) error {
//	    return mailer.Send(ctx, msg)
//	})
//
//	html, err := taskio.Run(io, "render-email", func(ctx context.Context) (string, error) {
//	    return templates.Render(ctx, "rejected", data)
//	})
//
// Together with whole-job retries this makes at-least-once delivery safe for
// side effects like sending an email: a retried job skips every task that
// already completed and re-executes only the one that failed.
//
// Task failures are returned as [*Error] values carrying a [Kind]:
// [KindTaskFailed] means the step may run again on the next job attempt,
// [KindExceededRetries] means the step has used its retry budget and the
// job must give up.
package taskio
