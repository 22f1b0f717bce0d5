// Package admin implements the operator bulk-retry tool.
//
// A Controller selects jobs by status, optionally resets their state and
// re-dispatches them through the active provider in small concurrent
// batches, then reports what happened to each job:
//
//	report, err := ctrl.Retry(ctx, admin.Request{Scope: admin.ScopeFailed})
//
// Dispatch failures never change a job's status. A dispatch that times out
// may still be running on the endpoint, so the job is left as it is and
// the failure is listed in the report.
package admin
