// Package middleware wraps each handler attempt made by the executor.
//
// An [Attempt] is one run of a job's handler: the job row after it moved
// to PROCESSING, whether the delivery was a retry, and whether an operator
// started it. Middleware see the attempt's error before the executor
// decides the job's fate, and [Classify] gives them the same view the
// executor uses:
//
//   - [FailureTaskFailed] keeps the job alive while the task has budget
//   - [FailureExceededRetries] and [FailurePermanent] end the job
//   - anything else ends the job once its own retry budget is spent
//
// [Failure.Final] is that decision. The executor calls it too, so a span
// marked final and a job marked FAILED never disagree.
//
// # Built-in Middleware
//
//   - [Recover] turns panics into a [PanicError]
//   - [Tracing] opens a jobhook.job.attempt span
//   - [Metrics] counts attempts by outcome and failure class
//   - [Logging] logs attempt outcomes
//   - [Timeout] bounds each attempt
//
// Middleware never log or annotate spans with job payloads.
package middleware
