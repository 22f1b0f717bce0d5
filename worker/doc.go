// Package worker provides the job execution engine: an Executor that
// authenticates a delivery, runs the registered handler through middleware
// and applies the job state machine, and a Pool that feeds deliveries from
// a queue-backed Source into the Executor with bounded concurrency.
package worker
