// Package observability provides an OpenTelemetry metrics extension for
// jobhook. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for triggered, completed, retried and failed jobs
// and for cron fires.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
