package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/xraph/jobhook"

// Metrics records attempt metrics with the global MeterProvider.
//
//   - jobhook.job.attempt.duration (s): job_definition_id, outcome
//   - jobhook.job.attempts: job_definition_id, outcome, failure, retry, admin
//
// outcome is the state the job moves to: completed, retrying or failed.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter is Metrics with an explicit meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instrument errors still return usable noop instruments.
	duration, _ := meter.Float64Histogram(
		"jobhook.job.attempt.duration",
		metric.WithDescription("Duration of job handler attempts"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"jobhook.job.attempts",
		metric.WithDescription("Job handler attempts by outcome and failure class"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, a *Attempt, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		defID := attribute.String("job_definition_id", a.Job.DefinitionID)
		outcome := attribute.String("outcome", Outcome(a, err))

		duration.Record(ctx, elapsed, metric.WithAttributes(defID, outcome))
		attempts.Add(ctx, 1, metric.WithAttributes(
			defID,
			outcome,
			attribute.String("failure", string(Classify(err))),
			attribute.Bool("retry", a.Retry),
			attribute.Bool("admin", a.Admin),
		))
		return err
	}
}
