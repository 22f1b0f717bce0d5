package middleware

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobhook/taskio"
)

const tracerName = "github.com/xraph/jobhook"

// Tracing wraps each attempt in a jobhook.job.attempt span using the global
// TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer is Tracing with an explicit tracer.
//
// The span carries the job identity, its retry counters and whether the
// attempt is an operator retry. A failure adds jobhook.failure and
// jobhook.failure.final, plus jobhook.task.cache_key when a task failed.
// Only a final failure marks the span as an error; a failure that will be
// retried records the exception and leaves the status unset.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, a *Attempt, next Handler) error {
		ctx, span := tracer.Start(ctx, "jobhook.job.attempt",
			trace.WithAttributes(
				attribute.String("jobhook.job.id", a.Job.ID),
				attribute.String("jobhook.job.definition_id", a.Job.DefinitionID),
				attribute.String("jobhook.job.name", a.Job.Name),
				attribute.Int("jobhook.job.retried", a.Job.Retried),
				attribute.Int("jobhook.job.max_retries", a.Job.MaxRetries),
				attribute.Bool("jobhook.attempt.retry", a.Retry),
				attribute.Bool("jobhook.attempt.admin", a.Admin),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return nil
		}

		failure := Classify(err)
		final := failure.Final(a.Job)
		span.SetAttributes(
			attribute.String("jobhook.failure", string(failure)),
			attribute.Bool("jobhook.failure.final", final),
		)
		var te *taskio.Error
		if errors.As(err, &te) {
			span.SetAttributes(attribute.String("jobhook.task.cache_key", te.CacheKey))
		}
		span.RecordError(err)
		if final {
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}
