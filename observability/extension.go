package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobhook/ext"
	"github.com/xraph/jobhook/job"
)

const meterName = "github.com/xraph/jobhook/observability"

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobTriggered = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
	_ ext.CronFired    = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle counters. Every counter carries the
// job_definition_id attribute; cron fires carry cron_name.
type MetricsExtension struct {
	triggered metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
	cronFired metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// Instrument errors fall back to noop instruments.
	triggered, _ := meter.Int64Counter("jobhook.job.triggered",
		metric.WithDescription("Jobs persisted by a trigger"), metric.WithUnit("{job}"))
	completed, _ := meter.Int64Counter("jobhook.job.completed",
		metric.WithDescription("Jobs completed"), metric.WithUnit("{job}"))
	failed, _ := meter.Int64Counter("jobhook.job.failed",
		metric.WithDescription("Jobs failed terminally"), metric.WithUnit("{job}"))
	retried, _ := meter.Int64Counter("jobhook.job.retried",
		metric.WithDescription("Redeliveries scheduled after a handler failure"), metric.WithUnit("{job}"))
	cronFired, _ := meter.Int64Counter("jobhook.cron.fired",
		metric.WithDescription("Cron entry fires"), metric.WithUnit("{fire}"))

	return &MetricsExtension{
		triggered: triggered,
		completed: completed,
		failed:    failed,
		retried:   retried,
		cronFired: cronFired,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func definitionAttr(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_definition_id", j.DefinitionID))
}

// OnJobTriggered implements ext.JobTriggered.
func (m *MetricsExtension) OnJobTriggered(ctx context.Context, j *job.Job) error {
	m.triggered.Add(ctx, 1, definitionAttr(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.completed.Add(ctx, 1, definitionAttr(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.failed.Add(ctx, 1, definitionAttr(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ error, _ time.Duration) error {
	m.retried.Add(ctx, 1, definitionAttr(j))
	return nil
}

// OnCronFired implements ext.CronFired.
func (m *MetricsExtension) OnCronFired(ctx context.Context, entryName string, _ []*job.Job) error {
	m.cronFired.Add(ctx, 1, metric.WithAttributes(attribute.String("cron_name", entryName)))
	return nil
}
