package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/jobhook/id"
	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/observability"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:           id.NewJobID(),
		DefinitionID: "send-email",
		Name:         "user.signup",
	}
}

// counterValue sums the data points of the named counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Counters(t *testing.T) {
	tests := []struct {
		metric string
		emit   func(e *observability.MetricsExtension) error
	}{
		{"jobhook.job.triggered", func(e *observability.MetricsExtension) error {
			return e.OnJobTriggered(context.Background(), newTestJob())
		}},
		{"jobhook.job.completed", func(e *observability.MetricsExtension) error {
			return e.OnJobCompleted(context.Background(), newTestJob(), 100*time.Millisecond)
		}},
		{"jobhook.job.failed", func(e *observability.MetricsExtension) error {
			return e.OnJobFailed(context.Background(), newTestJob(), errors.New("boom"))
		}},
		{"jobhook.job.retried", func(e *observability.MetricsExtension) error {
			return e.OnJobRetrying(context.Background(), newTestJob(), errors.New("boom"), time.Second)
		}},
		{"jobhook.cron.fired", func(e *observability.MetricsExtension) error {
			return e.OnCronFired(context.Background(), "nightly", nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			e, reader := newTestExtension()
			if err := tt.emit(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := tt.emit(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := counterValue(t, reader, tt.metric); got != 2 {
				t.Errorf("%s: want 2, got %d", tt.metric, got)
			}
		})
	}
}

func TestMetricsExtension_DefinitionAttribute(t *testing.T) {
	e, reader := newTestExtension()
	_ = e.OnJobCompleted(context.Background(), newTestJob(), time.Second)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	sum := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	v, ok := sum.DataPoints[0].Attributes.Value("job_definition_id")
	if !ok || v.AsString() != "send-email" {
		t.Fatalf("job_definition_id = %v (present %v)", v.AsString(), ok)
	}
}

func TestNewMetricsExtension_GlobalNoopSafe(t *testing.T) {
	e := observability.NewMetricsExtension()
	if err := e.OnJobTriggered(context.Background(), newTestJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
