package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/jobhook/job"
	"github.com/xraph/jobhook/middleware"
	"github.com/xraph/jobhook/taskio"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func attemptCount(t *testing.T, rm metricdata.ResourceMetrics, want ...attribute.KeyValue) int64 {
	t.Helper()
	m := findMetric(rm, "jobhook.job.attempts")
	if m == nil {
		t.Fatal("jobhook.job.attempts not recorded")
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("attempts data = %T, want Sum[int64]", m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		match := true
		for _, kv := range want {
			v, ok := dp.Attributes.Value(kv.Key)
			if !ok || v != kv.Value {
				match = false
				break
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

func TestMetrics_AttemptsByOutcome(t *testing.T) {
	reader, mp := setupTestMeter()
	mw := middleware.MetricsWithMeter(mp.Meter("test"))
	ctx := context.Background()

	run := func(a *middleware.Attempt, err error) {
		_ = mw(ctx, a, func(context.Context) error { return err })
	}

	run(newAttempt(), nil)
	run(newAttempt(), taskErr(taskio.KindTaskFailed))
	run(newAttempt(), job.Permanent(errors.New("unknown user")))

	admin := newAttempt()
	admin.Retry, admin.Admin = true, true
	admin.Job.Retried = admin.Job.MaxRetries
	run(admin, errors.New("crm unavailable"))

	rm := collectMetrics(t, reader)
	tests := []struct {
		name  string
		attrs []attribute.KeyValue
		want  int64
	}{
		{"all", nil, 4},
		{"completed", []attribute.KeyValue{attribute.String("outcome", "completed"), attribute.String("failure", "none")}, 1},
		{"task failure retried", []attribute.KeyValue{attribute.String("outcome", "retrying"), attribute.String("failure", "task_failed")}, 1},
		{"permanent failed", []attribute.KeyValue{attribute.String("outcome", "failed"), attribute.String("failure", "permanent")}, 1},
		{"admin retry failed", []attribute.KeyValue{attribute.Bool("admin", true), attribute.Bool("retry", true), attribute.String("outcome", "failed")}, 1},
		{"per definition", []attribute.KeyValue{attribute.String("job_definition_id", "send-welcome-email")}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := attemptCount(t, rm, tt.attrs...); got != tt.want {
				t.Errorf("attempts = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMetrics_Duration(t *testing.T) {
	reader, mp := setupTestMeter()
	mw := middleware.MetricsWithMeter(mp.Meter("test"))

	_ = mw(context.Background(), newAttempt(), func(context.Context) error { return nil })

	m := findMetric(collectMetrics(t, reader), "jobhook.job.attempt.duration")
	if m == nil {
		t.Fatal("jobhook.job.attempt.duration not recorded")
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("duration data = %#v", m.Data)
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("count = %d, want 1", dp.Count)
	}
	if v, _ := dp.Attributes.Value("outcome"); v.AsString() != "completed" {
		t.Errorf("outcome = %v", v.AsString())
	}
}

func TestMetrics_DefaultNoopSafe(t *testing.T) {
	called := false
	err := middleware.Metrics()(context.Background(), newAttempt(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("called=%v err=%v", called, err)
	}
}
