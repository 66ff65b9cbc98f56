package metrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}
	return metrics, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}

	byName := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}
	return byName
}

func TestInitializeMetrics(t *testing.T) {
	t.Run("initializes all metric instruments successfully", func(t *testing.T) {
		metrics, _ := newTestMetrics(t)

		if metrics.checkoutsTotal == nil {
			t.Error("checkoutsTotal is nil")
		}
		if metrics.checkoutDuration == nil {
			t.Error("checkoutDuration is nil")
		}
		if metrics.rejectionsTotal == nil {
			t.Error("rejectionsTotal is nil")
		}
		if metrics.postCommitFailures == nil {
			t.Error("postCommitFailures is nil")
		}
		if metrics.statusTransitions == nil {
			t.Error("statusTransitions is nil")
		}
	})
}

func TestRecordCheckout(t *testing.T) {
	t.Run("records one data point per outcome", func(t *testing.T) {
		metrics, reader := newTestMetrics(t)
		ctx := context.Background()

		metrics.RecordCheckout(ctx, OutcomePlaced, 0.2)
		metrics.RecordCheckout(ctx, OutcomePlaced, 0.3)
		metrics.RecordCheckout(ctx, OutcomeRejected, 0.1)

		got := collect(t, reader)

		counter, ok := got["checkouts_total"]
		if !ok {
			t.Fatal("checkouts_total metric not found")
		}
		sum, ok := counter.Data.(metricdata.Sum[int64])
		if !ok {
			t.Fatal("Expected Sum[int64] data type")
		}
		if len(sum.DataPoints) != 2 {
			t.Errorf("Expected 2 data points, got %d", len(sum.DataPoints))
		}

		histogram, ok := got["checkout_duration_seconds"]
		if !ok {
			t.Fatal("checkout_duration_seconds metric not found")
		}
		hist, ok := histogram.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatal("Expected Histogram[float64] data type")
		}
		var count uint64
		for _, dp := range hist.DataPoints {
			count += dp.Count
		}
		if count != 3 {
			t.Errorf("Expected 3 recorded durations, got %d", count)
		}
	})
}

func TestRecordCounters(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordRejection(ctx, "USAGE_LIMIT_REACHED")
	metrics.RecordPostCommitFailure(ctx, "dispatch_shipment")
	metrics.RecordStatusTransition(ctx, "confirmed", "shipped")

	got := collect(t, reader)
	for _, name := range []string{"checkout_rejections_total", "post_commit_failures_total", "order_status_transitions_total"} {
		m, ok := got[name]
		if !ok {
			t.Errorf("%s metric not found", name)
			continue
		}
		sum := m.Data.(metricdata.Sum[int64])
		if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
			t.Errorf("%s: unexpected data points %+v", name, sum.DataPoints)
		}
	}
}
