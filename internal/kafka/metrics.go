package kafka

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	outcomeDelivered = "delivered"
	outcomeFailed    = "failed"
)

// Metrics tracks order events handed to the broker.
type Metrics struct {
	published metric.Int64Counter
	latency   metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	published, err := meter.Int64Counter(
		"order_events_published_total",
		metric.WithDescription("Order events handed to the broker, by type and outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_events_published_total counter: %w", err)
	}

	latency, err := meter.Float64Histogram(
		"order_event_publish_duration_seconds",
		metric.WithDescription("Time until the broker acknowledged an order event"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_event_publish_duration_seconds histogram: %w", err)
	}

	return &Metrics{published: published, latency: latency}, nil
}

// RecordPublish counts one publish attempt of eventType. Latency is only
// recorded for delivered events.
func (m *Metrics) RecordPublish(ctx context.Context, eventType string, durationSeconds float64, err error) {
	outcome := outcomeDelivered
	if err != nil {
		outcome = outcomeFailed
	}
	m.published.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
	if err == nil {
		m.latency.Record(ctx, durationSeconds, metric.WithAttributes(attribute.String("event_type", eventType)))
	}
}
