package httpapi

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the server-side HTTP instruments.
type Metrics struct {
	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
	inFlight        metric.Int64UpDownCounter
	panicsTotal     metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.requestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return nil, fmt.Errorf("create http_request_duration_seconds histogram: %w", err)
	}

	if m.requestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("HTTP requests by route and status"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("create http_requests_total counter: %w", err)
	}

	if m.inFlight, err = meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("create http_requests_in_flight gauge: %w", err)
	}

	if m.panicsTotal, err = meter.Int64Counter(
		"http_panics_total",
		metric.WithDescription("Handler panics recovered by the server"),
		metric.WithUnit("{panic}"),
	); err != nil {
		return nil, fmt.Errorf("create http_panics_total counter: %w", err)
	}

	return &m, nil
}

// RecordRequest records one finished request. route is the matched route
// template so order numbers stay out of the labels.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, statusCode int, durationSeconds float64) {
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status_code", statusCode),
		attribute.String("status_class", statusClass(statusCode)),
	))
	m.requestDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}

// Started and Finished bracket a request for the in-flight gauge.
func (m *Metrics) Started(ctx context.Context) {
	m.inFlight.Add(ctx, 1)
}

func (m *Metrics) Finished(ctx context.Context) {
	m.inFlight.Add(ctx, -1)
}

func (m *Metrics) RecordPanic(ctx context.Context, route string) {
	m.panicsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
