package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels one checkout attempt.
type Outcome string

const (
	OutcomePlaced       Outcome = "placed"
	OutcomeReplayed     Outcome = "replayed"
	OutcomeInvalidInput Outcome = "invalid_input"
	OutcomeRejected     Outcome = "rejected"
	OutcomeNotAuthentic Outcome = "payment_not_authentic"
	OutcomeError        Outcome = "error"
)

type Metrics struct {
	checkoutsTotal     metric.Int64Counter
	checkoutDuration   metric.Float64Histogram
	rejectionsTotal    metric.Int64Counter
	postCommitFailures metric.Int64Counter
	statusTransitions  metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.checkoutsTotal, err = meter.Int64Counter(
		"checkouts_total",
		metric.WithDescription("Checkout attempts by outcome"),
		metric.WithUnit("{checkout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkouts_total counter: %w", err)
	}

	m.checkoutDuration, err = meter.Float64Histogram(
		"checkout_duration_seconds",
		metric.WithDescription("Duration of checkout attempts"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout_duration histogram: %w", err)
	}

	m.rejectionsTotal, err = meter.Int64Counter(
		"checkout_rejections_total",
		metric.WithDescription("Business rule rejections by reason code"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout_rejections_total counter: %w", err)
	}

	m.postCommitFailures, err = meter.Int64Counter(
		"post_commit_failures_total",
		metric.WithDescription("Post-commit tasks that failed and were queued for retry"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create post_commit_failures_total counter: %w", err)
	}

	m.statusTransitions, err = meter.Int64Counter(
		"order_status_transitions_total",
		metric.WithDescription("Applied order status transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_status_transitions_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordCheckout(ctx context.Context, outcome Outcome, durationSeconds float64) {
	attrs := metric.WithAttributes(attribute.String("outcome", string(outcome)))
	m.checkoutsTotal.Add(ctx, 1, attrs)
	m.checkoutDuration.Record(ctx, durationSeconds, attrs)
}

func (m *Metrics) RecordRejection(ctx context.Context, reason string) {
	m.rejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordPostCommitFailure(ctx context.Context, task string) {
	m.postCommitFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
}

func (m *Metrics) RecordStatusTransition(ctx context.Context, from, to string) {
	m.statusTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
