package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records repository query latency and failures.
type Metrics struct {
	queryDuration metric.Float64Histogram
	queryErrors   metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	queryDuration, err := meter.Float64Histogram(
		"db_query_duration_seconds",
		metric.WithDescription("Repository operation duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_duration_seconds histogram: %w", err)
	}

	queryErrors, err := meter.Int64Counter(
		"db_query_errors_total",
		metric.WithDescription("Repository operations that returned an error"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_errors_total counter: %w", err)
	}

	return &Metrics{queryDuration: queryDuration, queryErrors: queryErrors}, nil
}

// RecordQuery records how long operation took and counts it as failed when err is set.
func (m *Metrics) RecordQuery(ctx context.Context, operation string, durationSeconds float64, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	m.queryDuration.Record(ctx, durationSeconds, attrs)
	if err != nil {
		m.queryErrors.Add(ctx, 1, attrs)
	}
}

// PoolStats is a snapshot of connection pool usage.
type PoolStats struct {
	Acquired int64
	Idle     int64
	Total    int64
	Max      int64
}

// PgxPoolStats reads usage from a pgx pool.
func PgxPoolStats(pool *pgxpool.Pool) func() PoolStats {
	return func() PoolStats {
		s := pool.Stat()
		return PoolStats{
			Acquired: int64(s.AcquiredConns()),
			Idle:     int64(s.IdleConns()),
			Total:    int64(s.TotalConns()),
			Max:      int64(s.MaxConns()),
		}
	}
}

// RegisterPoolMetrics exposes pool usage as db_pool_connections{state}, read
// on every collection.
func RegisterPoolMetrics(meter metric.Meter, stats func() PoolStats) error {
	gauge, err := meter.Int64ObservableGauge(
		"db_pool_connections",
		metric.WithDescription("Connection pool usage by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return fmt.Errorf("create db_pool_connections gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(gauge, s.Acquired, metric.WithAttributes(attribute.String("state", "acquired")))
		o.ObserveInt64(gauge, s.Idle, metric.WithAttributes(attribute.String("state", "idle")))
		o.ObserveInt64(gauge, s.Total, metric.WithAttributes(attribute.String("state", "total")))
		o.ObserveInt64(gauge, s.Max, metric.WithAttributes(attribute.String("state", "max")))
		return nil
	}, gauge)
	if err != nil {
		return fmt.Errorf("register pool callback: %w", err)
	}
	return nil
}
