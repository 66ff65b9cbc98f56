package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ObservableRepository struct {
	repo    ports.OrderRepository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.OrderRepository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		repo:    repo,
		metrics: metrics,
	}
}

// observe runs fn inside a span and records its duration under operation.
func (r *ObservableRepository) observe(ctx context.Context, name, operation string, attrs []attribute.KeyValue, fn func(ctx context.Context, span trace.Span) error) error {
	ctx, span := telemetry.StartSpan(ctx, name, append(attrs, attribute.String("operation", operation))...)

	start := time.Now()
	err := fn(ctx, span)
	r.metrics.RecordQuery(ctx, operation, time.Since(start).Seconds(), err)

	telemetry.FinishSpan(span, err)
	return err
}

func (r *ObservableRepository) Create(ctx context.Context, order domain.Order) error {
	attrs := []attribute.KeyValue{
		attribute.String("order.number", order.Number),
		attribute.String("customer.id", order.CustomerID),
	}
	return r.observe(ctx, "OrderRepository.Create", "create_order", attrs, func(ctx context.Context, _ trace.Span) error {
		return r.repo.Create(ctx, order)
	})
}

func (r *ObservableRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	var order *domain.Order
	attrs := []attribute.KeyValue{attribute.String("order.number", number)}
	err := r.observe(ctx, "OrderRepository.GetByNumber", "get_order_by_number", attrs, func(ctx context.Context, _ trace.Span) error {
		var err error
		order, err = r.repo.GetByNumber(ctx, number)
		return err
	})
	return order, err
}

func (r *ObservableRepository) GetByIdempotencyKey(ctx context.Context, customerID, key string) (*domain.Order, error) {
	var order *domain.Order
	attrs := []attribute.KeyValue{attribute.String("customer.id", customerID)}
	err := r.observe(ctx, "OrderRepository.GetByIdempotencyKey", "get_order_by_idempotency_key", attrs, func(ctx context.Context, _ trace.Span) error {
		var err error
		order, err = r.repo.GetByIdempotencyKey(ctx, customerID, key)
		return err
	})
	return order, err
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	attrs := []attribute.KeyValue{
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	}
	if filter.Status != nil {
		attrs = append(attrs, attribute.String("filter.status", string(*filter.Status)))
	}

	var orders []domain.Order
	err := r.observe(ctx, "OrderRepository.List", "list_orders", attrs, func(ctx context.Context, span trace.Span) error {
		var err error
		orders, err = r.repo.List(ctx, filter)
		if err == nil {
			span.SetAttributes(attribute.Int("result.count", len(orders)))
		}
		return err
	})
	return orders, err
}

func (r *ObservableRepository) UpdateStatus(ctx context.Context, number string, from, to domain.OrderStatus, at time.Time) error {
	attrs := []attribute.KeyValue{
		attribute.String("order.number", number),
		attribute.String("order.old_status", string(from)),
		attribute.String("order.new_status", string(to)),
	}
	return r.observe(ctx, "OrderRepository.UpdateStatus", "update_order_status", attrs, func(ctx context.Context, _ trace.Span) error {
		return r.repo.UpdateStatus(ctx, number, from, to, at)
	})
}

func (r *ObservableRepository) UpdateShipment(ctx context.Context, number string, shipment domain.Shipment, at time.Time) error {
	attrs := []attribute.KeyValue{
		attribute.String("order.number", number),
		attribute.String("shipment.waybill", shipment.Waybill),
		attribute.String("shipment.tracking_status", string(shipment.TrackingStatus)),
	}
	return r.observe(ctx, "OrderRepository.UpdateShipment", "update_order_shipment", attrs, func(ctx context.Context, _ trace.Span) error {
		return r.repo.UpdateShipment(ctx, number, shipment, at)
	})
}
