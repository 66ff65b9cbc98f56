package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/storefront/internal/kafka"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *kafka.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *kafka.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) publish(ctx context.Context, name, eventType string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, name, append(attrs, attribute.String("event.type", eventType))...)

	start := time.Now()
	err := fn(ctx)
	e.metrics.RecordPublish(ctx, eventType, time.Since(start).Seconds(), err)

	telemetry.FinishSpan(span, err)
	return err
}

func (e *ObservableEventBus) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	attrs := []attribute.KeyValue{
		attribute.String("order.number", order.Number),
		attribute.Int64("order.total", order.Total),
	}
	return e.publish(ctx, "EventBus.PublishOrderPlaced", kafka.EventOrderPlaced, attrs, func(ctx context.Context) error {
		return e.bus.PublishOrderPlaced(ctx, order)
	})
}

func (e *ObservableEventBus) PublishOrderStatusChanged(ctx context.Context, number string, from, to domain.OrderStatus) error {
	attrs := []attribute.KeyValue{
		attribute.String("order.number", number),
		attribute.String("order.old_status", string(from)),
		attribute.String("order.new_status", string(to)),
	}
	return e.publish(ctx, "EventBus.PublishOrderStatusChanged", kafka.EventOrderStatusChanged, attrs, func(ctx context.Context) error {
		return e.bus.PublishOrderStatusChanged(ctx, number, from, to)
	})
}

func (e *ObservableEventBus) PublishShipmentCreated(ctx context.Context, number string, shipment domain.Shipment) error {
	attrs := []attribute.KeyValue{
		attribute.String("order.number", number),
		attribute.String("shipment.waybill", shipment.Waybill),
	}
	return e.publish(ctx, "EventBus.PublishShipmentCreated", kafka.EventShipmentCreated, attrs, func(ctx context.Context) error {
		return e.bus.PublishShipmentCreated(ctx, number, shipment)
	})
}
