package kafka

import (
	"context"
	"log/slog"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// NoopEventBus logs events without sending them to Kafka. Used when no brokers are configured.
type NoopEventBus struct {
	logger *slog.Logger
}

// NewNoopEventBus returns a new no-op event publisher.
func NewNoopEventBus(logger *slog.Logger) *NoopEventBus {
	return &NoopEventBus{logger: logger}
}

func (n *NoopEventBus) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	n.logger.DebugContext(ctx, "event::"+EventOrderPlaced, "order_number", order.Number, "total", order.Total)
	return nil
}

func (n *NoopEventBus) PublishOrderStatusChanged(ctx context.Context, number string, from, to domain.OrderStatus) error {
	n.logger.DebugContext(ctx, "event::"+EventOrderStatusChanged, "order_number", number, "from", string(from), "to", string(to))
	return nil
}

func (n *NoopEventBus) PublishShipmentCreated(ctx context.Context, number string, shipment domain.Shipment) error {
	n.logger.DebugContext(ctx, "event::"+EventShipmentCreated, "order_number", number, "waybill", shipment.Waybill)
	return nil
}

func (n *NoopEventBus) Close() error {
	return nil
}
