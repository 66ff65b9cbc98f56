package ports

import (
	"context"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// EventBus defines the contract for publishing order lifecycle events.
type EventBus interface {
	PublishOrderPlaced(ctx context.Context, order domain.Order) error
	PublishOrderStatusChanged(ctx context.Context, number string, from, to domain.OrderStatus) error
	PublishShipmentCreated(ctx context.Context, number string, shipment domain.Shipment) error
}
