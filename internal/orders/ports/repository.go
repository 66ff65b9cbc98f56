package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// OrderRepository is the Order Ledger's persistence contract.
type OrderRepository interface {
	// Create stores a new order. It returns ErrDuplicateIdempotencyKey when the
	// customer already has an order under the same key.
	Create(ctx context.Context, order domain.Order) error
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, customerID, key string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	// UpdateStatus moves the order from one status to another only if it is
	// still in from. It returns ErrConflict otherwise.
	UpdateStatus(ctx context.Context, number string, from, to domain.OrderStatus, at time.Time) error
	UpdateShipment(ctx context.Context, number string, shipment domain.Shipment, at time.Time) error
}

// ListFilter narrows list queries by customer, status and pagination.
type ListFilter struct {
	CustomerID string
	Status     *domain.OrderStatus
	Page       int
	PageSize   int
}

var (
	// ErrNotFound is returned when the requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateIdempotencyKey is returned when (customer, key) already has an order.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	// ErrDuplicateOrderNumber is returned on an order number collision.
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	// ErrConflict is returned when a compare-and-set status update lost a race.
	ErrConflict = errors.New("order was modified concurrently")
	// ErrNoCarrier is returned when a shipment is requested without a configured carrier.
	ErrNoCarrier = errors.New("no shipping carrier configured")
)
