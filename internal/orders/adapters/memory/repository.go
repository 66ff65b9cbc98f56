package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

type idemKey struct {
	customerID string
	key        string
}

// Repository provides an in-memory store useful for local development and tests.
type Repository struct {
	mu        sync.RWMutex
	orders    map[string]domain.Order
	byIdemKey map[idemKey]string
}

// NewRepository constructs a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		orders:    make(map[string]domain.Order),
		byIdemKey: make(map[idemKey]string),
	}
}

// Create stores a new order, enforcing unique numbers and idempotency keys.
func (r *Repository) Create(ctx context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.Number]; exists {
		return ports.ErrDuplicateOrderNumber
	}
	key := idemKey{order.CustomerID, order.IdempotencyKey}
	if order.IdempotencyKey != "" {
		if _, exists := r.byIdemKey[key]; exists {
			return ports.ErrDuplicateIdempotencyKey
		}
		r.byIdemKey[key] = order.Number
	}
	r.orders[order.Number] = clone(order)

	database.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.orders, order.Number)
		if order.IdempotencyKey != "" {
			delete(r.byIdemKey, key)
		}
	})
	return nil
}

func (r *Repository) GetByNumber(_ context.Context, number string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[number]
	if !ok {
		return nil, ports.ErrNotFound
	}
	order = clone(order)
	return &order, nil
}

func (r *Repository) GetByIdempotencyKey(_ context.Context, customerID, key string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	number, ok := r.byIdemKey[idemKey{customerID, key}]
	if !ok {
		return nil, ports.ErrNotFound
	}
	order := clone(r.orders[number])
	return &order, nil
}

// List returns newest orders first. Pagination is 1-based.
func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start >= len(result) {
		return []domain.Order{}, nil
	}
	end := min(start+pageSize, len(result))

	paged := make([]domain.Order, 0, end-start)
	for _, order := range result[start:end] {
		paged = append(paged, clone(order))
	}
	return paged, nil
}

// UpdateStatus sets the status only when the order is still in from.
func (r *Repository) UpdateStatus(ctx context.Context, number string, from, to domain.OrderStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[number]
	if !ok {
		return ports.ErrNotFound
	}
	if order.Status != from {
		return ports.ErrConflict
	}

	previous := order
	order.Status = to
	order.UpdatedAt = at
	r.orders[number] = order

	database.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.orders[number] = previous
	})
	return nil
}

func (r *Repository) UpdateShipment(ctx context.Context, number string, shipment domain.Shipment, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[number]
	if !ok {
		return ports.ErrNotFound
	}

	previous := order
	order.Shipment = shipment
	order.Shipment.History = slices.Clone(shipment.History)
	order.UpdatedAt = at
	r.orders[number] = order

	database.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.orders[number] = previous
	})
	return nil
}

func clone(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	order.Shipment.History = slices.Clone(order.Shipment.History)
	return order
}
