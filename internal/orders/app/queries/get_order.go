package queries

import (
	"context"
	"errors"
	"strings"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

var ErrMissingOrderNumber = errors.New("order number is required")

// GetOrderQuery looks up one order. CustomerID, when set, restricts the
// lookup to that customer; admins leave it empty.
type GetOrderQuery struct {
	OrderNumber string
	CustomerID  string
}

type GetOrderQueryHandler struct {
	repo ports.OrderRepository
}

func NewGetOrderQueryHandler(repo ports.OrderRepository) *GetOrderQueryHandler {
	return &GetOrderQueryHandler{repo: repo}
}

// Handle reports another customer's order as ports.ErrNotFound, the same as
// a missing one.
func (h *GetOrderQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (*domain.Order, error) {
	number := strings.TrimSpace(query.OrderNumber)
	if number == "" {
		return nil, ErrMissingOrderNumber
	}

	order, err := h.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if query.CustomerID != "" && order.CustomerID != query.CustomerID {
		return nil, ports.ErrNotFound
	}
	return order, nil
}
