// Package cart holds the customer's pending items until checkout clears them.
package cart

import (
	"context"
	"time"
)

// Item is a product the customer intends to buy.
type Item struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=100"`
	Variant   string `json:"variant,omitempty" validate:"max=64"`
}

type Cart struct {
	CustomerID string    `json:"customer_id"`
	Items      []Item    `json:"items"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store persists one cart per customer. A customer without a stored cart
// has an empty one.
type Store interface {
	Get(ctx context.Context, customerID string) (*Cart, error)
	Replace(ctx context.Context, cart Cart) error
	Clear(ctx context.Context, customerID string) error
}
