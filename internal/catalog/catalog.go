// Package catalog exposes read access to live product prices and point
// schedules. Catalog CRUD lives in another service.
package catalog

import "context"

// Product is the checkout view of a catalog entry.
type Product struct {
	ID            string
	Name          string
	PriceMinor    int64
	LoyaltyPoints int64
	WeightGrams   int
	Active        bool
}

// Reader looks products up by id. Missing ids are simply absent from the result.
type Reader interface {
	FindProducts(ctx context.Context, ids []string) (map[string]Product, error)
}
