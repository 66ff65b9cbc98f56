//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/cart"
	"github.com/dejobratic/storefront/internal/cart/adapters/postgres"
	"github.com/dejobratic/storefront/internal/database/dbtest"
)

func TestStore(t *testing.T) {
	store := postgres.NewStore(dbtest.NewPool(t))
	ctx := context.Background()

	empty, err := store.Get(ctx, "nobody")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if len(empty.Items) != 0 {
		t.Errorf("expected empty cart, got %d items", len(empty.Items))
	}

	err = store.Replace(ctx, cart.Cart{
		CustomerID: "c1",
		Items:      []cart.Item{{ProductID: "p1", Quantity: 2, Variant: "L"}},
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Replace() failed: %v", err)
	}

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].Quantity != 2 || got.Items[0].Variant != "L" {
		t.Errorf("unexpected cart items: %+v", got.Items)
	}

	if err := store.Clear(ctx, "c1"); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	got, err = store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if len(got.Items) != 0 {
		t.Errorf("expected cleared cart, got %+v", got.Items)
	}
}
