//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/database/dbtest"
	"github.com/dejobratic/storefront/internal/orders/adapters/postgres"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/google/uuid"
)

func newOrder(customerID, idemKey string) domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Order{
		ID:             uuid.NewString(),
		Number:         domain.NewOrderNumber(now),
		CustomerID:     customerID,
		IdempotencyKey: idemKey,
		Items: []domain.LineItem{
			{ProductID: "p1", Name: "Kurta", UnitPrice: 50000, Quantity: 2, LoyaltyPoints: 15},
		},
		ShippingAddress:   domain.Address{Name: "A", Phone: "9999999999", Line1: "1 Road", City: "Pune", State: "MH", PostalCode: "411001"},
		BillingAddress:    domain.Address{Name: "A", Phone: "9999999999", Line1: "1 Road", City: "Pune", State: "MH", PostalCode: "411001"},
		Payment:           domain.Payment{Mode: domain.PaymentCOD, Verification: domain.VerificationNotRequired},
		Subtotal:          100000,
		Discount:          5000,
		Total:             95000,
		CouponCode:        "WELCOME5",
		Status:            domain.StatusPending,
		EstimatedDelivery: now.AddDate(0, 0, 7),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestRepositoryCreate(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := postgres.NewRepository(pool)
	ctx := context.Background()

	order := newOrder("cust-1", "key-1")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	retrieved, err := repo.GetByNumber(ctx, order.Number)
	if err != nil {
		t.Fatalf("failed to retrieve order: %v", err)
	}

	if retrieved.ID != order.ID {
		t.Errorf("expected ID %s, got %s", order.ID, retrieved.ID)
	}
	if retrieved.Total != order.Total {
		t.Errorf("expected total %d, got %d", order.Total, retrieved.Total)
	}
	if len(retrieved.Items) != 1 || retrieved.Items[0].UnitPrice != 50000 {
		t.Errorf("unexpected items %+v", retrieved.Items)
	}
	if retrieved.ShippingAddress.City != "Pune" {
		t.Errorf("expected city Pune, got %s", retrieved.ShippingAddress.City)
	}
	if retrieved.CouponCode != "WELCOME5" {
		t.Errorf("expected coupon WELCOME5, got %q", retrieved.CouponCode)
	}

	byKey, err := repo.GetByIdempotencyKey(ctx, "cust-1", "key-1")
	if err != nil {
		t.Fatalf("failed to retrieve by idempotency key: %v", err)
	}
	if byKey.Number != order.Number {
		t.Errorf("expected %s, got %s", order.Number, byKey.Number)
	}
}

func TestRepositoryIdempotencyKey(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := postgres.NewRepository(pool)
	ctx := context.Background()

	if err := repo.Create(ctx, newOrder("cust-1", "same")); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	err := repo.Create(ctx, newOrder("cust-1", "same"))
	if !errors.Is(err, ports.ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}

	if err := repo.Create(ctx, newOrder("cust-2", "same")); err != nil {
		t.Errorf("key should be scoped per customer: %v", err)
	}
	if err := repo.Create(ctx, newOrder("cust-1", "")); err != nil {
		t.Errorf("orders without key should not collide: %v", err)
	}
	if err := repo.Create(ctx, newOrder("cust-1", "")); err != nil {
		t.Errorf("orders without key should not collide: %v", err)
	}
}

func TestRepositoryUpdateStatus(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := postgres.NewRepository(pool)
	ctx := context.Background()

	order := newOrder("cust-1", "")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	t.Run("moves from the expected status", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, order.Number, domain.StatusPending, domain.StatusConfirmed, time.Now().UTC())
		if err != nil {
			t.Fatalf("failed to update status: %v", err)
		}
		retrieved, err := repo.GetByNumber(ctx, order.Number)
		if err != nil {
			t.Fatalf("failed to retrieve order: %v", err)
		}
		if retrieved.Status != domain.StatusConfirmed {
			t.Errorf("expected status confirmed, got %s", retrieved.Status)
		}
	})

	t.Run("stale from status is a conflict", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, order.Number, domain.StatusPending, domain.StatusCancelled, time.Now().UTC())
		if !errors.Is(err, ports.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("unknown order is not found", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, "ORD-missing", domain.StatusPending, domain.StatusConfirmed, time.Now().UTC())
		if !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestRepositoryUpdateShipment(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := postgres.NewRepository(pool)
	ctx := context.Background()

	order := newOrder("cust-1", "")
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	shipment := domain.Shipment{
		Waybill:        "WB123",
		TrackingURL:    "https://track.example/WB123",
		TrackingStatus: domain.TrackingPending,
	}
	if err := repo.UpdateShipment(ctx, order.Number, shipment, time.Now().UTC()); err != nil {
		t.Fatalf("failed to update shipment: %v", err)
	}

	retrieved, err := repo.GetByNumber(ctx, order.Number)
	if err != nil {
		t.Fatalf("failed to retrieve order: %v", err)
	}
	if retrieved.Shipment.Waybill != "WB123" {
		t.Errorf("expected waybill WB123, got %q", retrieved.Shipment.Waybill)
	}
}

func TestRepositoryList(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := postgres.NewRepository(pool)
	ctx := context.Background()

	for range 3 {
		if err := repo.Create(ctx, newOrder("cust-1", "")); err != nil {
			t.Fatalf("failed to create order: %v", err)
		}
	}
	if err := repo.Create(ctx, newOrder("cust-2", "")); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	orders, err := repo.List(ctx, ports.ListFilter{CustomerID: "cust-1"})
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if len(orders) != 3 {
		t.Errorf("expected 3 orders, got %d", len(orders))
	}

	status := domain.StatusPending
	orders, err = repo.List(ctx, ports.ListFilter{Status: &status, Page: 2, PageSize: 3})
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if len(orders) != 1 {
		t.Errorf("expected 1 order on page 2, got %d", len(orders))
	}
}
