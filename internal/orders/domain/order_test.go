package domain_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

func validOrder() domain.Order {
	return domain.Order{
		ID:         "id-1",
		Number:     "ORD-20261018-ABCDEF",
		CustomerID: "cust-1",
		Items: []domain.LineItem{
			{ProductID: "p1", UnitPrice: 40000, Quantity: 2, LoyaltyPoints: 10, WeightGrams: 300},
			{ProductID: "p2", UnitPrice: 20000, Quantity: 1, LoyaltyPoints: 0, WeightGrams: 150},
		},
		Subtotal:        100000,
		Discount:        5000,
		LoyaltyPoints:   30,
		LoyaltyDiscount: 3000,
		Total:           92000,
		Status:          domain.StatusConfirmed,
	}
}

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *domain.Order)
		wantErr bool
	}{
		{
			name:    "valid order",
			mutate:  func(o *domain.Order) {},
			wantErr: false,
		},
		{
			name:    "missing customer",
			mutate:  func(o *domain.Order) { o.CustomerID = "" },
			wantErr: true,
		},
		{
			name:    "no items",
			mutate:  func(o *domain.Order) { o.Items = nil },
			wantErr: true,
		},
		{
			name:    "zero quantity",
			mutate:  func(o *domain.Order) { o.Items[0].Quantity = 0 },
			wantErr: true,
		},
		{
			name:    "total does not balance",
			mutate:  func(o *domain.Order) { o.Total = 91000 },
			wantErr: true,
		},
		{
			name:    "subtotal does not match items",
			mutate:  func(o *domain.Order) { o.Subtotal = 99000 },
			wantErr: true,
		},
		{
			name:    "unknown status",
			mutate:  func(o *domain.Order) { o.Status = "lost" },
			wantErr: true,
		},
		{
			name: "total clamps at zero",
			mutate: func(o *domain.Order) {
				o.Discount = 100000
				o.LoyaltyDiscount = 5000
				o.Total = 0
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := validOrder()
			tt.mutate(&order)
			err := order.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOrderAggregates(t *testing.T) {
	order := validOrder()

	if got := order.EarnedPoints(); got != 20 {
		t.Errorf("EarnedPoints() = %d, want 20", got)
	}
	if got := order.WeightGrams(); got != 750 {
		t.Errorf("WeightGrams() = %d, want 750", got)
	}
	if got := order.Quantity(); got != 3 {
		t.Errorf("Quantity() = %d, want 3", got)
	}

	summary := order.Summary()
	if summary.Total != 92000 || summary.Breakdown.Subtotal != 100000 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.StatusPending, domain.StatusConfirmed, true},
		{domain.StatusPending, domain.StatusShipped, true},
		{domain.StatusConfirmed, domain.StatusPending, false},
		{domain.StatusShipped, domain.StatusProcessing, false},
		{domain.StatusShipped, domain.StatusDelivered, true},
		{domain.StatusShipped, domain.StatusCancelled, true},
		{domain.StatusDelivered, domain.StatusCancelled, false},
		{domain.StatusCancelled, domain.StatusConfirmed, false},
		{domain.StatusPending, domain.StatusPending, false},
		{domain.StatusPending, "lost", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrackingStatusMapping(t *testing.T) {
	tests := []struct {
		tracking domain.TrackingStatus
		want     domain.OrderStatus
		ok       bool
	}{
		{domain.TrackingPending, "", false},
		{domain.TrackingPicked, domain.StatusShipped, true},
		{domain.TrackingInTransit, domain.StatusShipped, true},
		{domain.TrackingDelivered, domain.StatusDelivered, true},
		{domain.TrackingFailed, "", false},
	}

	for _, tt := range tests {
		got, ok := tt.tracking.OrderStatus()
		if got != tt.want || ok != tt.ok {
			t.Errorf("%s.OrderStatus() = %q, %v; want %q, %v", tt.tracking, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNewOrderNumber(t *testing.T) {
	at := time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC)
	number := domain.NewOrderNumber(at)

	if !regexp.MustCompile(`^ORD-20261018-[A-Z2-7]{6}$`).MatchString(number) {
		t.Errorf("unexpected order number %q", number)
	}
	if domain.NewOrderNumber(at) == number {
		t.Error("expected distinct order numbers")
	}
}
