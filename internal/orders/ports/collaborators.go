package ports

import (
	"context"

	"github.com/dejobratic/storefront/internal/catalog"
	coupons "github.com/dejobratic/storefront/internal/coupons/domain"
	"github.com/dejobratic/storefront/internal/orders/domain"
)

// TxManager runs fn in one storage transaction.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// PaymentVerifier checks a gateway callback signature.
type PaymentVerifier interface {
	Verify(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) error
}

// Catalog provides live prices for server-side repricing.
type Catalog interface {
	FindProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

// CouponValidator evaluates a coupon without side effects.
type CouponValidator interface {
	Quote(ctx context.Context, code string, orderAmount int64) (coupons.Quote, error)
}

// CouponUsageTracker atomically claims one use of a coupon for an order.
type CouponUsageTracker interface {
	RecordUsage(ctx context.Context, code, customerID, orderNumber string) error
}

// Loyalty is the loyalty ledger as seen by checkout.
type Loyalty interface {
	Balance(ctx context.Context, customerID string) (int64, error)
	Earn(ctx context.Context, customerID string, points int64, orderRef, description string) (int64, error)
	Redeem(ctx context.Context, customerID string, points int64, orderRef, description string) (int64, error)
}

// CartStore is cleared once an order is placed.
type CartStore interface {
	Clear(ctx context.Context, customerID string) error
}

// ShipmentDispatcher requests a waybill for an order and records it on the order.
type ShipmentDispatcher interface {
	Dispatch(ctx context.Context, order domain.Order) (*domain.Shipment, error)
}

// FollowupQueue hands failed post-commit tasks to the reconciler.
type FollowupQueue interface {
	Enqueue(ctx context.Context, followup domain.Followup) error
}
