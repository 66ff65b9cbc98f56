package domain

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/pricing"
)

// OrderStatus captures the lifecycle of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

var statusRank = map[OrderStatus]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == StatusCancelled
}

// IsTerminal indicates whether the order can no longer change status.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo allows forward moves along the lifecycle, skipping steps if
// needed, and cancellation from any state before delivery.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next || s.IsTerminal() || !next.Valid() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return statusRank[next] > statusRank[s]
}

// PaymentMode distinguishes cash on delivery from gateway prepaid orders.
type PaymentMode string

const (
	PaymentCOD     PaymentMode = "cod"
	PaymentPrepaid PaymentMode = "prepaid"
)

// Verification records whether the gateway signature was checked.
type Verification string

const (
	VerificationNotRequired Verification = "not_required"
	VerificationVerified    Verification = "verified"
)

// Payment describes how the order is paid. InstrumentRef is masked before storage.
type Payment struct {
	Mode             PaymentMode  `json:"mode"`
	Method           string       `json:"method,omitempty"`
	InstrumentRef    string       `json:"instrument_ref,omitempty"`
	GatewayOrderID   string       `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string       `json:"gateway_payment_id,omitempty"`
	Verification     Verification `json:"verification"`
}

type Address struct {
	Name       string `json:"name" validate:"required,max=100"`
	Phone      string `json:"phone" validate:"required,min=7,max=20"`
	Email      string `json:"email" validate:"omitempty,email"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=12"`
	Country    string `json:"country,omitempty" validate:"max=56"`
}

// LineItem is a priced snapshot of a product taken at checkout. It never
// changes after the order is created.
type LineItem struct {
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	UnitPrice     int64  `json:"unit_price"`
	Quantity      int    `json:"quantity"`
	Variant       string `json:"variant,omitempty"`
	LoyaltyPoints int64  `json:"loyalty_points"`
	WeightGrams   int    `json:"weight_grams"`
}

func (l LineItem) Total() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// TrackingStatus is the carrier state mapped onto our own vocabulary.
type TrackingStatus string

const (
	TrackingPending   TrackingStatus = "pending"
	TrackingPicked    TrackingStatus = "picked"
	TrackingInTransit TrackingStatus = "in_transit"
	TrackingDelivered TrackingStatus = "delivered"
	TrackingFailed    TrackingStatus = "failed"
)

func (t TrackingStatus) Valid() bool {
	switch t {
	case TrackingPending, TrackingPicked, TrackingInTransit, TrackingDelivered, TrackingFailed:
		return true
	}
	return false
}

// OrderStatus returns the order status a tracking status implies, if any.
func (t TrackingStatus) OrderStatus() (OrderStatus, bool) {
	switch t {
	case TrackingPicked, TrackingInTransit:
		return StatusShipped, true
	case TrackingDelivered:
		return StatusDelivered, true
	default:
		return "", false
	}
}

type TrackingEvent struct {
	Status      string    `json:"status"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	At          time.Time `json:"at"`
}

// Shipment is the carrier side of an order. An empty Waybill means no
// shipment has been created yet.
type Shipment struct {
	Waybill        string          `json:"waybill,omitempty"`
	TrackingURL    string          `json:"tracking_url,omitempty"`
	TrackingStatus TrackingStatus  `json:"tracking_status,omitempty"`
	LastLocation   string          `json:"last_location,omitempty"`
	History        []TrackingEvent `json:"history,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
}

// Order represents one finalized purchase.
type Order struct {
	ID                string      `json:"id"`
	Number            string      `json:"order_number"`
	CustomerID        string      `json:"customer_id"`
	IdempotencyKey    string      `json:"idempotency_key,omitempty"`
	Items             []LineItem  `json:"items"`
	ShippingAddress   Address     `json:"shipping_address"`
	BillingAddress    Address     `json:"billing_address"`
	Payment           Payment     `json:"payment"`
	Subtotal          int64       `json:"subtotal"`
	Discount          int64       `json:"discount"`
	LoyaltyPoints     int64       `json:"loyalty_points"`
	LoyaltyDiscount   int64       `json:"loyalty_discount"`
	Shipping          int64       `json:"shipping"`
	Tax               int64       `json:"tax"`
	Total             int64       `json:"total"`
	CouponCode        string      `json:"coupon_code,omitempty"`
	Status            OrderStatus `json:"status"`
	Shipment          Shipment    `json:"shipment"`
	EstimatedDelivery time.Time   `json:"estimated_delivery"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Lines converts the snapshot into pricing lines.
func (o Order) Lines() []pricing.Line {
	lines := make([]pricing.Line, len(o.Items))
	for i, item := range o.Items {
		lines[i] = pricing.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity}
	}
	return lines
}

// EarnedPoints is the per-product point schedule summed over the order.
func (o Order) EarnedPoints() int64 {
	var points int64
	for _, item := range o.Items {
		points += item.LoyaltyPoints * int64(item.Quantity)
	}
	return points
}

func (o Order) WeightGrams() int {
	var grams int
	for _, item := range o.Items {
		grams += item.WeightGrams * item.Quantity
	}
	return grams
}

func (o Order) Quantity() int {
	var n int
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// Breakdown recomputes the priced view of the stored snapshot.
func (o Order) Breakdown() pricing.Breakdown {
	return pricing.ComputeTotal(o.Lines(), o.Discount, o.LoyaltyDiscount, o.Shipping, o.Tax)
}

// Validate checks the order is internally consistent before it is stored.
func (o Order) Validate() error {
	if o.Number == "" || o.CustomerID == "" {
		return errors.New("order number and customer are required")
	}
	if len(o.Items) == 0 {
		return errors.New("order has no items")
	}
	for _, item := range o.Items {
		if item.Quantity <= 0 || item.UnitPrice < 0 {
			return fmt.Errorf("invalid line item %s", item.ProductID)
		}
	}
	if !o.Status.Valid() {
		return fmt.Errorf("invalid status %q", o.Status)
	}
	b := o.Breakdown()
	if b.Subtotal != o.Subtotal || b.Total != o.Total {
		return fmt.Errorf("totals do not balance: subtotal %d/%d total %d/%d", o.Subtotal, b.Subtotal, o.Total, b.Total)
	}
	return nil
}

// Summary is what checkout returns to the customer.
type Summary struct {
	OrderNumber       string            `json:"order_number"`
	Status            OrderStatus       `json:"status"`
	Total             int64             `json:"total"`
	Breakdown         pricing.Breakdown `json:"breakdown"`
	EstimatedDelivery time.Time         `json:"estimated_delivery"`
}

func (o Order) Summary() Summary {
	return Summary{
		OrderNumber:       o.Number,
		Status:            o.Status,
		Total:             o.Total,
		Breakdown:         o.Breakdown(),
		EstimatedDelivery: o.EstimatedDelivery,
	}
}

// NewOrderNumber returns a human readable number such as ORD-20261018-K3JQ7M.
func NewOrderNumber(at time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", at.UTC().Format("20060102"), rand.Text()[:6])
}
