package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	coupons "github.com/dejobratic/storefront/internal/coupons/domain"
	loyalty "github.com/dejobratic/storefront/internal/loyalty/domain"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/payments"
	"github.com/dejobratic/storefront/internal/pricing"
	"github.com/dejobratic/storefront/internal/validation"
	"github.com/google/uuid"
)

const maxNumberAttempts = 3

// CartLine is one submitted cart entry. UnitPrice is the price the client
// showed; the catalog price is what gets charged.
type CartLine struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=100"`
	Variant   string `json:"variant,omitempty" validate:"max=64"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0"`
}

// PaymentInput is the payment descriptor. Prepaid orders carry the gateway
// callback fields, COD orders carry none.
type PaymentInput struct {
	Mode             string `json:"mode" validate:"required,oneof=cod prepaid"`
	Method           string `json:"method,omitempty" validate:"max=32"`
	InstrumentRef    string `json:"instrument_ref,omitempty" validate:"max=64"`
	GatewayOrderID   string `json:"gateway_order_id,omitempty" validate:"required_if=Mode prepaid,max=128"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty" validate:"required_if=Mode prepaid,max=128"`
	Signature        string `json:"signature,omitempty" validate:"required_if=Mode prepaid,max=256"`
}

// PlaceOrderCommand is one checkout attempt.
type PlaceOrderCommand struct {
	CustomerID      string          `json:"-" validate:"required"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty" validate:"max=128"`
	Items           []CartLine      `json:"items" validate:"required,min=1,max=50,dive"`
	ShippingAddress domain.Address  `json:"shipping_address" validate:"required"`
	BillingAddress  *domain.Address `json:"billing_address,omitempty" validate:"omitempty"`
	Payment         PaymentInput    `json:"payment" validate:"required"`
	CouponCode      string          `json:"coupon_code,omitempty" validate:"max=32"`
	LoyaltyPoints   int64           `json:"loyalty_points,omitempty" validate:"gte=0"`
}

// ErrorKind separates the ways a checkout can be refused.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindRejected            ErrorKind = "rejected"
	KindPaymentNotAuthentic ErrorKind = "payment_not_authentic"
)

const (
	ReasonInsufficientBalance    = "INSUFFICIENT_BALANCE"
	ReasonRedemptionExceedsTotal = "REDEMPTION_EXCEEDS_TOTAL"
)

// CheckoutError is a refusal the customer can act on. Nothing has been
// persisted when it is returned.
type CheckoutError struct {
	Kind   ErrorKind
	Reason string
	Fields map[string]string
	Err    error
}

func (e *CheckoutError) Error() string {
	switch e.Kind {
	case KindRejected:
		return "checkout rejected: " + e.Reason
	case KindPaymentNotAuthentic:
		return "payment could not be verified"
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "invalid input"
	}
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

func rejected(reason string, err error) *CheckoutError {
	return &CheckoutError{Kind: KindRejected, Reason: reason, Err: err}
}

func invalidInput(err error) error {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return &CheckoutError{Kind: KindInvalidInput, Fields: verr.Fields, Err: err}
	}
	return err
}

// CheckoutResult is the order summary plus whether it was an idempotent replay.
type CheckoutResult struct {
	Order    domain.Summary
	Replayed bool
}

type CheckoutConfig struct {
	PointValueMinor int64
	Pricing         pricing.Policy
	DeliveryDays    int
	PaymentTimeout  time.Duration
}

type CheckoutCommandHandler interface {
	Handle(ctx context.Context, cmd PlaceOrderCommand) (*CheckoutResult, error)
}

// CheckoutDeps are the collaborators of PlaceOrderHandler.
type CheckoutDeps struct {
	Repo       ports.OrderRepository
	Tx         ports.TxManager
	Payments   ports.PaymentVerifier
	Catalog    ports.Catalog
	Coupons    ports.CouponValidator
	Usage      ports.CouponUsageTracker
	Loyalty    ports.Loyalty
	PostCommit *PostCommitRunner
	Logger     *slog.Logger
}

// PlaceOrderHandler runs the checkout pipeline: idempotency lookup, payment
// verification, repricing, coupon and loyalty checks, then one transaction
// that stores the order, claims the coupon use and debits the points.
// Post-commit side effects never fail the checkout.
type PlaceOrderHandler struct {
	deps CheckoutDeps
	cfg  CheckoutConfig
	now  func() time.Time
}

func NewPlaceOrderHandler(deps CheckoutDeps, cfg CheckoutConfig) *PlaceOrderHandler {
	if cfg.PointValueMinor <= 0 {
		cfg.PointValueMinor = 100
	}
	if cfg.DeliveryDays <= 0 {
		cfg.DeliveryDays = 7
	}
	return &PlaceOrderHandler{deps: deps, cfg: cfg, now: time.Now}
}

func (h *PlaceOrderHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) (*CheckoutResult, error) {
	if err := validation.Struct(cmd); err != nil {
		return nil, invalidInput(err)
	}

	if existing, err := h.previous(ctx, cmd); err != nil || existing != nil {
		return existing, err
	}

	result, err := h.place(ctx, cmd)
	var cerr *CheckoutError
	if errors.As(err, &cerr) && cerr.Kind == KindRejected {
		// A concurrent submission under the same key may have spent the
		// coupon or points this attempt was rejected for.
		if existing, lookupErr := h.previous(ctx, cmd); lookupErr == nil && existing != nil {
			return existing, nil
		}
	}
	return result, err
}

// previous returns the replay of an order already placed under the
// command's idempotency key, or nil.
func (h *PlaceOrderHandler) previous(ctx context.Context, cmd PlaceOrderCommand) (*CheckoutResult, error) {
	if cmd.IdempotencyKey == "" {
		return nil, nil
	}
	existing, err := h.deps.Repo.GetByIdempotencyKey(ctx, cmd.CustomerID, cmd.IdempotencyKey)
	switch {
	case err == nil:
		return &CheckoutResult{Order: existing.Summary(), Replayed: true}, nil
	case errors.Is(err, ports.ErrNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("look up idempotency key: %w", err)
	}
}

func (h *PlaceOrderHandler) place(ctx context.Context, cmd PlaceOrderCommand) (*CheckoutResult, error) {
	payment, err := h.verifyPayment(ctx, cmd.Payment)
	if err != nil {
		return nil, err
	}

	items, err := h.reprice(ctx, cmd.Items)
	if err != nil {
		return nil, err
	}

	order, err := h.price(ctx, cmd, items)
	if err != nil {
		return nil, err
	}
	order.Payment = payment
	order.Status = domain.StatusPending
	if payment.Mode == domain.PaymentPrepaid {
		order.Status = domain.StatusConfirmed
	}

	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("build order: %w", err)
	}

	committed, replayed, err := h.commit(ctx, order)
	if err != nil {
		return nil, err
	}
	if !replayed && h.deps.PostCommit != nil {
		h.deps.PostCommit.Run(ctx, *committed)
	}

	return &CheckoutResult{Order: committed.Summary(), Replayed: replayed}, nil
}

func (h *PlaceOrderHandler) verifyPayment(ctx context.Context, in PaymentInput) (domain.Payment, error) {
	payment := domain.Payment{
		Mode:          domain.PaymentMode(in.Mode),
		Method:        in.Method,
		InstrumentRef: maskInstrument(in.InstrumentRef),
	}
	if payment.Mode == domain.PaymentCOD {
		payment.Verification = domain.VerificationNotRequired
		return payment, nil
	}

	vctx := ctx
	if h.cfg.PaymentTimeout > 0 {
		var cancel context.CancelFunc
		vctx, cancel = context.WithTimeout(ctx, h.cfg.PaymentTimeout)
		defer cancel()
	}

	if err := h.deps.Payments.Verify(vctx, in.GatewayOrderID, in.GatewayPaymentID, in.Signature); err != nil {
		if errors.Is(err, payments.ErrForged) {
			return payment, &CheckoutError{Kind: KindPaymentNotAuthentic, Err: err}
		}
		return payment, fmt.Errorf("verify payment: %w", err)
	}

	payment.GatewayOrderID = in.GatewayOrderID
	payment.GatewayPaymentID = in.GatewayPaymentID
	payment.Verification = domain.VerificationVerified
	return payment, nil
}

// reprice replaces client prices with live catalog prices and snapshots
// name, points and weight.
func (h *PlaceOrderHandler) reprice(ctx context.Context, lines []CartLine) ([]domain.LineItem, error) {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}

	products, err := h.deps.Catalog.FindProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load catalog prices: %w", err)
	}

	fields := make(map[string]string)
	items := make([]domain.LineItem, 0, len(lines))
	for i, line := range lines {
		product, ok := products[line.ProductID]
		if !ok || !product.Active {
			fields[fmt.Sprintf("items[%d].product_id", i)] = "unknown or unavailable product"
			continue
		}
		if line.UnitPrice != 0 && line.UnitPrice != product.PriceMinor {
			h.deps.Logger.WarnContext(ctx, "client price differs from catalog",
				"product_id", product.ID,
				"client_price", line.UnitPrice,
				"catalog_price", product.PriceMinor,
			)
		}
		items = append(items, domain.LineItem{
			ProductID:     product.ID,
			Name:          product.Name,
			UnitPrice:     product.PriceMinor,
			Quantity:      line.Quantity,
			Variant:       line.Variant,
			LoyaltyPoints: product.LoyaltyPoints,
			WeightGrams:   product.WeightGrams,
		})
	}
	if len(fields) > 0 {
		return nil, &CheckoutError{Kind: KindInvalidInput, Fields: fields, Err: errors.New("cart contains unavailable products")}
	}
	return items, nil
}

// price applies the coupon, shipping, tax and loyalty redemption and returns
// the unsaved order.
func (h *PlaceOrderHandler) price(ctx context.Context, cmd PlaceOrderCommand, items []domain.LineItem) (domain.Order, error) {
	order := domain.Order{Items: items}
	lines := order.Lines()
	subtotal := pricing.Subtotal(lines)

	var discount int64
	if cmd.CouponCode != "" {
		quote, err := h.deps.Coupons.Quote(ctx, cmd.CouponCode, subtotal)
		if err != nil {
			return order, fmt.Errorf("validate coupon: %w", err)
		}
		if !quote.Valid {
			return order, rejected(string(quote.Reason), nil)
		}
		discount = quote.Discount
		order.CouponCode = quote.Code
	}

	shipping := h.cfg.Pricing.Shipping(subtotal)
	tax := h.cfg.Pricing.Tax(subtotal - discount)

	var loyaltyDiscount int64
	if cmd.LoyaltyPoints > 0 {
		balance, err := h.deps.Loyalty.Balance(ctx, cmd.CustomerID)
		if err != nil {
			return order, fmt.Errorf("read loyalty balance: %w", err)
		}
		if cmd.LoyaltyPoints > balance {
			return order, rejected(ReasonInsufficientBalance, nil)
		}
		loyaltyDiscount = loyalty.PointsValue(cmd.LoyaltyPoints, h.cfg.PointValueMinor)
		if before := pricing.ComputeTotal(lines, discount, 0, shipping, tax).Total; loyaltyDiscount > before {
			return order, rejected(ReasonRedemptionExceedsTotal, nil)
		}
	}

	breakdown := pricing.ComputeTotal(lines, discount, loyaltyDiscount, shipping, tax)
	now := h.now().UTC()

	billing := cmd.ShippingAddress
	if cmd.BillingAddress != nil {
		billing = *cmd.BillingAddress
	}

	order.ID = uuid.NewString()
	order.Number = domain.NewOrderNumber(now)
	order.CustomerID = cmd.CustomerID
	order.IdempotencyKey = cmd.IdempotencyKey
	order.ShippingAddress = cmd.ShippingAddress
	order.BillingAddress = billing
	order.Subtotal = breakdown.Subtotal
	order.Discount = breakdown.CouponDiscount
	order.LoyaltyPoints = cmd.LoyaltyPoints
	order.LoyaltyDiscount = breakdown.LoyaltyDiscount
	order.Shipping = breakdown.Shipping
	order.Tax = breakdown.Tax
	order.Total = breakdown.Total
	order.EstimatedDelivery = now.AddDate(0, 0, h.cfg.DeliveryDays)
	order.CreatedAt = now
	order.UpdatedAt = now
	return order, nil
}

// commit stores the order, claims the coupon use and debits the points in
// one transaction. When a concurrent attempt with the same idempotency key
// won, its order is returned with replayed set.
func (h *PlaceOrderHandler) commit(ctx context.Context, order domain.Order) (*domain.Order, bool, error) {
	for attempt := 1; ; attempt++ {
		err := h.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
			if err := h.deps.Repo.Create(ctx, order); err != nil {
				return err
			}
			if order.CouponCode != "" {
				if err := h.deps.Usage.RecordUsage(ctx, order.CouponCode, order.CustomerID, order.Number); err != nil {
					return err
				}
			}
			if order.LoyaltyPoints > 0 {
				if _, err := h.deps.Loyalty.Redeem(ctx, order.CustomerID, order.LoyaltyPoints, order.Number, "Redeemed on order "+order.Number); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			return &order, false, nil
		}

		var rejection *coupons.RejectionError
		switch {
		case errors.Is(err, ports.ErrDuplicateOrderNumber) && attempt < maxNumberAttempts:
			order.Number = domain.NewOrderNumber(order.CreatedAt)
			continue
		case errors.Is(err, ports.ErrDuplicateIdempotencyKey):
			winner, err := h.deps.Repo.GetByIdempotencyKey(ctx, order.CustomerID, order.IdempotencyKey)
			if err != nil {
				return nil, false, fmt.Errorf("load order for idempotency key: %w", err)
			}
			return winner, true, nil
		case errors.As(err, &rejection):
			return nil, false, rejected(string(rejection.Reason), err)
		case errors.Is(err, loyalty.ErrInsufficientBalance):
			return nil, false, rejected(ReasonInsufficientBalance, err)
		default:
			return nil, false, fmt.Errorf("persist order: %w", err)
		}
	}
}

func maskInstrument(ref string) string {
	ref = strings.TrimSpace(ref)
	if len(ref) <= 4 {
		return ref
	}
	return strings.Repeat("*", len(ref)-4) + ref[len(ref)-4:]
}
