package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/storefront/internal/pricing"
	"github.com/shopspring/decimal"
)

// DiscountType selects how Value is applied.
type DiscountType string

const (
	// DiscountPercentage takes Value percent of the order amount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes Value minor units off the order amount.
	DiscountFixed DiscountType = "fixed"
)

// Reason explains why a coupon cannot be applied.
type Reason string

const (
	ReasonNotFound          Reason = "NOT_FOUND"
	ReasonInactive          Reason = "INACTIVE"
	ReasonExpired           Reason = "EXPIRED"
	ReasonUsageLimitReached Reason = "USAGE_LIMIT_REACHED"
	ReasonMinimumNotMet     Reason = "MINIMUM_NOT_MET"
)

// RejectionError carries the Reason a coupon was refused.
type RejectionError struct {
	Code   string
	Reason Reason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", e.Code, e.Reason)
}

// Reject builds a RejectionError.
func Reject(code string, reason Reason) error {
	return &RejectionError{Code: code, Reason: reason}
}

// Coupon is a discount rule. Codes are stored upper-case.
type Coupon struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Type           DiscountType    `json:"discount_type"`
	Value          decimal.Decimal `json:"value"`
	MinOrderAmount int64           `json:"min_order_amount"`
	MaxDiscount    *int64          `json:"max_discount,omitempty"`
	MaxUses        *int            `json:"max_uses,omitempty"`
	UsedCount      int             `json:"used_count"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	Active         bool            `json:"active"`
	Description    string          `json:"description,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Usage records one redemption of a coupon by an order.
type Usage struct {
	CouponID    string    `json:"coupon_id"`
	CustomerID  string    `json:"customer_id"`
	OrderNumber string    `json:"order_number"`
	UsedAt      time.Time `json:"used_at"`
}

// Quote is the outcome of evaluating a coupon against an order amount.
type Quote struct {
	Code     string `json:"code"`
	Valid    bool   `json:"valid"`
	Discount int64  `json:"discount"`
	Reason   Reason `json:"reason,omitempty"`
}

// NormalizeCode makes codes case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the rule itself, independent of any order.
func (c Coupon) Validate() error {
	if c.Code == "" {
		return errors.New("code is required")
	}
	switch c.Type {
	case DiscountPercentage:
		if c.Value.GreaterThan(decimal.NewFromInt(100)) {
			return errors.New("percentage value must be at most 100")
		}
	case DiscountFixed:
		if !c.Value.Equal(c.Value.Truncate(0)) {
			return errors.New("fixed value must be a whole number of minor units")
		}
	default:
		return fmt.Errorf("unknown discount type %q", c.Type)
	}
	if !c.Value.IsPositive() {
		return errors.New("value must be positive")
	}
	if c.MinOrderAmount < 0 {
		return errors.New("min_order_amount must not be negative")
	}
	if c.MaxDiscount != nil && *c.MaxDiscount <= 0 {
		return errors.New("max_discount must be positive")
	}
	if c.MaxUses != nil && *c.MaxUses <= 0 {
		return errors.New("max_uses must be positive")
	}
	return nil
}

// Claimable reports why the coupon cannot take another use at now, or "".
// Checks run in order: active, expiry, usage cap.
func (c Coupon) Claimable(now time.Time) Reason {
	if !c.Active {
		return ReasonInactive
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return ReasonExpired
	}
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return ReasonUsageLimitReached
	}
	return ""
}

// Evaluate applies every check to orderAmount and computes the discount.
func (c Coupon) Evaluate(orderAmount int64, now time.Time) Quote {
	if reason := c.Claimable(now); reason != "" {
		return Quote{Code: c.Code, Reason: reason}
	}
	if orderAmount < c.MinOrderAmount {
		return Quote{Code: c.Code, Reason: ReasonMinimumNotMet}
	}
	return Quote{Code: c.Code, Valid: true, Discount: c.Discount(orderAmount)}
}

// Discount is the amount taken off orderAmount, never more than orderAmount.
// Percentage discounts are rounded to a whole minor unit before the cap.
func (c Coupon) Discount(orderAmount int64) int64 {
	if orderAmount <= 0 {
		return 0
	}

	var discount int64
	switch c.Type {
	case DiscountPercentage:
		discount = pricing.PercentOf(orderAmount, c.Value)
		if c.MaxDiscount != nil && discount > *c.MaxDiscount {
			discount = *c.MaxDiscount
		}
	case DiscountFixed:
		discount = c.Value.IntPart()
	}

	if discount > orderAmount {
		discount = orderAmount
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
