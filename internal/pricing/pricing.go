// Package pricing turns a priced cart plus incentives into a payable total.
// All amounts are integer minor currency units.
package pricing

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Line is one priced cart line.
type Line struct {
	UnitPrice int64
	Quantity  int
}

// Breakdown is the itemised result of ComputeTotal.
type Breakdown struct {
	Subtotal        int64 `json:"subtotal"`
	CouponDiscount  int64 `json:"coupon_discount"`
	LoyaltyDiscount int64 `json:"loyalty_discount"`
	Shipping        int64 `json:"shipping"`
	Tax             int64 `json:"tax"`
	Total           int64 `json:"total"`
}

// Subtotal sums unit price times quantity over all lines.
func Subtotal(lines []Line) int64 {
	var subtotal int64
	for _, l := range lines {
		subtotal += l.UnitPrice * int64(l.Quantity)
	}
	return subtotal
}

// ComputeTotal returns max(0, subtotal - couponDiscount - loyaltyRedemption + tax + shipping).
func ComputeTotal(lines []Line, couponDiscount, loyaltyRedemption, shipping, tax int64) Breakdown {
	subtotal := Subtotal(lines)
	total := subtotal - couponDiscount - loyaltyRedemption + tax + shipping
	if total < 0 {
		total = 0
	}
	return Breakdown{
		Subtotal:        subtotal,
		CouponDiscount:  couponDiscount,
		LoyaltyDiscount: loyaltyRedemption,
		Shipping:        shipping,
		Tax:             tax,
		Total:           total,
	}
}

// PercentOf returns percent% of amount rounded half away from zero to a whole
// minor unit, i.e. two decimals of the major unit.
func PercentOf(amount int64, percent decimal.Decimal) int64 {
	if amount <= 0 || !percent.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(percent).Div(hundred).Round(0).IntPart()
}
