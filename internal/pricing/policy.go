package pricing

import "github.com/shopspring/decimal"

// Policy holds the store-wide shipping and tax rules.
type Policy struct {
	FlatShipping          int64
	FreeShippingThreshold int64
	TaxRatePercent        decimal.Decimal
}

// Shipping is free at or above the threshold, flat otherwise.
func (p Policy) Shipping(subtotal int64) int64 {
	if p.FreeShippingThreshold > 0 && subtotal >= p.FreeShippingThreshold {
		return 0
	}
	return p.FlatShipping
}

// Tax is charged on the amount left after coupon discounts.
func (p Policy) Tax(taxable int64) int64 {
	return PercentOf(taxable, p.TaxRatePercent)
}
