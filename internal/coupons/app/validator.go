package app

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/storefront/internal/coupons/domain"
	"github.com/dejobratic/storefront/internal/coupons/ports"
)

// Validator evaluates a coupon against an order amount without side effects.
type Validator struct {
	repo ports.Repository
	now  func() time.Time
}

func NewValidator(repo ports.Repository) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

// Quote checks, in order, that the code exists, is active, is not expired,
// has uses left and that orderAmount meets the minimum.
func (v *Validator) Quote(ctx context.Context, code string, orderAmount int64) (domain.Quote, error) {
	code = domain.NormalizeCode(code)
	coupon, err := v.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return domain.Quote{Code: code, Reason: domain.ReasonNotFound}, nil
		}
		return domain.Quote{}, err
	}
	return coupon.Evaluate(orderAmount, v.now().UTC()), nil
}
