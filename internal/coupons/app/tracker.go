package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/coupons/domain"
	"github.com/dejobratic/storefront/internal/coupons/ports"
)

// UsageTracker records coupon redemptions against orders.
type UsageTracker struct {
	repo   ports.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewUsageTracker(repo ports.Repository, logger *slog.Logger) *UsageTracker {
	return &UsageTracker{repo: repo, logger: logger, now: time.Now}
}

// RecordUsage claims one use of code for orderNumber. It is safe to call
// again for the same order.
func (t *UsageTracker) RecordUsage(ctx context.Context, code, customerID, orderNumber string) error {
	code = domain.NormalizeCode(code)
	if err := t.repo.ClaimUsage(ctx, code, customerID, orderNumber, t.now().UTC()); err != nil {
		t.logger.InfoContext(ctx, "coupon usage refused",
			"coupon_code", code,
			"order_number", orderNumber,
			"error", err,
		)
		return err
	}
	return nil
}
