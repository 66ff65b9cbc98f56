package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/coupons/adapters/memory"
	"github.com/dejobratic/storefront/internal/coupons/domain"
	"github.com/dejobratic/storefront/internal/coupons/ports"
	"github.com/dejobratic/storefront/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil))), repo
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes the code and stores the rule", func(t *testing.T) {
		svc, _ := newTestService(t)
		created, err := svc.Create(ctx, CreateCouponInput{Code: " diwali10 ", Type: "percentage", Value: "10"})
		require.NoError(t, err)
		assert.Equal(t, "DIWALI10", created.Code)
		assert.True(t, created.Active)

		got, err := svc.Get(ctx, "Diwali10")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("reports field errors", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Create(ctx, CreateCouponInput{Code: "X", Type: "bogo", Value: "abc"})

		var verr *validation.Error
		require.True(t, errors.As(err, &verr))
		assert.Contains(t, verr.Fields, "code")
		assert.Contains(t, verr.Fields, "discount_type")
		assert.Contains(t, verr.Fields, "value")
	})

	t.Run("rejects percentages above one hundred", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Create(ctx, CreateCouponInput{Code: "HUGE", Type: "percentage", Value: "150"})

		var verr *validation.Error
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("refuses duplicate codes case-insensitively", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Create(ctx, CreateCouponInput{Code: "SAVE", Type: "fixed", Value: "5000"})
		require.NoError(t, err)

		_, err = svc.Create(ctx, CreateCouponInput{Code: "save", Type: "fixed", Value: "5000"})
		assert.ErrorIs(t, err, ports.ErrDuplicateCode)
	})
}

func TestQuote(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown codes are not found rather than an error", func(t *testing.T) {
		svc, _ := newTestService(t)
		q, err := svc.Quote(ctx, "missing", 1000)
		require.NoError(t, err)
		assert.False(t, q.Valid)
		assert.Equal(t, domain.ReasonNotFound, q.Reason)
	})

	t.Run("deactivated coupons are inactive", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Create(ctx, CreateCouponInput{Code: "GONE", Type: "fixed", Value: "100"})
		require.NoError(t, err)
		require.NoError(t, svc.Deactivate(ctx, "gone"))

		q, err := svc.Quote(ctx, "GONE", 1000)
		require.NoError(t, err)
		assert.Equal(t, domain.ReasonInactive, q.Reason)
	})

	t.Run("expiry is checked against the clock", func(t *testing.T) {
		svc, _ := newTestService(t)
		expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		_, err := svc.Create(ctx, CreateCouponInput{Code: "NEWYEAR", Type: "fixed", Value: "100", ExpiresAt: &expiry})
		require.NoError(t, err)

		svc.Validator.now = func() time.Time { return expiry.Add(time.Second) }
		q, err := svc.Quote(ctx, "NEWYEAR", 1000)
		require.NoError(t, err)
		assert.Equal(t, domain.ReasonExpired, q.Reason)
	})
}

func TestWelcomeCoupon(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	coupon, err := svc.IssueWelcomeCoupon(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(coupon.Code, welcomeCodePrefix))
	require.NotNil(t, coupon.MaxUses)
	assert.Equal(t, 1, *coupon.MaxUses)

	q, err := svc.Quote(ctx, coupon.Code, 100000)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), q.Discount)

	require.NoError(t, svc.RecordUsage(ctx, coupon.Code, "cust-1", "ORD-1"))

	q, err = svc.Quote(ctx, coupon.Code, 100000)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonUsageLimitReached, q.Reason)

	err = svc.RecordUsage(ctx, coupon.Code, "cust-2", "ORD-2")
	var rej *domain.RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, domain.ReasonUsageLimitReached, rej.Reason)

	usages, err := svc.Usages(ctx, coupon.Code)
	require.NoError(t, err)
	assert.Len(t, usages, 1)
}
