package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/coupons/domain"
	"github.com/dejobratic/storefront/internal/coupons/ports"
	"github.com/dejobratic/storefront/internal/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, repo *Repository, maxUses *int) domain.Coupon {
	t.Helper()
	c := domain.Coupon{
		ID:      "c-1",
		Code:    "FLASH",
		Type:    domain.DiscountPercentage,
		Value:   decimal.NewFromInt(10),
		MaxUses: maxUses,
		Active:  true,
	}
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

func TestClaimUsage(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	one := 1

	t.Run("exactly one of many concurrent claims wins the last use", func(t *testing.T) {
		repo := NewRepository()
		seed(t, repo, &one)

		var wins, limited atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := repo.ClaimUsage(ctx, "FLASH", "cust", string(rune('a'+i)), now)
				var rej *domain.RejectionError
				switch {
				case err == nil:
					wins.Add(1)
				case errors.As(err, &rej) && rej.Reason == domain.ReasonUsageLimitReached:
					limited.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(31), limited.Load())

		usages, err := repo.ListUsages(ctx, "FLASH")
		require.NoError(t, err)
		assert.Len(t, usages, 1)
	})

	t.Run("claiming twice for one order records a single usage", func(t *testing.T) {
		repo := NewRepository()
		seed(t, repo, nil)

		require.NoError(t, repo.ClaimUsage(ctx, "FLASH", "cust", "ORD-1", now))
		require.NoError(t, repo.ClaimUsage(ctx, "FLASH", "cust", "ORD-1", now))

		c, err := repo.GetByCode(ctx, "FLASH")
		require.NoError(t, err)
		assert.Equal(t, 1, c.UsedCount)
	})

	t.Run("unknown codes are rejected as not found", func(t *testing.T) {
		repo := NewRepository()
		err := repo.ClaimUsage(ctx, "NOPE", "cust", "ORD-1", now)

		var rej *domain.RejectionError
		require.True(t, errors.As(err, &rej))
		assert.Equal(t, domain.ReasonNotFound, rej.Reason)
	})

	t.Run("failed transactions release the claim", func(t *testing.T) {
		repo := NewRepository()
		seed(t, repo, &one)
		tm := database.NewMemoryTxManager()

		err := tm.WithTransaction(ctx, func(ctx context.Context) error {
			if err := repo.ClaimUsage(ctx, "FLASH", "cust", "ORD-1", now); err != nil {
				return err
			}
			return errors.New("order insert failed")
		})
		require.Error(t, err)

		c, err := repo.GetByCode(ctx, "FLASH")
		require.NoError(t, err)
		assert.Equal(t, 0, c.UsedCount)

		require.NoError(t, repo.ClaimUsage(ctx, "FLASH", "cust", "ORD-2", now))
	})
}

func TestCreate(t *testing.T) {
	repo := NewRepository()
	seed(t, repo, nil)

	err := repo.Create(context.Background(), domain.Coupon{Code: "FLASH"})
	assert.ErrorIs(t, err, ports.ErrDuplicateCode)
}
