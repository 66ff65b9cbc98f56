//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/coupons/adapters/postgres"
	"github.com/dejobratic/storefront/internal/coupons/domain"
	"github.com/dejobratic/storefront/internal/coupons/ports"
	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/database/dbtest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newCoupon(code string, maxUses *int) domain.Coupon {
	now := time.Now().UTC().Truncate(time.Microsecond)
	maxDiscount := int64(20000)
	return domain.Coupon{
		ID:          uuid.NewString(),
		Code:        code,
		Type:        domain.DiscountPercentage,
		Value:       decimal.RequireFromString("12.5"),
		MaxDiscount: &maxDiscount,
		MaxUses:     maxUses,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRepository(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := postgres.NewRepository(pool)
	ctx := context.Background()

	t.Run("round trips a coupon with a decimal value", func(t *testing.T) {
		c := newCoupon("ROUND", nil)
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		got, err := repo.GetByCode(ctx, "ROUND")
		if err != nil {
			t.Fatalf("GetByCode() failed: %v", err)
		}
		if !got.Value.Equal(c.Value) {
			t.Errorf("expected value %s, got %s", c.Value, got.Value)
		}
		if got.MaxDiscount == nil || *got.MaxDiscount != 20000 {
			t.Errorf("expected max discount 20000, got %v", got.MaxDiscount)
		}
	})

	t.Run("rejects duplicate codes", func(t *testing.T) {
		if err := repo.Create(ctx, newCoupon("DUP", nil)); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		err := repo.Create(ctx, newCoupon("DUP", nil))
		if !errors.Is(err, ports.ErrDuplicateCode) {
			t.Errorf("expected ErrDuplicateCode, got %v", err)
		}
	})

	t.Run("only one concurrent claim takes the last use", func(t *testing.T) {
		one := 1
		if err := repo.Create(ctx, newCoupon("LAST", &one)); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		const attempts = 10
		var wg sync.WaitGroup
		results := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results <- repo.ClaimUsage(ctx, "LAST", "cust", fmt.Sprintf("ORD-%d", i), time.Now())
			}(i)
		}
		wg.Wait()
		close(results)

		wins, limited := 0, 0
		for err := range results {
			var rej *domain.RejectionError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &rej) && rej.Reason == domain.ReasonUsageLimitReached:
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		if wins != 1 || limited != attempts-1 {
			t.Errorf("expected 1 win and %d rejections, got %d and %d", attempts-1, wins, limited)
		}
	})

	t.Run("claim is rolled back with its transaction", func(t *testing.T) {
		one := 1
		if err := repo.Create(ctx, newCoupon("TXN", &one)); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		tm := database.NewTxManager(pool)
		err := tm.WithTransaction(ctx, func(ctx context.Context) error {
			if err := repo.ClaimUsage(ctx, "TXN", "cust", "ORD-1", time.Now()); err != nil {
				return err
			}
			return errors.New("abort")
		})
		if err == nil {
			t.Fatal("expected transaction error")
		}

		got, err := repo.GetByCode(ctx, "TXN")
		if err != nil {
			t.Fatalf("GetByCode() failed: %v", err)
		}
		if got.UsedCount != 0 {
			t.Errorf("expected used_count 0 after rollback, got %d", got.UsedCount)
		}
	})

	t.Run("racing claim for the same order keeps its transaction usable", func(t *testing.T) {
		if err := repo.Create(ctx, newCoupon("RACE", nil)); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		tm := database.NewTxManager(pool)

		claimed := make(chan struct{})
		release := make(chan struct{})
		first := make(chan error, 1)
		go func() {
			first <- tm.WithTransaction(ctx, func(ctx context.Context) error {
				if err := repo.ClaimUsage(ctx, "RACE", "cust", "ORD-RACE", time.Now()); err != nil {
					return err
				}
				close(claimed)
				<-release
				return nil
			})
		}()
		<-claimed

		second := make(chan error, 1)
		go func() {
			second <- tm.WithTransaction(ctx, func(ctx context.Context) error {
				if err := repo.ClaimUsage(ctx, "RACE", "cust", "ORD-RACE", time.Now()); err != nil {
					return fmt.Errorf("claim: %w", err)
				}
				// Further statements must still run in this transaction.
				if _, err := repo.GetByCode(ctx, "RACE"); err != nil {
					return fmt.Errorf("read after claim: %w", err)
				}
				return nil
			})
		}()

		// Let the second claim block on the coupon row lock.
		time.Sleep(200 * time.Millisecond)
		close(release)

		if err := <-first; err != nil {
			t.Fatalf("first transaction failed: %v", err)
		}
		if err := <-second; err != nil {
			t.Fatalf("second transaction failed: %v", err)
		}

		got, err := repo.GetByCode(ctx, "RACE")
		if err != nil {
			t.Fatalf("GetByCode() failed: %v", err)
		}
		if got.UsedCount != 1 {
			t.Errorf("expected a single counted use, got %d", got.UsedCount)
		}
	})

	t.Run("reports why a claim was refused", func(t *testing.T) {
		c := newCoupon("OFF", nil)
		c.Active = false
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		err := repo.ClaimUsage(ctx, "OFF", "cust", "ORD-1", time.Now())
		var rej *domain.RejectionError
		if !errors.As(err, &rej) || rej.Reason != domain.ReasonInactive {
			t.Errorf("expected INACTIVE rejection, got %v", err)
		}
	})
}
