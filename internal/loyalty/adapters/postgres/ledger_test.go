//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/database/dbtest"
	"github.com/dejobratic/storefront/internal/loyalty/adapters/postgres"
	"github.com/dejobratic/storefront/internal/loyalty/domain"
	"github.com/google/uuid"
)

func entry(customer, ref string, amount int64) domain.Transaction {
	return domain.Transaction{
		ID:         uuid.NewString(),
		CustomerID: customer,
		Amount:     amount,
		OrderRef:   ref,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestLedger(t *testing.T) {
	pool := dbtest.NewPool(t)
	ledger := postgres.NewLedger(pool)
	ctx := context.Background()

	t.Run("creates accounts lazily with zero balance", func(t *testing.T) {
		account, err := ledger.GetOrCreate(ctx, "lazy", time.Now().UTC())
		if err != nil {
			t.Fatalf("GetOrCreate() failed: %v", err)
		}
		if account.Balance != 0 {
			t.Errorf("expected zero balance, got %d", account.Balance)
		}
	})

	t.Run("earn is applied once per order", func(t *testing.T) {
		balance, applied, err := ledger.Earn(ctx, entry("earner", "ORD-1", 30))
		if err != nil || !applied || balance != 30 {
			t.Fatalf("first Earn() = %d, %v, %v", balance, applied, err)
		}

		balance, applied, err = ledger.Earn(ctx, entry("earner", "ORD-1", 30))
		if err != nil || applied || balance != 30 {
			t.Fatalf("repeat Earn() = %d, %v, %v", balance, applied, err)
		}
	})

	t.Run("rejects overdraft and leaves the balance", func(t *testing.T) {
		if _, _, err := ledger.Earn(ctx, entry("short", "seed", 10)); err != nil {
			t.Fatalf("Earn() failed: %v", err)
		}

		balance, err := ledger.Redeem(ctx, entry("short", "ORD-2", 15))
		if !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, got %v", err)
		}
		if balance != 10 {
			t.Errorf("expected balance 10, got %d", balance)
		}
	})

	t.Run("concurrent redemptions never overdraw", func(t *testing.T) {
		if _, _, err := ledger.Earn(ctx, entry("racer", "seed", 100)); err != nil {
			t.Fatalf("Earn() failed: %v", err)
		}

		var wg sync.WaitGroup
		var succeeded atomic.Int32
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := ledger.Redeem(ctx, entry("racer", fmt.Sprintf("ORD-%d", i), 30)); err == nil {
					succeeded.Add(1)
				}
			}()
		}
		wg.Wait()

		if succeeded.Load() != 3 {
			t.Errorf("expected 3 redemptions, got %d", succeeded.Load())
		}

		txs, err := ledger.Transactions(ctx, "racer", 0)
		if err != nil {
			t.Fatalf("Transactions() failed: %v", err)
		}
		account, err := ledger.GetOrCreate(ctx, "racer", time.Now().UTC())
		if err != nil {
			t.Fatalf("GetOrCreate() failed: %v", err)
		}
		if account.Balance != 10 || domain.Replay(txs) != account.Balance {
			t.Errorf("balance %d does not match log %d", account.Balance, domain.Replay(txs))
		}
	})

	t.Run("redemption is undone with its transaction", func(t *testing.T) {
		if _, _, err := ledger.Earn(ctx, entry("rollback", "seed", 50)); err != nil {
			t.Fatalf("Earn() failed: %v", err)
		}

		boom := errors.New("boom")
		err := database.NewTxManager(pool).WithTransaction(ctx, func(ctx context.Context) error {
			if _, err := ledger.Redeem(ctx, entry("rollback", "ORD-9", 20)); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		account, err := ledger.GetOrCreate(ctx, "rollback", time.Now().UTC())
		if err != nil {
			t.Fatalf("GetOrCreate() failed: %v", err)
		}
		if account.Balance != 50 {
			t.Errorf("expected balance 50 after rollback, got %d", account.Balance)
		}
	})
}
