package database

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryTxManager(t *testing.T) {
	t.Run("keeps writes when the function succeeds", func(t *testing.T) {
		tm := NewMemoryTxManager()
		value := 0

		err := tm.WithTransaction(context.Background(), func(ctx context.Context) error {
			value = 1
			OnRollback(ctx, func() { value = 0 })
			return nil
		})

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != 1 {
			t.Errorf("expected value 1, got %d", value)
		}
	})

	t.Run("undoes writes in reverse order on failure", func(t *testing.T) {
		tm := NewMemoryTxManager()
		var undone []int
		boom := errors.New("boom")

		err := tm.WithTransaction(context.Background(), func(ctx context.Context) error {
			OnRollback(ctx, func() { undone = append(undone, 1) })
			return tm.WithTransaction(ctx, func(ctx context.Context) error {
				OnRollback(ctx, func() { undone = append(undone, 2) })
				return boom
			})
		})

		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if len(undone) != 2 || undone[0] != 2 || undone[1] != 1 {
			t.Errorf("expected undo order [2 1], got %v", undone)
		}
	})

	t.Run("ignores undo registrations outside a transaction", func(t *testing.T) {
		called := false
		OnRollback(context.Background(), func() { called = true })
		if called {
			t.Error("undo should not run outside a transaction")
		}
	})

	t.Run("serialises concurrent transactions", func(t *testing.T) {
		tm := NewMemoryTxManager()
		counter := 0
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = tm.WithTransaction(context.Background(), func(context.Context) error {
					counter++
					return nil
				})
			}()
		}
		wg.Wait()

		if counter != 50 {
			t.Errorf("expected 50, got %d", counter)
		}
	})
}
