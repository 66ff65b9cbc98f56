package database

import (
	"context"
	"sync"
)

type memTxKey struct{}

type memTx struct {
	undo []func()
}

// MemoryTxManager emulates transactions for the in-memory adapters.
// Transactions are serialised and each adapter registers an undo step for
// every write it makes, replayed in reverse on failure.
type MemoryTxManager struct {
	mu sync.Mutex
}

func NewMemoryTxManager() *MemoryTxManager {
	return &MemoryTxManager{}
}

func (m *MemoryTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

// OnRollback registers undo to run if the surrounding memory transaction fails.
// Outside a transaction it does nothing.
func OnRollback(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}
