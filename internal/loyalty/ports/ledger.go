package ports

import (
	"context"
	"time"

	"github.com/dejobratic/storefront/internal/loyalty/domain"
)

// Ledger stores loyalty accounts and their transaction log.
type Ledger interface {
	// GetOrCreate returns the account, creating a zero balance one if needed.
	GetOrCreate(ctx context.Context, customerID string, at time.Time) (*domain.Account, error)
	// Earn appends an earned entry and credits the balance. When an earned
	// entry already exists for tx.OrderRef nothing changes and applied is false.
	Earn(ctx context.Context, tx domain.Transaction) (balance int64, applied bool, err error)
	// Redeem debits the balance only if it covers tx.Amount, in one atomic step.
	// It returns domain.ErrInsufficientBalance otherwise. A repeated redemption
	// for the same OrderRef is a no-op.
	Redeem(ctx context.Context, tx domain.Transaction) (balance int64, err error)
	Transactions(ctx context.Context, customerID string, limit int) ([]domain.Transaction, error)
}
