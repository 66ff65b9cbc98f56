package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/loyalty/domain"
)

type entryKey struct {
	customerID string
	orderRef   string
	kind       domain.Kind
}

// Ledger is an in-memory loyalty ledger. Each mutation holds the lock for
// its whole check-and-write.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	txs      map[string][]domain.Transaction
	seen     map[entryKey]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[string]domain.Account),
		txs:      make(map[string][]domain.Transaction),
		seen:     make(map[entryKey]struct{}),
	}
}

func (l *Ledger) GetOrCreate(ctx context.Context, customerID string, at time.Time) (*domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account := l.accountLocked(ctx, customerID, at)
	return &account, nil
}

func (l *Ledger) Earn(ctx context.Context, tx domain.Transaction) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account := l.accountLocked(ctx, tx.CustomerID, tx.CreatedAt)
	key := entryKey{tx.CustomerID, tx.OrderRef, domain.KindEarned}
	if _, dup := l.seen[key]; dup {
		return account.Balance, false, nil
	}

	tx.Kind = domain.KindEarned
	l.applyLocked(ctx, account, tx, key)
	return account.Balance + tx.Amount, true, nil
}

func (l *Ledger) Redeem(ctx context.Context, tx domain.Transaction) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	account := l.accountLocked(ctx, tx.CustomerID, tx.CreatedAt)
	key := entryKey{tx.CustomerID, tx.OrderRef, domain.KindRedeemed}
	if _, dup := l.seen[key]; dup {
		return account.Balance, nil
	}
	if tx.Amount > account.Balance {
		return account.Balance, domain.ErrInsufficientBalance
	}

	tx.Kind = domain.KindRedeemed
	l.applyLocked(ctx, account, tx, key)
	return account.Balance - tx.Amount, nil
}

func (l *Ledger) Transactions(_ context.Context, customerID string, limit int) ([]domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	txs := l.txs[customerID]
	if limit > 0 && len(txs) > limit {
		txs = txs[len(txs)-limit:]
	}
	out := make([]domain.Transaction, len(txs))
	copy(out, txs)
	return out, nil
}

func (l *Ledger) accountLocked(ctx context.Context, customerID string, at time.Time) domain.Account {
	if account, ok := l.accounts[customerID]; ok {
		return account
	}
	account := domain.Account{CustomerID: customerID, CreatedAt: at, UpdatedAt: at}
	l.accounts[customerID] = account
	database.OnRollback(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.accounts, customerID)
	})
	return account
}

func (l *Ledger) applyLocked(ctx context.Context, previous domain.Account, tx domain.Transaction, key entryKey) {
	updated := previous
	updated.Balance += tx.Signed()
	updated.UpdatedAt = tx.CreatedAt

	l.accounts[tx.CustomerID] = updated
	l.txs[tx.CustomerID] = append(l.txs[tx.CustomerID], tx)
	l.seen[key] = struct{}{}

	database.OnRollback(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		current := l.accounts[tx.CustomerID]
		current.Balance -= tx.Signed()
		l.accounts[tx.CustomerID] = current
		entries := l.txs[tx.CustomerID]
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].ID == tx.ID {
				l.txs[tx.CustomerID] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
		delete(l.seen, key)
	})
}
