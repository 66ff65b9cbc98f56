package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/loyalty/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderKindConstraint = "loyalty_transactions_order_kind_key"

type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) GetOrCreate(ctx context.Context, customerID string, at time.Time) (*domain.Account, error) {
	query := `
		INSERT INTO loyalty_accounts (customer_id, balance, created_at, updated_at)
		VALUES ($1, 0, $2, $2)
		ON CONFLICT (customer_id) DO UPDATE SET customer_id = EXCLUDED.customer_id
		RETURNING customer_id, balance, created_at, updated_at
	`

	var a domain.Account
	err := database.Conn(ctx, l.pool).QueryRow(ctx, query, customerID, at).
		Scan(&a.CustomerID, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get or create loyalty account: %w", err)
	}
	return &a, nil
}

// Earn inserts the entry and credits the balance in one statement. The
// unique (customer_id, order_ref, kind) constraint makes a repeat a no-op.
func (l *Ledger) Earn(ctx context.Context, tx domain.Transaction) (int64, bool, error) {
	query := `
		WITH entry AS (
			INSERT INTO loyalty_transactions (id, customer_id, kind, amount, order_ref, description, created_at)
			VALUES ($1, $2, 'earned', $3, $4, $5, $6)
			ON CONFLICT ON CONSTRAINT loyalty_transactions_order_kind_key DO NOTHING
			RETURNING amount
		)
		INSERT INTO loyalty_accounts (customer_id, balance, created_at, updated_at)
		SELECT $2, amount, $6, $6 FROM entry
		ON CONFLICT (customer_id) DO UPDATE
			SET balance = loyalty_accounts.balance + EXCLUDED.balance,
			    updated_at = EXCLUDED.updated_at
		RETURNING balance
	`

	var balance int64
	err := database.Conn(ctx, l.pool).QueryRow(ctx, query,
		tx.ID, tx.CustomerID, tx.Amount, tx.OrderRef, tx.Description, tx.CreatedAt,
	).Scan(&balance)
	if err == nil {
		return balance, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("earn loyalty points: %w", err)
	}

	account, err := l.GetOrCreate(ctx, tx.CustomerID, tx.CreatedAt)
	if err != nil {
		return 0, false, err
	}
	return account.Balance, false, nil
}

// Redeem debits the balance with a conditional update and logs the entry
// in the same statement. No row back means the balance did not cover the
// amount or the order already redeemed.
func (l *Ledger) Redeem(ctx context.Context, tx domain.Transaction) (int64, error) {
	query := `
		WITH debit AS (
			UPDATE loyalty_accounts
			SET balance = balance - $3, updated_at = $6
			WHERE customer_id = $2
			  AND balance >= $3
			  AND NOT EXISTS (
				SELECT 1 FROM loyalty_transactions
				WHERE customer_id = $2 AND order_ref = $4 AND kind = 'redeemed'
			  )
			RETURNING balance
		), entry AS (
			INSERT INTO loyalty_transactions (id, customer_id, kind, amount, order_ref, description, created_at)
			SELECT $1, $2, 'redeemed', $3, $4, $5, $6 FROM debit
		)
		SELECT balance FROM debit
	`

	var balance int64
	err := database.Conn(ctx, l.pool).QueryRow(ctx, query,
		tx.ID, tx.CustomerID, tx.Amount, tx.OrderRef, tx.Description, tx.CreatedAt,
	).Scan(&balance)
	switch {
	case err == nil:
		return balance, nil
	case database.IsUniqueViolation(err, orderKindConstraint):
		return 0, fmt.Errorf("redeem loyalty points: concurrent redemption for %s: %w", tx.OrderRef, err)
	case !errors.Is(err, pgx.ErrNoRows):
		return 0, fmt.Errorf("redeem loyalty points: %w", err)
	}

	var (
		current  int64
		redeemed bool
	)
	err = database.Conn(ctx, l.pool).QueryRow(ctx, `
		SELECT
			COALESCE((SELECT balance FROM loyalty_accounts WHERE customer_id = $1), 0),
			EXISTS (SELECT 1 FROM loyalty_transactions WHERE customer_id = $1 AND order_ref = $2 AND kind = 'redeemed')
	`, tx.CustomerID, tx.OrderRef).Scan(&current, &redeemed)
	if err != nil {
		return 0, fmt.Errorf("read loyalty balance: %w", err)
	}
	if redeemed {
		return current, nil
	}
	return current, domain.ErrInsufficientBalance
}

func (l *Ledger) Transactions(ctx context.Context, customerID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id::text, customer_id, kind, amount, order_ref, description, created_at
		FROM (
			SELECT * FROM loyalty_transactions
			WHERE customer_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at, id
	`

	rows, err := database.Conn(ctx, l.pool).Query(ctx, query, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list loyalty transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.CustomerID, &tx.Kind, &tx.Amount, &tx.OrderRef, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan loyalty transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loyalty transactions: %w", err)
	}
	return txs, nil
}
