package domain

import (
	"errors"
	"time"
)

// Kind is the direction of a ledger entry.
type Kind string

const (
	KindEarned   Kind = "earned"
	KindRedeemed Kind = "redeemed"
)

var (
	// ErrInsufficientBalance is returned when a redemption exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient loyalty balance")
	// ErrInvalidAmount is returned for negative point amounts.
	ErrInvalidAmount = errors.New("loyalty amount must be positive")
)

// Account is a customer's point balance. Balance always equals the signed
// sum of the account's transactions.
type Account struct {
	CustomerID string    `json:"customer_id"`
	Balance    int64     `json:"balance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Transaction is one append-only ledger entry. Amount is always positive;
// Kind gives the sign. A customer has at most one entry per (OrderRef, Kind).
type Transaction struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	Kind        Kind      `json:"kind"`
	Amount      int64     `json:"amount"`
	OrderRef    string    `json:"order_ref"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Signed returns the effect of the entry on the balance.
func (t Transaction) Signed() int64 {
	if t.Kind == KindRedeemed {
		return -t.Amount
	}
	return t.Amount
}

// Replay folds transactions into a balance.
func Replay(txs []Transaction) int64 {
	var balance int64
	for _, tx := range txs {
		balance += tx.Signed()
	}
	return balance
}

// PointsValue converts points to minor currency units.
func PointsValue(points, pointValueMinor int64) int64 {
	return points * pointValueMinor
}
