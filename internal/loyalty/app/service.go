package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/loyalty/domain"
	"github.com/dejobratic/storefront/internal/loyalty/ports"
	"github.com/dejobratic/storefront/internal/validation"
	"github.com/google/uuid"
)

const historyLimit = 50

// Service is the loyalty ledger's application API.
type Service struct {
	ledger ports.Ledger
	logger *slog.Logger
	now    func() time.Time
}

func NewService(ledger ports.Ledger, logger *slog.Logger) *Service {
	return &Service{ledger: ledger, logger: logger, now: time.Now}
}

// Summary is an account together with its recent history.
type Summary struct {
	Account      domain.Account       `json:"account"`
	Transactions []domain.Transaction `json:"transactions"`
}

// Balance returns the current balance, creating the account on first use.
func (s *Service) Balance(ctx context.Context, customerID string) (int64, error) {
	account, err := s.ledger.GetOrCreate(ctx, customerID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (s *Service) Summary(ctx context.Context, customerID string) (*Summary, error) {
	account, err := s.ledger.GetOrCreate(ctx, customerID, s.now().UTC())
	if err != nil {
		return nil, err
	}

	txs, err := s.ledger.Transactions(ctx, customerID, historyLimit)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return &Summary{Account: *account, Transactions: txs}, nil
}

// Earn credits points for orderRef. Zero points append nothing.
func (s *Service) Earn(ctx context.Context, customerID string, points int64, orderRef, description string) (int64, error) {
	if points < 0 {
		return 0, domain.ErrInvalidAmount
	}
	if points == 0 {
		return s.Balance(ctx, customerID)
	}

	balance, applied, err := s.ledger.Earn(ctx, s.entry(customerID, points, orderRef, description))
	if err != nil {
		return 0, fmt.Errorf("earn %d points for %s: %w", points, orderRef, err)
	}
	if applied {
		s.logger.InfoContext(ctx, "loyalty points earned",
			"customer_id", customerID,
			"points", points,
			"order_ref", orderRef,
			"balance", balance,
		)
	}
	return balance, nil
}

// Redeem debits points for orderRef, or returns domain.ErrInsufficientBalance
// leaving the balance untouched.
func (s *Service) Redeem(ctx context.Context, customerID string, points int64, orderRef, description string) (int64, error) {
	if points < 0 {
		return 0, domain.ErrInvalidAmount
	}
	if points == 0 {
		return s.Balance(ctx, customerID)
	}

	balance, err := s.ledger.Redeem(ctx, s.entry(customerID, points, orderRef, description))
	if err != nil {
		return balance, err
	}
	s.logger.InfoContext(ctx, "loyalty points redeemed",
		"customer_id", customerID,
		"points", points,
		"order_ref", orderRef,
		"balance", balance,
	)
	return balance, nil
}

// AdjustInput is the admin payload for a manual credit.
type AdjustInput struct {
	Points      int64  `json:"points" validate:"gt=0"`
	Reference   string `json:"reference" validate:"required,max=64"`
	Description string `json:"description" validate:"max=200"`
}

// Adjust credits points by hand. Reference plays the role of the order
// reference, so repeating an adjustment does not credit twice.
func (s *Service) Adjust(ctx context.Context, customerID string, input AdjustInput) (int64, error) {
	if err := validation.Struct(input); err != nil {
		return 0, err
	}
	return s.Earn(ctx, customerID, input.Points, "adjustment:"+input.Reference, input.Description)
}

func (s *Service) entry(customerID string, points int64, orderRef, description string) domain.Transaction {
	return domain.Transaction{
		ID:          uuid.NewString(),
		CustomerID:  customerID,
		Amount:      points,
		OrderRef:    orderRef,
		Description: description,
		CreatedAt:   s.now().UTC(),
	}
}
