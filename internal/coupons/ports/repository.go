package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/storefront/internal/coupons/domain"
)

// Repository persists coupons and their usage records.
type Repository interface {
	Create(ctx context.Context, coupon domain.Coupon) error
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Coupon, error)
	SetActive(ctx context.Context, code string, active bool, at time.Time) error
	// ClaimUsage checks active, expiry and the usage cap and appends the usage
	// record in one atomic step. Claiming twice for the same order is a no-op.
	// Refusals are returned as *domain.RejectionError.
	ClaimUsage(ctx context.Context, code, customerID, orderNumber string, at time.Time) error
	ListUsages(ctx context.Context, code string) ([]domain.Usage, error)
}

// ListFilter narrows coupon listings.
type ListFilter struct {
	ActiveOnly bool
	Page       int
	PageSize   int
}

var (
	// ErrNotFound is returned when no coupon has the requested code.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned when a coupon code is already taken.
	ErrDuplicateCode = errors.New("coupon code already exists")
)
