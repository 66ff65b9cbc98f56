package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/coupons/domain"
	"github.com/dejobratic/storefront/internal/coupons/ports"
	"github.com/dejobratic/storefront/internal/validation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const welcomeCodePrefix = "WELCOME5-"

// Service bundles coupon administration with the validator and tracker.
type Service struct {
	*Validator
	*UsageTracker

	repo   ports.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo ports.Repository, logger *slog.Logger) *Service {
	return &Service{
		Validator:    NewValidator(repo),
		UsageTracker: NewUsageTracker(repo, logger),
		repo:         repo,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateCouponInput is the admin payload for a new coupon. Money fields are minor units.
type CreateCouponInput struct {
	Code           string     `json:"code" validate:"required,min=3,max=32"`
	Type           string     `json:"discount_type" validate:"required,oneof=percentage fixed"`
	Value          string     `json:"value" validate:"required,numeric"`
	MinOrderAmount int64      `json:"min_order_amount" validate:"gte=0"`
	MaxDiscount    *int64     `json:"max_discount,omitempty" validate:"omitempty,gt=0"`
	MaxUses        *int       `json:"max_uses,omitempty" validate:"omitempty,gt=0"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Description    string     `json:"description" validate:"max=200"`
}

func (s *Service) Create(ctx context.Context, input CreateCouponInput) (*domain.Coupon, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(input.Value)
	if err != nil {
		return nil, validation.Field("value", "must be a number")
	}

	now := s.now().UTC()
	coupon := domain.Coupon{
		ID:             uuid.NewString(),
		Code:           domain.NormalizeCode(input.Code),
		Type:           domain.DiscountType(input.Type),
		Value:          value,
		MinOrderAmount: input.MinOrderAmount,
		MaxDiscount:    input.MaxDiscount,
		MaxUses:        input.MaxUses,
		ExpiresAt:      input.ExpiresAt,
		Active:         true,
		Description:    input.Description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := coupon.Validate(); err != nil {
		return nil, validation.Field("coupon", err.Error())
	}

	if err := s.repo.Create(ctx, coupon); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "coupon created", "coupon_code", coupon.Code, "discount_type", coupon.Type)
	return &coupon, nil
}

func (s *Service) Get(ctx context.Context, code string) (*domain.Coupon, error) {
	return s.repo.GetByCode(ctx, domain.NormalizeCode(code))
}

func (s *Service) List(ctx context.Context, filter ports.ListFilter) ([]domain.Coupon, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Usages(ctx context.Context, code string) ([]domain.Usage, error) {
	return s.repo.ListUsages(ctx, domain.NormalizeCode(code))
}

// Deactivate soft-deletes a coupon; it stays listed but never discounts again.
func (s *Service) Deactivate(ctx context.Context, code string) error {
	code = domain.NormalizeCode(code)
	if err := s.repo.SetActive(ctx, code, false, s.now().UTC()); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "coupon deactivated", "coupon_code", code)
	return nil
}

// IssueWelcomeCoupon creates the one-time 5% coupon handed out at signup.
func (s *Service) IssueWelcomeCoupon(ctx context.Context, customerID string) (*domain.Coupon, error) {
	if customerID == "" {
		return nil, validation.Field("customer_id", "is required")
	}

	maxUses := 1
	now := s.now().UTC()
	coupon := domain.Coupon{
		ID:          uuid.NewString(),
		Code:        welcomeCodePrefix + rand.Text()[:8],
		Type:        domain.DiscountPercentage,
		Value:       decimal.NewFromInt(5),
		MaxUses:     &maxUses,
		Active:      true,
		Description: fmt.Sprintf("welcome coupon for %s", customerID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, coupon); err != nil {
		return nil, fmt.Errorf("issue welcome coupon: %w", err)
	}

	s.logger.InfoContext(ctx, "welcome coupon issued", "customer_id", customerID, "coupon_code", coupon.Code)
	return &coupon, nil
}
