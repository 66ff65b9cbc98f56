package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/coupons/domain"
	"github.com/dejobratic/storefront/internal/coupons/ports"
	"github.com/dejobratic/storefront/internal/database"
)

// Repository keeps coupons in memory. Writes made inside a
// database.MemoryTxManager transaction are undone if it fails.
type Repository struct {
	mu      sync.Mutex
	coupons map[string]domain.Coupon
	usages  map[string][]domain.Usage
}

func NewRepository() *Repository {
	return &Repository{
		coupons: make(map[string]domain.Coupon),
		usages:  make(map[string][]domain.Usage),
	}
}

func (r *Repository) Create(ctx context.Context, coupon domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.coupons[coupon.Code]; exists {
		return ports.ErrDuplicateCode
	}
	r.coupons[coupon.Code] = coupon
	database.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.coupons, coupon.Code)
	})
	return nil
}

func (r *Repository) GetByCode(_ context.Context, code string) (*domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	coupon, ok := r.coupons[code]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &coupon, nil
}

func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Coupon
	for _, c := range r.coupons {
		if filter.ActiveOnly && !c.Active {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	page, pageSize := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= len(result) {
		return []domain.Coupon{}, nil
	}
	end := min(start+pageSize, len(result))
	return result[start:end], nil
}

func (r *Repository) SetActive(ctx context.Context, code string, active bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	coupon, ok := r.coupons[code]
	if !ok {
		return ports.ErrNotFound
	}
	previous := coupon
	coupon.Active = active
	coupon.UpdatedAt = at
	r.coupons[code] = coupon
	database.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.coupons[code] = previous
	})
	return nil
}

func (r *Repository) ClaimUsage(ctx context.Context, code, customerID, orderNumber string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	coupon, ok := r.coupons[code]
	if !ok {
		return domain.Reject(code, domain.ReasonNotFound)
	}
	for _, u := range r.usages[coupon.ID] {
		if u.OrderNumber == orderNumber {
			return nil
		}
	}
	if reason := coupon.Claimable(at); reason != "" {
		return domain.Reject(code, reason)
	}

	previous := coupon
	coupon.UsedCount++
	coupon.UpdatedAt = at
	r.coupons[code] = coupon
	r.usages[coupon.ID] = append(r.usages[coupon.ID], domain.Usage{
		CouponID:    coupon.ID,
		CustomerID:  customerID,
		OrderNumber: orderNumber,
		UsedAt:      at,
	})

	database.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.coupons[code] = previous
		usages := r.usages[coupon.ID]
		for i, u := range usages {
			if u.OrderNumber == orderNumber {
				r.usages[coupon.ID] = append(usages[:i:i], usages[i+1:]...)
				break
			}
		}
	})
	return nil
}

func (r *Repository) ListUsages(_ context.Context, code string) ([]domain.Usage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	coupon, ok := r.coupons[code]
	if !ok {
		return nil, ports.ErrNotFound
	}
	usages := make([]domain.Usage, len(r.usages[coupon.ID]))
	copy(usages, r.usages[coupon.ID])
	return usages, nil
}
