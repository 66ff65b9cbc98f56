package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/coupons/domain"
	"github.com/dejobratic/storefront/internal/coupons/ports"
	"github.com/dejobratic/storefront/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const couponColumns = `id::text, code, discount_type, value::text, min_order_amount, max_discount, max_uses,
	used_count, expires_at, active, description, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, c domain.Coupon) error {
	query := `
		INSERT INTO coupons (id, code, discount_type, value, min_order_amount, max_discount, max_uses,
			used_count, expires_at, active, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := database.Conn(ctx, r.pool).Exec(ctx, query,
		c.ID,
		c.Code,
		c.Type,
		c.Value.String(),
		c.MinOrderAmount,
		c.MaxDiscount,
		c.MaxUses,
		c.UsedCount,
		c.ExpiresAt,
		c.Active,
		c.Description,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "coupons_code_key") {
			return ports.ErrDuplicateCode
		}
		return fmt.Errorf("insert coupon: %w", err)
	}

	return nil
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	coupon, err := scanCoupon(database.Conn(ctx, r.pool).QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select coupon: %w", err)
	}
	return coupon, nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Coupon, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := `SELECT ` + couponColumns + `
		FROM coupons
		WHERE (NOT $1 OR active)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, filter.ActiveOnly, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("query coupons: %w", err)
	}
	defer rows.Close()

	coupons := []domain.Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupons: %w", err)
	}
	return coupons, nil
}

func (r *Repository) SetActive(ctx context.Context, code string, active bool, at time.Time) error {
	result, err := database.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE coupons SET active = $1, updated_at = $2 WHERE code = $3`,
		active, at, code,
	)
	if err != nil {
		return fmt.Errorf("update coupon: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// ClaimUsage increments used_count under the same conditions the validator
// checks and inserts the usage row in a single statement, so concurrent
// claims for the last use serialise on the coupon row.
func (r *Repository) ClaimUsage(ctx context.Context, code, customerID, orderNumber string, at time.Time) error {
	query := `
		WITH claimed AS (
			UPDATE coupons c
			SET used_count = c.used_count + 1, updated_at = $4
			WHERE c.code = $1
				AND c.active
				AND (c.expires_at IS NULL OR c.expires_at >= $4)
				AND (c.max_uses IS NULL OR c.used_count < c.max_uses)
				AND NOT EXISTS (
					SELECT 1 FROM coupon_usages u WHERE u.coupon_id = c.id AND u.order_number = $3
				)
			RETURNING c.id
		)
		INSERT INTO coupon_usages (coupon_id, customer_id, order_number, used_at)
		SELECT id, $2, $3, $4 FROM claimed
	`

	// A concurrent claim for the same order surfaces as a primary key
	// violation; the savepoint keeps the order transaction alive after it.
	var result pgconn.CommandTag
	err := database.WithSavepoint(ctx, r.pool, func(q database.Querier) error {
		var err error
		result, err = q.Exec(ctx, query, code, customerID, orderNumber, at)
		return err
	})
	if err != nil {
		if database.IsUniqueViolation(err, "coupon_usages_pkey") {
			return nil
		}
		return fmt.Errorf("claim coupon usage: %w", err)
	}

	conn := database.Conn(ctx, r.pool)
	if result.RowsAffected() == 1 {
		return nil
	}

	coupon, err := r.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return domain.Reject(code, domain.ReasonNotFound)
		}
		return err
	}

	var alreadyClaimed bool
	err = conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM coupon_usages WHERE coupon_id = $1 AND order_number = $2)`,
		coupon.ID, orderNumber,
	).Scan(&alreadyClaimed)
	if err != nil {
		return fmt.Errorf("check coupon usage: %w", err)
	}
	if alreadyClaimed {
		return nil
	}

	reason := coupon.Claimable(at)
	if reason == "" {
		// The row changed between the update and the re-read; the update lost.
		reason = domain.ReasonUsageLimitReached
	}
	return domain.Reject(code, reason)
}

func (r *Repository) ListUsages(ctx context.Context, code string) ([]domain.Usage, error) {
	query := `
		SELECT u.coupon_id::text, u.customer_id, u.order_number, u.used_at
		FROM coupon_usages u
		JOIN coupons c ON c.id = u.coupon_id
		WHERE c.code = $1
		ORDER BY u.used_at
	`

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("query coupon usages: %w", err)
	}
	defer rows.Close()

	usages := []domain.Usage{}
	for rows.Next() {
		var u domain.Usage
		if err := rows.Scan(&u.CouponID, &u.CustomerID, &u.OrderNumber, &u.UsedAt); err != nil {
			return nil, fmt.Errorf("scan coupon usage: %w", err)
		}
		usages = append(usages, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coupon usages: %w", err)
	}
	return usages, nil
}

func scanCoupon(row pgx.Row) (*domain.Coupon, error) {
	var (
		c     domain.Coupon
		value string
	)
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Type,
		&value,
		&c.MinOrderAmount,
		&c.MaxDiscount,
		&c.MaxUses,
		&c.UsedCount,
		&c.ExpiresAt,
		&c.Active,
		&c.Description,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Value, err = decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("parse coupon value %q: %w", value, err)
	}
	return &c, nil
}
