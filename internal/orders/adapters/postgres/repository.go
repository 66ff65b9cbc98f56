package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id::text, order_number, customer_id, COALESCE(idempotency_key, ''), items,
	shipping_address, billing_address, payment, subtotal, discount, loyalty_points, loyalty_discount,
	shipping, tax, total, COALESCE(coupon_code, ''), status, shipment, estimated_delivery,
	created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, order domain.Order) error {
	docs, err := encodeDocuments(order)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (id, order_number, customer_id, idempotency_key, items, shipping_address,
			billing_address, payment, subtotal, discount, loyalty_points, loyalty_discount, shipping,
			tax, total, coupon_code, status, shipment, estimated_delivery, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			NULLIF($16, ''), $17, $18, $19, $20, $21)
	`

	_, err = database.Conn(ctx, r.pool).Exec(ctx, query,
		order.ID,
		order.Number,
		order.CustomerID,
		order.IdempotencyKey,
		docs.items,
		docs.shippingAddress,
		docs.billingAddress,
		docs.payment,
		order.Subtotal,
		order.Discount,
		order.LoyaltyPoints,
		order.LoyaltyDiscount,
		order.Shipping,
		order.Tax,
		order.Total,
		order.CouponCode,
		order.Status,
		docs.shipment,
		order.EstimatedDelivery,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err, "orders_customer_idempotency_key"):
			return ports.ErrDuplicateIdempotencyKey
		case database.IsUniqueViolation(err, "orders_order_number_key"):
			return ports.ErrDuplicateOrderNumber
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *Repository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	return scanOrder(database.Conn(ctx, r.pool).QueryRow(ctx, query, number))
}

func (r *Repository) GetByIdempotencyKey(ctx context.Context, customerID, key string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 AND idempotency_key = $2`
	return scanOrder(database.Conn(ctx, r.pool).QueryRow(ctx, query, customerID, key))
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR customer_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	var statusFilter, customerFilter *string
	if filter.Status != nil {
		s := string(*filter.Status)
		statusFilter = &s
	}
	if filter.CustomerID != "" {
		customerFilter = &filter.CustomerID
	}

	offset := (page - 1) * pageSize

	rows, err := database.Conn(ctx, r.pool).Query(ctx, query, statusFilter, customerFilter, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, number string, from, to domain.OrderStatus, at time.Time) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE order_number = $3 AND status = $4
	`

	result, err := database.Conn(ctx, r.pool).Exec(ctx, query, to, at, number, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, number)
	}

	return nil
}

func (r *Repository) UpdateShipment(ctx context.Context, number string, shipment domain.Shipment, at time.Time) error {
	doc, err := json.Marshal(shipment)
	if err != nil {
		return fmt.Errorf("encode shipment: %w", err)
	}

	result, err := database.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE orders SET shipment = $1, updated_at = $2 WHERE order_number = $3`,
		doc, at, number,
	)
	if err != nil {
		return fmt.Errorf("update order shipment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

func (r *Repository) missingOrConflict(ctx context.Context, number string) error {
	var exists bool
	err := database.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, number,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return ports.ErrNotFound
	}
	return ports.ErrConflict
}

type documents struct {
	items, shippingAddress, billingAddress, payment, shipment []byte
}

func encodeDocuments(order domain.Order) (documents, error) {
	var (
		docs documents
		err  error
	)
	if docs.items, err = json.Marshal(order.Items); err != nil {
		return docs, fmt.Errorf("encode items: %w", err)
	}
	if docs.shippingAddress, err = json.Marshal(order.ShippingAddress); err != nil {
		return docs, fmt.Errorf("encode shipping address: %w", err)
	}
	if docs.billingAddress, err = json.Marshal(order.BillingAddress); err != nil {
		return docs, fmt.Errorf("encode billing address: %w", err)
	}
	if docs.payment, err = json.Marshal(order.Payment); err != nil {
		return docs, fmt.Errorf("encode payment: %w", err)
	}
	if docs.shipment, err = json.Marshal(order.Shipment); err != nil {
		return docs, fmt.Errorf("encode shipment: %w", err)
	}
	return docs, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		order domain.Order
		docs  documents
	)
	err := row.Scan(
		&order.ID,
		&order.Number,
		&order.CustomerID,
		&order.IdempotencyKey,
		&docs.items,
		&docs.shippingAddress,
		&docs.billingAddress,
		&docs.payment,
		&order.Subtotal,
		&order.Discount,
		&order.LoyaltyPoints,
		&order.LoyaltyDiscount,
		&order.Shipping,
		&order.Tax,
		&order.Total,
		&order.CouponCode,
		&order.Status,
		&docs.shipment,
		&order.EstimatedDelivery,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	decode := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"items", docs.items, &order.Items},
		{"shipping address", docs.shippingAddress, &order.ShippingAddress},
		{"billing address", docs.billingAddress, &order.BillingAddress},
		{"payment", docs.payment, &order.Payment},
		{"shipment", docs.shipment, &order.Shipment},
	}
	for _, d := range decode {
		if err := json.Unmarshal(d.raw, d.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", d.name, err)
		}
	}

	return &order, nil
}
