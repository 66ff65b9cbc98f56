package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dejobratic/storefront/internal/cart"
	"github.com/dejobratic/storefront/internal/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Get(ctx context.Context, customerID string) (*cart.Cart, error) {
	c := cart.Cart{CustomerID: customerID, Items: []cart.Item{}}

	var items []byte
	err := database.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT items, updated_at FROM carts WHERE customer_id = $1`, customerID,
	).Scan(&items, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	if err := json.Unmarshal(items, &c.Items); err != nil {
		return nil, fmt.Errorf("decode cart items: %w", err)
	}
	return &c, nil
}

func (s *Store) Replace(ctx context.Context, c cart.Cart) error {
	if c.Items == nil {
		c.Items = []cart.Item{}
	}
	items, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("encode cart items: %w", err)
	}

	_, err = database.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO carts (customer_id, items, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id) DO UPDATE SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at
	`, c.CustomerID, items, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("replace cart: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, customerID string) error {
	if _, err := database.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM carts WHERE customer_id = $1`, customerID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
