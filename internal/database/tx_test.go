//go:build integration

package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/database/dbtest"
)

func TestWithSavepoint(t *testing.T) {
	pool := dbtest.NewPool(t)
	tm := database.NewTxManager(pool)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, `CREATE TABLE savepoint_rows (id INT PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	t.Run("failed statement leaves the transaction usable", func(t *testing.T) {
		err := tm.WithTransaction(ctx, func(ctx context.Context) error {
			conn := database.Conn(ctx, pool)
			if _, err := conn.Exec(ctx, `INSERT INTO savepoint_rows (id) VALUES (1)`); err != nil {
				return err
			}

			err := database.WithSavepoint(ctx, pool, func(q database.Querier) error {
				_, err := q.Exec(ctx, `INSERT INTO savepoint_rows (id) VALUES (1)`)
				return err
			})
			if !database.IsUniqueViolation(err, "") {
				t.Errorf("expected unique violation, got %v", err)
			}

			_, err = conn.Exec(ctx, `INSERT INTO savepoint_rows (id) VALUES (2)`)
			return err
		})
		if err != nil {
			t.Fatalf("expected commit, got %v", err)
		}

		var count int
		if err := pool.QueryRow(ctx, `SELECT count(*) FROM savepoint_rows`).Scan(&count); err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 rows, got %d", count)
		}
	})

	t.Run("successful work is kept", func(t *testing.T) {
		err := tm.WithTransaction(ctx, func(ctx context.Context) error {
			return database.WithSavepoint(ctx, pool, func(q database.Querier) error {
				_, err := q.Exec(ctx, `INSERT INTO savepoint_rows (id) VALUES (3)`)
				return err
			})
		})
		if err != nil {
			t.Fatalf("expected commit, got %v", err)
		}

		var exists bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM savepoint_rows WHERE id = 3)`).Scan(&exists); err != nil {
			t.Fatalf("query: %v", err)
		}
		if !exists {
			t.Error("expected row 3 to be committed")
		}
	})

	t.Run("runs on the pool without a transaction", func(t *testing.T) {
		boom := errors.New("boom")
		err := database.WithSavepoint(ctx, pool, func(database.Querier) error { return boom })
		if !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
	})
}
