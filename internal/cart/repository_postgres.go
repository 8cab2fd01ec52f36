package cart

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/wichananm65/storefront-backend/internal/user"
)

type PostgresRepository struct {
	db *sql.DB
}

const (
	getCartQuery    = `SELECT cart FROM users WHERE "userId" = $1`
	lockCartQuery   = `SELECT cart FROM users WHERE "userId" = $1 FOR UPDATE`
	updateCartQuery = `UPDATE users SET cart = $1, "updateAt" = $2 WHERE "userId" = $3`
	clearCartQuery  = `UPDATE users SET cart = '[]'::jsonb, "updateAt" = $1 WHERE "userId" = $2`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetCart(ctx context.Context, userID int) ([]user.CartItem, error) {
	var raw []byte
	if err := r.db.QueryRowContext(ctx, getCartQuery, userID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeCart(raw)
}

func (r *PostgresRepository) ReplaceCart(ctx context.Context, userID int, items []user.CartItem, updatedAt string) ([]user.CartItem, error) {
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, updateCartQuery, string(encoded), updatedAt, userID)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return items, nil
}

func (r *PostgresRepository) AddToCart(ctx context.Context, userID int, item user.CartItem, delta int, updatedAt string) ([]user.CartItem, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var raw []byte
	if err := tx.QueryRowContext(ctx, lockCartQuery, userID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	items, err := decodeCart(raw)
	if err != nil {
		return nil, err
	}

	items = mergeQuantity(items, item, delta)
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, updateCartQuery, string(encoded), updatedAt, userID); err != nil {
		return nil, err
	}
	return items, tx.Commit()
}

func (r *PostgresRepository) ClearCart(ctx context.Context, userID int, updatedAt string) error {
	res, err := r.db.ExecContext(ctx, clearCartQuery, updatedAt, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeCart(raw []byte) ([]user.CartItem, error) {
	items := []user.CartItem{}
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}
