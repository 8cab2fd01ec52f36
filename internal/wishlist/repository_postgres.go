package wishlist

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
	getWishlistQuery    = `SELECT wishlist FROM users WHERE "userId" = $1`
	lockWishlistQuery   = `SELECT wishlist FROM users WHERE "userId" = $1 FOR UPDATE`
	updateWishlistQuery = `UPDATE users SET wishlist = $1, "updateAt" = $2 WHERE "userId" = $3`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetWishlist(ctx context.Context, userID int) ([]user.ProductItem, error) {
	var raw []byte
	if err := r.db.QueryRowContext(ctx, getWishlistQuery, userID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeWishlist(raw)
}

func (r *PostgresRepository) ReplaceWishlist(ctx context.Context, userID int, items []user.ProductItem, updatedAt string) ([]user.ProductItem, error) {
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, updateWishlistQuery, string(encoded), updatedAt, userID)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return items, nil
}

func (r *PostgresRepository) AddToWishlist(ctx context.Context, userID int, item user.ProductItem, updatedAt string) ([]user.ProductItem, error) {
	return r.mutate(ctx, userID, updatedAt, func(items []user.ProductItem) ([]user.ProductItem, error) {
		return addItem(items, item)
	})
}

func (r *PostgresRepository) RemoveFromWishlist(ctx context.Context, userID int, productID string, updatedAt string) ([]user.ProductItem, error) {
	return r.mutate(ctx, userID, updatedAt, func(items []user.ProductItem) ([]user.ProductItem, error) {
		return removeItem(items, productID)
	})
}

// mutate applies fn to the row-locked wishlist inside one transaction.
func (r *PostgresRepository) mutate(ctx context.Context, userID int, updatedAt string, fn func([]user.ProductItem) ([]user.ProductItem, error)) ([]user.ProductItem, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var raw []byte
	if err := tx.QueryRowContext(ctx, lockWishlistQuery, userID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	items, err := decodeWishlist(raw)
	if err != nil {
		return nil, err
	}
	items, err = fn(items)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, updateWishlistQuery, string(encoded), updatedAt, userID); err != nil {
		return nil, err
	}
	return items, tx.Commit()
}

func decodeWishlist(raw []byte) ([]user.ProductItem, error) {
	items := []user.ProductItem{}
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}
