package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wichananm65/storefront-backend/internal/address"
)

type PostgresRepository struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	userColumns = `"userId", email, password, "firstName", "lastName", phone, "profilePic", "shippingAddress", "billingAddress", cart, wishlist, "orderHistory", "createAt", "updateAt"`

	getUserByIDQuery    = `SELECT ` + userColumns + ` FROM users WHERE "userId" = $1`
	getUserByEmailQuery = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	getUserByPhoneQuery = `SELECT ` + userColumns + ` FROM users WHERE phone = $1 AND phone <> '' LIMIT 1`

	insertUserQuery = `
		INSERT INTO users (email, password, "firstName", "lastName", phone, "profilePic", "shippingAddress", "billingAddress", "createAt", "updateAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING "userId"
	`
	updateUserQuery = `
		UPDATE users
		SET "firstName" = $1,
			"lastName" = $2,
			phone = $3,
			"profilePic" = $4,
			"shippingAddress" = $5,
			"billingAddress" = $6,
			"updateAt" = $7
		WHERE "userId" = $8
	`
	lockHistoryQuery   = `SELECT "orderHistory" FROM users WHERE "userId" = $1 FOR UPDATE`
	updateHistoryQuery = `UPDATE users SET "orderHistory" = $1, "updateAt" = $2 WHERE "userId" = $3`

	uniqueViolation = "23505"
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int) (User, error) {
	return r.getOne(ctx, getUserByIDQuery, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.getOne(ctx, getUserByEmailQuery, email)
}

func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (User, error) {
	return r.getOne(ctx, getUserByPhoneQuery, phone)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user User) (User, error) {
	shipping, err := marshalAddress(user.ShippingAddress)
	if err != nil {
		return User{}, err
	}
	billing, err := marshalAddress(user.BillingAddress)
	if err != nil {
		return User{}, err
	}

	var id int
	err = r.db.QueryRowContext(ctx, insertUserQuery,
		user.Email,
		user.Password,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.ProfilePic,
		shipping,
		billing,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, ErrEmailExists
		}
		return User{}, err
	}

	user.ID = id
	return user, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id int, userUpdate User) (User, error) {
	shipping, err := marshalAddress(userUpdate.ShippingAddress)
	if err != nil {
		return User{}, err
	}
	billing, err := marshalAddress(userUpdate.BillingAddress)
	if err != nil {
		return User{}, err
	}

	result, err := r.db.ExecContext(ctx, updateUserQuery,
		userUpdate.FirstName,
		userUpdate.LastName,
		userUpdate.Phone,
		userUpdate.ProfilePic,
		shipping,
		billing,
		userUpdate.UpdatedAt,
		id,
	)
	if err != nil {
		return User{}, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return User{}, err
	}
	if affected == 0 {
		return User{}, ErrNotFound
	}

	return r.GetByID(ctx, id)
}

// UpsertHistoryEntry rewrites the orderHistory array under a row lock so
// concurrent projections of different orders do not drop each other.
func (r *PostgresRepository) UpsertHistoryEntry(ctx context.Context, userID int, entry HistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw []byte
	if err := tx.QueryRowContext(ctx, lockHistoryQuery, userID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	var history []HistoryEntry
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &history); err != nil {
			return fmt.Errorf("decode order history: %w", err)
		}
	}
	encoded, err := json.Marshal(upsertHistory(history, entry))
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, updateHistoryQuery, string(encoded), now, userID); err != nil {
		return err
	}
	return tx.Commit()
}

func marshalAddress(a *address.Address) (any, error) {
	if a == nil {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanUser(scanner rowScanner) (User, error) {
	user := User{}
	var shipping, billing, cart, wishlist, history []byte
	var createdAt, updatedAt sql.NullString

	if err := scanner.Scan(
		&user.ID,
		&user.Email,
		&user.Password,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.ProfilePic,
		&shipping,
		&billing,
		&cart,
		&wishlist,
		&history,
		&createdAt,
		&updatedAt,
	); err != nil {
		return User{}, err
	}

	if len(shipping) > 0 && string(shipping) != "null" {
		user.ShippingAddress = new(address.Address)
		if err := json.Unmarshal(shipping, user.ShippingAddress); err != nil {
			return User{}, err
		}
	}
	if len(billing) > 0 && string(billing) != "null" {
		user.BillingAddress = new(address.Address)
		if err := json.Unmarshal(billing, user.BillingAddress); err != nil {
			return User{}, err
		}
	}
	for _, col := range []struct {
		raw  []byte
		dest any
	}{
		{cart, &user.Cart},
		{wishlist, &user.Wishlist},
		{history, &user.OrderHistory},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dest); err != nil {
			return User{}, err
		}
	}

	user.CreatedAt = createdAt.String
	user.UpdatedAt = updatedAt.String
	return user, nil
}
