package address

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepository stores saved addresses in the address table, one row
// per entry, keyed by "userID".
type PostgresRepository struct {
	db *sql.DB
}

const (
	addressColumns = `"addressID", "userID", "addressName", "houseName", "streetArea", city, state, country, pincode, "createdAt", "updatedAt"`

	listAddressesQuery = `SELECT ` + addressColumns + ` FROM address WHERE "userID" = $1 ORDER BY "addressID"`
	insertAddressQuery = `
		INSERT INTO address ("userID", "addressName", "houseName", "streetArea", city, state, country, pincode, "createdAt", "updatedAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + addressColumns
	updateAddressQuery = `
		UPDATE address
		SET "addressName" = $3, "houseName" = $4, "streetArea" = $5, city = $6, state = $7, country = $8, pincode = $9, "updatedAt" = $10
		WHERE "userID" = $1 AND "addressID" = $2
		RETURNING ` + addressColumns
	deleteAddressQuery = `DELETE FROM address WHERE "userID" = $1 AND "addressID" = $2`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (Entry, error) {
	var e Entry
	var createdAt, updatedAt sql.NullString
	err := s.Scan(&e.AddressID, &e.UserID, &e.Name, &e.HouseName, &e.StreetArea, &e.City, &e.State, &e.Country, &e.Pincode, &createdAt, &updatedAt)
	e.CreatedAt = createdAt.String
	e.UpdatedAt = updatedAt.String
	return e, err
}

func (r *PostgresRepository) List(ctx context.Context, userID int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, listAddressesQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Add(ctx context.Context, e Entry) (Entry, error) {
	row := r.db.QueryRowContext(ctx, insertAddressQuery,
		e.UserID, e.Name, e.HouseName, e.StreetArea, e.City, e.State, e.Country, e.Pincode, e.CreatedAt, e.UpdatedAt)
	return scanEntry(row)
}

func (r *PostgresRepository) Update(ctx context.Context, e Entry) (Entry, error) {
	row := r.db.QueryRowContext(ctx, updateAddressQuery,
		e.UserID, e.AddressID, e.Name, e.HouseName, e.StreetArea, e.City, e.State, e.Country, e.Pincode, e.UpdatedAt)
	updated, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return updated, err
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, addressID int) error {
	res, err := r.db.ExecContext(ctx, deleteAddressQuery, userID, addressID)
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
