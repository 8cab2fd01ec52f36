package cart

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wichananm65/storefront-backend/internal/user"
)

func TestPostgresGetCart_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT cart FROM users").WithArgs(9).WillReturnRows(sqlmock.NewRows([]string{"cart"}))

	_, err = NewPostgresRepository(db).GetCart(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddToCart_LocksAndMerges(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT cart FROM users .* FOR UPDATE").WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"cart"}).AddRow([]byte(`[{"id":"p1","productId":"p1","title":"Bowl","price":10,"quantity":1}]`)))
	mock.ExpectExec("UPDATE users SET cart").
		WithArgs(sqlmock.AnyArg(), "2025-01-01T00:00:00Z", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	item := user.CartItem{ProductItem: user.ProductItem{ID: "p1", ProductID: "p1", Title: "Bowl", Price: 10}}
	items, err := NewPostgresRepository(db).AddToCart(context.Background(), 1, item, 2, "2025-01-01T00:00:00Z")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresClearCart(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE users SET cart = '\\[\\]'::jsonb").WithArgs("now", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET cart = '\\[\\]'::jsonb").WithArgs("now", 2).WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresRepository(db)
	assert.NoError(t, repo.ClearCart(context.Background(), 1, "now"))
	assert.ErrorIs(t, repo.ClearCart(context.Background(), 2, "now"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
