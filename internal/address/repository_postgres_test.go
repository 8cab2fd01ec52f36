package address

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entryCols = []string{"addressID", "userID", "addressName", "houseName", "streetArea", "city", "state", "country", "pincode", "createdAt", "updatedAt"}

func TestPostgresRepository_ListAndUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery(`FROM address WHERE "userID"`).WithArgs(7).
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow(3, 7, "Home", "12 Rose Villa", "MG Road", "Pune", "MH", "India", "411001", "t", nil))

	entries, err := repo.List(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "411001", entries[0].Pincode)
	assert.Equal(t, "", entries[0].UpdatedAt)

	mock.ExpectQuery("UPDATE address").WithArgs(7, 9, "Home", "h", "s", "c", "st", "co", "p", "now").
		WillReturnRows(sqlmock.NewRows(entryCols))

	_, err = repo.Update(context.Background(), Entry{AddressID: 9, UserID: 7, Name: "Home", Address: Address{HouseName: "h", StreetArea: "s", City: "c", State: "st", Country: "co", Pincode: "p"}, UpdatedAt: "now"})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_DeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM address").WithArgs(7, 1).WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgresRepository(db).Delete(context.Background(), 7, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
