package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMigrate_AppliesPendingVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))

	// 001 is already recorded
	mock.ExpectQuery("SELECT 1 FROM schema_migrations").WithArgs("001_users.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	for _, version := range []string{"002_orders.sql", "003_payments.sql"} {
		mock.ExpectQuery("SELECT 1 FROM schema_migrations").WithArgs(version).WillReturnError(sql.ErrNoRows)
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO schema_migrations").WithArgs(version).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()
	}
	mock.ExpectQuery("SELECT 1 FROM schema_migrations").WithArgs("004_order_payment_reference.sql").WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec(`ALTER TABLE orders ADD COLUMN IF NOT EXISTS "razorpayPaymentId"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("004_order_payment_reference.sql").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), db, discardLogger()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RollsBackFailedScript(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM schema_migrations").WithArgs("001_users.sql").WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = Migrate(context.Background(), db, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 001_users.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
