package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
)

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return Wrap(sqlx.NewDb(raw, "postgres"), logger.Nop()), mock
}

func TestWithTx_CommitsAndCarriesTransaction(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE checklists").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE checklist_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		_, isTx := db.Conn(ctx).(*sqlx.Tx)
		assert.True(t, isTx)
		if _, err := db.Conn(ctx).ExecContext(ctx, "UPDATE checklists SET status = 'completed'"); err != nil {
			return err
		}
		// Nested calls join the outer transaction.
		return db.WithTx(ctx, func(ctx context.Context) error {
			_, err := db.Conn(ctx).ExecContext(ctx, "UPDATE checklist_items SET is_completed = TRUE")
			return err
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	failure := errors.New("evaluation rejected")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		return failure
	})
	assert.ErrorIs(t, err, failure)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_RollsBackOnPanic(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = db.Transaction(context.Background(), func(*sqlx.Tx) error { panic("boom") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConn_WithoutTransactionUsesPool(t *testing.T) {
	db, _ := newMock(t)
	_, isTx := db.Conn(context.Background()).(*sqlx.Tx)
	assert.False(t, isTx)
}

func TestHealth(t *testing.T) {
	db, _ := newMock(t)
	h := db.Health(context.Background())
	assert.Equal(t, "up", h["status"])
	assert.Contains(t, h, "open_connections")
	assert.Contains(t, h, "in_use")
}
