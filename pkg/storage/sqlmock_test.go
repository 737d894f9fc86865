package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewSQLStore(db, "postgres")
	store.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return store, mock
}

func TestSQLStore_ChatCount_DBError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT chat_count FROM users WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnError(errors.New("connection reset"))

	_, err := store.ChatCount(context.Background(), 7)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SendUserMessage_Transaction(t *testing.T) {
	t.Run("commits decrement and insert", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE users SET chat_count = chat_count - 1 WHERE id = \$1 AND chat_count > 0`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO messages \(user_id, sender_type, content, created_at\)`).
			WithArgs(int64(1), "user", "hello", store.now()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		mock.ExpectCommit()

		msg, err := store.SendUserMessage(context.Background(), 1, "hello")
		require.NoError(t, err)
		assert.Equal(t, int64(11), msg.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when insert fails", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE users SET chat_count = chat_count - 1`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO messages`).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		_, err := store.SendUserMessage(context.Background(), 1, "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert message")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero balance", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE users SET chat_count = chat_count - 1`).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT 1 FROM users WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
		mock.ExpectRollback()

		_, err := store.SendUserMessage(context.Background(), 1, "hello")
		assert.ErrorIs(t, err, ErrInsufficientCredits)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin fails", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

		_, err := store.SendUserMessage(context.Background(), 1, "hello")
		assert.ErrorContains(t, err, "failed to begin transaction")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func purchaseRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "purchase_order_id", "pidx", "credits", "amount_paisa",
		"status", "gateway_status", "transaction_id", "created_at", "settled_at",
	}).AddRow(3, 1, "order-1", "pidx-1", 10, 25000, status, "Completed", "txn-1", time.Now(), nil)
}

func TestSQLStore_CompletePurchase_Transaction(t *testing.T) {
	t.Run("grants credits", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE purchases\s+SET status = \$1, gateway_status = \$2, transaction_id = \$3, settled_at = \$4\s+WHERE pidx = \$5 AND status = 'pending'`).
			WithArgs("completed", "Completed", "txn-1", store.now(), "pidx-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT .+ FROM purchases WHERE pidx = \$1`).
			WithArgs("pidx-1").
			WillReturnRows(purchaseRow("completed"))
		mock.ExpectExec(`UPDATE users SET chat_count = chat_count \+ \$1 WHERE id = \$2`).
			WithArgs(10, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		p, err := store.CompletePurchase(context.Background(), "pidx-1", "txn-1")
		require.NoError(t, err)
		assert.Equal(t, 10, p.Credits)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already settled grants nothing", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE purchases`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT .+ FROM purchases WHERE pidx = \$1`).
			WithArgs("pidx-1").
			WillReturnRows(purchaseRow("completed"))
		mock.ExpectRollback()

		_, err := store.CompletePurchase(context.Background(), "pidx-1", "txn-1")
		assert.ErrorIs(t, err, ErrAlreadySettled)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("grant failure rolls back settlement", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE purchases`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT .+ FROM purchases WHERE pidx = \$1`).
			WillReturnRows(purchaseRow("completed"))
		mock.ExpectExec(`UPDATE users SET chat_count = chat_count \+ \$1`).
			WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()

		_, err := store.CompletePurchase(context.Background(), "pidx-1", "txn-1")
		assert.ErrorContains(t, err, "failed to grant credits")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
