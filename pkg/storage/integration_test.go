//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresStore starts a PostgreSQL container and returns a migrated store
func setupPostgresStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("mindful_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, Options{Driver: "postgres", URL: connStr, MaxOpenConns: 10})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewSQLStore(db, "postgres")
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestPostgresStore_CreditLifecycle(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	u := &User{Email: "pg@example.com", Name: "PG", ChatCount: 1}
	require.NoError(t, store.CreateUser(ctx, u))

	_, err := store.SendUserMessage(ctx, u.ID, "hello")
	require.NoError(t, err)
	_, err = store.SendUserMessage(ctx, u.ID, "again")
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	p := &Purchase{UserID: u.ID, OrderID: "order-pg", Credits: 10, AmountPaisa: 25000}
	require.NoError(t, store.CreatePurchase(ctx, p))
	require.NoError(t, store.SetPurchasePidx(ctx, p.ID, "pidx-pg"))

	_, err = store.CompletePurchase(ctx, "pidx-pg", "txn")
	require.NoError(t, err)
	_, err = store.CompletePurchase(ctx, "pidx-pg", "txn")
	assert.ErrorIs(t, err, ErrAlreadySettled)

	count, err := store.ChatCount(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	msgs, err := store.ListMessages(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	err = store.CreateUser(ctx, &User{Email: "pg@example.com"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgresStore_ChatRequests(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	u := &User{Email: "req@example.com", Name: "Req"}
	require.NoError(t, store.CreateUser(ctx, u))

	cr, err := store.CreateChatRequest(ctx, u.ID, "45 minutes")
	require.NoError(t, err)

	paid := true
	updated, err := store.UpdateChatRequest(ctx, cr.ID, "accepted", &paid)
	require.NoError(t, err)
	assert.True(t, updated.Paid)
	assert.Equal(t, "Req", updated.UserName)
}
