// Package testsupport holds helpers shared by package tests.
package testsupport

import (
	"context"
	"testing"

	"ctchen222/bookworm/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// NewSQLiteDB returns an initialized in-memory database closed at test cleanup.
func NewSQLiteDB(t testing.TB) *sqlx.DB {
	t.Helper()

	ctx := context.Background()
	conn, err := db.Connect(ctx, db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.InitializeDB(ctx, conn))

	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
