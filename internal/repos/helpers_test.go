package repos_test

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"circulation/internal/repos"
)

var t0 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func memdb(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := repos.OpenDB("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repos.SeedDemo(db))
	return db
}

func availableQty(t *testing.T, db *sqlx.DB, bookID string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT available_qty FROM books WHERE id = ?`, bookID))
	return n
}
