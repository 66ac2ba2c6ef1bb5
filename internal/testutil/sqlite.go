package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ammar0144/orm4go/pkg/db"
)

// NewSQLite opens a private in-memory SQLite database and runs statements on it in order.
// The manager is closed when the test ends.
func NewSQLite(t testing.TB, statements ...string) *db.Manager {
	t.Helper()

	cfg := &db.Config{
		Driver:       db.DialectSQLite,
		Database:     ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		Logging:      db.LoggingConfig{LogQueries: true, LogQueryParameters: true},
	}
	m, err := db.NewManager(cfg, db.WithLogger(NewTestLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	Exec(t, m.Conn(), statements...)
	return m
}

// Exec runs each statement, failing the test on the first error.
func Exec(t testing.TB, exec db.Executor, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := exec.Exec(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}
}

// Count returns the number of rows of table matching where, all rows when where is empty.
func Count(t testing.TB, exec db.Executor, table, where string, args ...any) int64 {
	t.Helper()
	query := "SELECT COUNT(*) AS n FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	rows, err := exec.Query(context.Background(), query, args...)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	n, ok := rows[0]["n"].(int64)
	require.True(t, ok, "count is %T", rows[0]["n"])
	return n
}
