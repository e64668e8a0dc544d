// Package dbtest opens throwaway migrated databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"animehub/pkg/database"
)

func Open(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.OpenAndMigrate(context.Background(), database.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// InsertUser creates a user row and returns its id.
func InsertUser(t testing.TB, db *sql.DB, id, username string) string {
	t.Helper()
	_, err := db.Exec(`INSERT INTO users (id, username, email, password_hash) VALUES (?, ?, ?, 'x')`,
		id, username, username+"@example.com")
	require.NoError(t, err)
	return id
}
