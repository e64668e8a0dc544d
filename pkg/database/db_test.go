package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAndMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Path: filepath.Join(t.TempDir(), "nested", "data.db")}

	db, err := OpenAndMigrate(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM animes`).Scan(&n))
	require.Equal(t, 0, n)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db, err := OpenAndMigrate(ctx, Config{Path: filepath.Join(t.TempDir(), "data.db")})
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	err = WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO animes (title) VALUES ('x')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM animes`).Scan(&n))
	require.Equal(t, 0, n)

	require.NoError(t, WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO animes (title) VALUES ('y')`)
		return err
	}))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM animes`).Scan(&n))
	require.Equal(t, 1, n)
}
