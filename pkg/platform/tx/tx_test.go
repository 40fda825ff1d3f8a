package tx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE seats (email TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	return db
}

func count(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM seats`).Scan(&n))
	return n
}

func insert(ctx context.Context, tx *sql.Tx, email string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO seats (email) VALUES (?)`, email)
	return err
}

func TestRun_Commits(t *testing.T) {
	db := openDB(t)
	err := Run(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		got, ok := From(ctx)
		require.True(t, ok)
		assert.Same(t, tx, got)
		return insert(ctx, tx, "ada@example.org")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, db))
}

func TestRun_RollsBackOnError(t *testing.T) {
	db := openDB(t)
	boom := errors.New("validation failed")
	err := Run(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		require.NoError(t, insert(ctx, tx, "ada@example.org"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, db))
}

func TestRun_NestedCallsJoinOuterTransaction(t *testing.T) {
	db := openDB(t)
	boom := errors.New("outer failure")
	err := Run(context.Background(), db, func(ctx context.Context, outer *sql.Tx) error {
		inner := Run(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			assert.Same(t, outer, tx)
			return insert(ctx, tx, "grace@example.org")
		})
		require.NoError(t, inner)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, db), "inner work is undone with the outer transaction")
}

func TestWithTx_NilLeavesContextAlone(t *testing.T) {
	ctx := WithTx(context.Background(), nil)
	_, ok := From(ctx)
	assert.False(t, ok)
}
