package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := "UPDATE t SET a = ?, b = ? WHERE c = ?"
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE c = $3", Postgres.Rebind(q))
	assert.Equal(t, q, SQLite.Rebind(q))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, Postgres.IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, Postgres.IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, SQLite.IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: participants.email (2067)")))
	assert.False(t, SQLite.IsUniqueViolation(nil))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Contains(t, SQLiteDSN("file:x.db"), "file:x.db?_pragma=busy_timeout(5000)")
	assert.Contains(t, SQLiteDSN("file:x.db?mode=memory"), "file:x.db?mode=memory&_pragma=")
	assert.Equal(t, "file:x.db?_txlock=deferred", SQLiteDSN("file:x.db?_txlock=deferred"))
}

func TestExtractUp(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id TEXT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (id TEXT);\n", ExtractUp(content))
	assert.Equal(t, "CREATE TABLE b (id TEXT);", ExtractUp("CREATE TABLE b (id TEXT);"))
}

func TestMigrate_AppliesOnce(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	fsys := fstest.MapFS{
		"m/001_init.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE widgets (id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE widgets;")},
		"m/002_more.sql": {Data: []byte("ALTER TABLE widgets ADD COLUMN name TEXT;")},
		"m/README.md":    {Data: []byte("ignored")},
	}

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db, SQLite, fsys, "m"))
	require.NoError(t, Migrate(ctx, db, SQLite, fsys, "m"), "second run must be a no-op")

	var applied int
	require.NoError(t, db.QueryRow("SELECT COUNT(1) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 2, applied)

	_, err = db.Exec("INSERT INTO widgets (id, name) VALUES ('w1', 'gear')")
	assert.NoError(t, err)
}
