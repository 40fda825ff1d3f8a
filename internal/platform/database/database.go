// Package database opens the relational backends and applies embedded
// migrations. Queries are written with ? placeholders and rebound per dialect.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"confreg/internal/platform/config"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Rebind rewrites ? placeholders to $n for Postgres.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ForUpdate is the row-lock suffix for a SELECT inside a transaction. SQLite
// locks the whole database for an immediate transaction, so it needs none.
func (d Dialect) ForUpdate() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if d == Postgres {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Open opens and pings the configured backend.
func Open(ctx context.Context, cfg config.Storage) (*sql.DB, Dialect, error) {
	var (
		driver  string
		dsn     = cfg.DSN
		dialect Dialect
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		driver, dialect = "pgx", Postgres
	case config.DriverSQLite:
		driver, dialect = "sqlite", SQLite
		dsn = SQLiteDSN(dsn)
	default:
		return nil, "", fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open %s db: %w", dialect, err)
	}
	if dialect == SQLite {
		// A single writer connection avoids SQLITE_BUSY between pooled handles.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping %s db: %w", dialect, err)
	}
	return db, dialect, nil
}

// SQLiteDSN appends the pragmas the stores rely on unless the caller set them.
func SQLiteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") || strings.Contains(dsn, "_txlock=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
}
