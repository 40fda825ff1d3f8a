package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"confreg/internal/admin/models"
	"confreg/internal/admin/store/migrations"
	"confreg/internal/platform/database"
	"confreg/pkg/platform/sentinel"
)

// SQLStore keeps admins next to participants in the same database.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewSQL(db *sql.DB, dialect database.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate applies the embedded admin schema.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return database.Migrate(ctx, s.db, s.dialect, migrations.FS, ".")
}

func (s *SQLStore) Create(ctx context.Context, a *models.Admin) error {
	_, err := s.db.ExecContext(ctx,
		s.dialect.Rebind(`INSERT INTO admins (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`),
		a.ID.String(), a.Email, a.PasswordHash, a.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("admin %s: %w", a.Email, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}

func (s *SQLStore) FindByEmail(ctx context.Context, email string) (*models.Admin, error) {
	var (
		a         models.Admin
		id        string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT id, email, password_hash, created_at FROM admins WHERE email = ?`),
		models.NormalizeEmail(email),
	).Scan(&id, &a.Email, &a.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("admin not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find admin: %w", err)
	}
	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse admin id: %w", err)
	}
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &a, nil
}
