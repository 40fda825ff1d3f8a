package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"confreg/internal/platform/database"
	"confreg/internal/registration/models"
	"confreg/internal/registration/store/migrations"
	"confreg/pkg/platform/sentinel"
	txcontext "confreg/pkg/platform/tx"
)

// SQLStore persists participants in Postgres or SQLite. Times are stored as
// unix milliseconds so one schema serves both dialects.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewSQL(db *sql.DB, dialect database.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate applies the embedded participant schema.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return database.Migrate(ctx, s.db, s.dialect, migrations.FS, ".")
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const participantColumns = `id, email, name, mobile, address, category,
	abstract_status, payment_status, payment_transaction_id, payment_amount,
	payment_started_at, payment_date, accompanying_persons, workshop_participants,
	paper_status, paper_submitted_at, created_at, updated_at`

func (s *SQLStore) Create(ctx context.Context, p *models.Participant) error {
	query := s.dialect.Rebind(`INSERT INTO participants (` + participantColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.q(ctx).ExecContext(ctx, query,
		p.ID.String(),
		p.Email,
		p.Name,
		p.Mobile,
		p.Address,
		p.Category,
		string(p.AbstractStatus),
		string(p.PaymentStatus),
		p.PaymentTransactionID,
		p.PaymentAmount,
		nullMillis(p.PaymentStartedAt),
		nullMillis(p.PaymentDate),
		p.AccompanyingPersons,
		p.WorkshopParticipants,
		string(p.PaperStatus),
		nullMillis(p.PaperSubmittedAt),
		toMillis(p.CreatedAt),
		toMillis(p.UpdatedAt),
	)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			if isTransactionIndex(err) {
				return fmt.Errorf("transaction %s: %w", p.PaymentTransactionID, sentinel.ErrConflict)
			}
			return fmt.Errorf("participant %s: %w", p.Email, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

func (s *SQLStore) FindByEmail(ctx context.Context, email string) (*models.Participant, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT `+participantColumns+` FROM participants WHERE email = ?`),
		models.NormalizeEmail(email))
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("participant not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find participant by email: %w", err)
	}
	return p, nil
}

func (s *SQLStore) FindByTransactionID(ctx context.Context, transactionID string) (*models.Participant, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("transaction not found: %w", sentinel.ErrNotFound)
	}
	row := s.q(ctx).QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT `+participantColumns+` FROM participants WHERE payment_transaction_id = ?`),
		transactionID)
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find participant by transaction: %w", err)
	}
	return p, nil
}

// List returns matching participants ordered by creation time, then email.
func (s *SQLStore) List(ctx context.Context, f models.Filter) ([]*models.Participant, error) {
	var (
		where []string
		args  []any
	)
	if len(f.PaymentStatuses) > 0 {
		statuses := make([]string, len(f.PaymentStatuses))
		for i, st := range f.PaymentStatuses {
			statuses[i] = string(st)
		}
		if s.dialect == database.Postgres {
			where = append(where, "payment_status = ANY(?::text[])")
			args = append(args, pq.Array(statuses))
		} else {
			where = append(where, "payment_status IN (?"+strings.Repeat(", ?", len(statuses)-1)+")")
			for _, st := range statuses {
				args = append(args, st)
			}
		}
	}
	if f.PaymentStartedBefore != nil {
		where = append(where, "payment_started_at IS NOT NULL AND payment_started_at <= ?")
		args = append(args, toMillis(*f.PaymentStartedBefore))
	}

	query := `SELECT ` + participantColumns + ` FROM participants`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, email ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.q(ctx).QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("list participants: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return out, nil
}

// Execute locks the participant row, runs validate and mutate, and writes the
// result back in one transaction. When ctx already carries a transaction the
// work joins it and the caller owns commit.
func (s *SQLStore) Execute(ctx context.Context, email string, validate func(*models.Participant) error, mutate func(*models.Participant)) (*models.Participant, error) {
	var p *models.Participant
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		p, err = s.execute(ctx, tx, email, validate, mutate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLStore) execute(ctx context.Context, tx *sql.Tx, email string, validate func(*models.Participant) error, mutate func(*models.Participant)) (*models.Participant, error) {
	row := tx.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT `+participantColumns+` FROM participants WHERE email = ?`+s.dialect.ForUpdate()),
		models.NormalizeEmail(email))
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("participant not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock participant: %w", err)
	}

	if err := validate(p); err != nil {
		return nil, err
	}
	mutate(p)

	_, err = tx.ExecContext(ctx, s.dialect.Rebind(`UPDATE participants SET
		name = ?, mobile = ?, address = ?, category = ?,
		abstract_status = ?, payment_status = ?, payment_transaction_id = ?, payment_amount = ?,
		payment_started_at = ?, payment_date = ?, accompanying_persons = ?, workshop_participants = ?,
		paper_status = ?, paper_submitted_at = ?, updated_at = ?
		WHERE email = ?`),
		p.Name,
		p.Mobile,
		p.Address,
		p.Category,
		string(p.AbstractStatus),
		string(p.PaymentStatus),
		p.PaymentTransactionID,
		p.PaymentAmount,
		nullMillis(p.PaymentStartedAt),
		nullMillis(p.PaymentDate),
		p.AccompanyingPersons,
		p.WorkshopParticipants,
		string(p.PaperStatus),
		nullMillis(p.PaperSubmittedAt),
		toMillis(p.UpdatedAt),
		p.Email,
	)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return nil, fmt.Errorf("transaction %s: %w", p.PaymentTransactionID, sentinel.ErrConflict)
		}
		return nil, fmt.Errorf("update participant: %w", err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (*models.Participant, error) {
	var (
		p                                   models.Participant
		id                                  string
		abstract, payment, paper            string
		startedAt, paymentDate, submittedAt sql.NullInt64
		createdAt, updatedAt                int64
	)
	if err := row.Scan(
		&id,
		&p.Email,
		&p.Name,
		&p.Mobile,
		&p.Address,
		&p.Category,
		&abstract,
		&payment,
		&p.PaymentTransactionID,
		&p.PaymentAmount,
		&startedAt,
		&paymentDate,
		&p.AccompanyingPersons,
		&p.WorkshopParticipants,
		&paper,
		&submittedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("participant id %q: %w", id, err)
	}
	p.ID = parsed
	p.AbstractStatus = models.AbstractStatus(abstract)
	p.PaymentStatus = models.PaymentStatus(payment)
	p.PaperStatus = models.PaperStatus(paper)
	p.PaymentStartedAt = fromNullMillis(startedAt)
	p.PaymentDate = fromNullMillis(paymentDate)
	p.PaperSubmittedAt = fromNullMillis(submittedAt)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func isTransactionIndex(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "payment_transaction_id") || strings.Contains(msg, "participants_payment_tx_idx")
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
