// Package store persists participants in memory or in a SQL database.
//
// Error contract shared by both implementations:
//   - sentinel.ErrNotFound when no participant matches
//   - sentinel.ErrAlreadyUsed when the email is already registered
//   - sentinel.ErrConflict when a mutation would reuse another participant's transaction id
//   - errors returned by an Execute validate callback are passed through unchanged
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"confreg/internal/registration/models"
	"confreg/pkg/platform/sentinel"
)

// InMemory stores participants keyed by email with a transaction id index.
type InMemory struct {
	mu      sync.RWMutex
	byEmail map[string]*models.Participant
	byTx    map[string]string
}

func NewInMemory() *InMemory {
	return &InMemory{
		byEmail: make(map[string]*models.Participant),
		byTx:    make(map[string]string),
	}
}

func (s *InMemory) Create(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[p.Email]; ok {
		return fmt.Errorf("participant %s: %w", p.Email, sentinel.ErrAlreadyUsed)
	}
	if p.PaymentTransactionID != "" {
		if _, ok := s.byTx[p.PaymentTransactionID]; ok {
			return fmt.Errorf("transaction %s: %w", p.PaymentTransactionID, sentinel.ErrConflict)
		}
		s.byTx[p.PaymentTransactionID] = p.Email
	}
	s.byEmail[p.Email] = p.Clone()
	return nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("participant not found: %w", sentinel.ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *InMemory) FindByTransactionID(_ context.Context, transactionID string) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email, ok := s.byTx[transactionID]
	if !ok || transactionID == "" {
		return nil, fmt.Errorf("transaction not found: %w", sentinel.ErrNotFound)
	}
	return s.byEmail[email].Clone(), nil
}

// List returns matching participants ordered by creation time, then email.
func (s *InMemory) List(_ context.Context, f models.Filter) ([]*models.Participant, error) {
	s.mu.RLock()
	out := make([]*models.Participant, 0, len(s.byEmail))
	for _, p := range s.byEmail {
		if matches(p, f) {
			out = append(out, p.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Participant) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.Email < b.Email {
			return -1
		}
		if a.Email > b.Email {
			return 1
		}
		return 0
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(p *models.Participant, f models.Filter) bool {
	if len(f.PaymentStatuses) > 0 && !slices.Contains(f.PaymentStatuses, p.PaymentStatus) {
		return false
	}
	if f.PaymentStartedBefore != nil {
		if p.PaymentStartedAt == nil || p.PaymentStartedAt.After(*f.PaymentStartedBefore) {
			return false
		}
	}
	return true
}

// Execute runs validate and mutate against a copy of the participant while
// holding the write lock, then stores the copy. Nothing is written when
// validate fails.
func (s *InMemory) Execute(_ context.Context, email string, validate func(*models.Participant) error, mutate func(*models.Participant)) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = models.NormalizeEmail(email)
	current, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("participant not found: %w", sentinel.ErrNotFound)
	}
	p := current.Clone()
	if err := validate(p); err != nil {
		return nil, err
	}
	mutate(p)

	if p.PaymentTransactionID != current.PaymentTransactionID && p.PaymentTransactionID != "" {
		if owner, taken := s.byTx[p.PaymentTransactionID]; taken && owner != email {
			return nil, fmt.Errorf("transaction %s: %w", p.PaymentTransactionID, sentinel.ErrConflict)
		}
	}
	if current.PaymentTransactionID != p.PaymentTransactionID {
		delete(s.byTx, current.PaymentTransactionID)
	}
	if p.PaymentTransactionID != "" {
		s.byTx[p.PaymentTransactionID] = email
	}
	s.byEmail[email] = p
	return p.Clone(), nil
}
