// Package store persists admin credential rows in memory or in SQL.
//
// Both implementations return sentinel.ErrNotFound for an unknown email and
// sentinel.ErrAlreadyUsed when the email is taken.
package store

import (
	"context"
	"fmt"
	"sync"

	"confreg/internal/admin/models"
	"confreg/pkg/platform/sentinel"
)

type InMemory struct {
	mu      sync.RWMutex
	byEmail map[string]models.Admin
}

func NewInMemory() *InMemory {
	return &InMemory{byEmail: make(map[string]models.Admin)}
}

func (s *InMemory) Create(_ context.Context, a *models.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[a.Email]; ok {
		return fmt.Errorf("admin %s: %w", a.Email, sentinel.ErrAlreadyUsed)
	}
	s.byEmail[a.Email] = *a
	return nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("admin not found: %w", sentinel.ErrNotFound)
	}
	return &a, nil
}
