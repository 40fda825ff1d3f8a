// Package service authenticates conference administrators and seeds the
// bootstrap account.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"confreg/internal/admin/models"
	"confreg/internal/admin/secrets"
	dErrors "confreg/pkg/domain-errors"
	emailaddr "confreg/pkg/email"
	"confreg/pkg/platform/sentinel"
	"confreg/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, a *models.Admin) error
	FindByEmail(ctx context.Context, email string) (*models.Admin, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
	cost   int

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHashCost sets the bcrypt cost for new passwords.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		cost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds an admin. A taken email is a conflict.
func (s *Service) Create(ctx context.Context, email, password string) (*models.Admin, error) {
	email = models.NormalizeEmail(email)
	if !emailaddr.Valid(email) {
		return nil, dErrors.New(dErrors.CodeValidation, "admin email is invalid")
	}
	hash, err := secrets.Hash(password, s.cost)
	if err != nil {
		return nil, err
	}
	a := &models.Admin{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "admin already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create admin")
	}
	return a, nil
}

// Bootstrap creates the configured admin unless one with that email exists.
// An existing row keeps its password.
func (s *Service) Bootstrap(ctx context.Context, email, password string) (created bool, err error) {
	if email == "" {
		return false, nil
	}
	_, err = s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up bootstrap admin")
	}

	a, err := s.Create(ctx, email, password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			return false, nil
		}
		return false, err
	}
	s.logger.InfoContext(ctx, "bootstrap admin created", "email", a.Email)
	return true, nil
}

// Authenticate checks an admin's credentials. Unknown emails still pay for
// one bcrypt comparison so the two failure cases take the same time.
func (s *Service) Authenticate(ctx context.Context, email, password string) error {
	a, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up admin")
		}
		_ = secrets.Verify(password, s.dummy())
		return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	if err := secrets.Verify(password, a.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify admin credentials")
	}
	return nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("confreg-dummy-password"), s.hashCost())
		if err == nil {
			s.dummyHash = string(hash)
		}
	})
	return s.dummyHash
}

func (s *Service) hashCost() int {
	if s.cost < bcrypt.MinCost || s.cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return s.cost
}
