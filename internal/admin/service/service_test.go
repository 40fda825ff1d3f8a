package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"confreg/internal/admin/store"
	dErrors "confreg/pkg/domain-errors"
)

type AdminServiceSuite struct {
	suite.Suite
	store *store.InMemory
	svc   *Service
	ctx   context.Context
}

func TestAdminServiceSuite(t *testing.T) {
	suite.Run(t, new(AdminServiceSuite))
}

func (s *AdminServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.svc = New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHashCost(bcrypt.MinCost),
	)
	s.ctx = context.Background()
}

func (s *AdminServiceSuite) TestCreateAndAuthenticate() {
	a, err := s.svc.Create(s.ctx, " Chair@Example.org ", "correct horse battery")
	s.Require().NoError(err)
	s.Equal("chair@example.org", a.Email)
	s.NotEqual("correct horse battery", a.PasswordHash)

	s.NoError(s.svc.Authenticate(s.ctx, "chair@example.org", "correct horse battery"))
	s.NoError(s.svc.Authenticate(s.ctx, "CHAIR@example.org", "correct horse battery"))

	err = s.svc.Authenticate(s.ctx, "chair@example.org", "wrong password")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	err = s.svc.Authenticate(s.ctx, "ghost@example.org", "correct horse battery")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *AdminServiceSuite) TestCreateRejects() {
	_, err := s.svc.Create(s.ctx, "not-an-email", "correct horse battery")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.Create(s.ctx, "chair@example.org", "short")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.Create(s.ctx, "chair@example.org", "correct horse battery")
	s.Require().NoError(err)
	_, err = s.svc.Create(s.ctx, "chair@example.org", "another password")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *AdminServiceSuite) TestBootstrap() {
	s.Run("disabled without email", func() {
		created, err := s.svc.Bootstrap(s.ctx, "", "")
		s.NoError(err)
		s.False(created)
	})

	s.Run("creates once and keeps the existing password", func() {
		created, err := s.svc.Bootstrap(s.ctx, "root@example.org", "first password!")
		s.Require().NoError(err)
		s.True(created)

		created, err = s.svc.Bootstrap(s.ctx, "root@example.org", "second password!")
		s.Require().NoError(err)
		s.False(created)

		s.NoError(s.svc.Authenticate(s.ctx, "root@example.org", "first password!"))
		s.Error(s.svc.Authenticate(s.ctx, "root@example.org", "second password!"))
	})
}
