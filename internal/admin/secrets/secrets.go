// Package secrets hashes and checks admin passwords with bcrypt.
package secrets

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "confreg/pkg/domain-errors"
)

// MinPasswordLength is the shortest accepted admin password.
const MinPasswordLength = 10

// Hash creates a bcrypt hash of password at cost. A cost outside bcrypt's
// range falls back to bcrypt.DefaultCost.
func Hash(password string, cost int) (string, error) {
	if len(password) < MinPasswordLength {
		return "", dErrors.Newf(dErrors.CodeValidation, "password must be at least %d characters", MinPasswordLength)
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "password is too long")
		}
		return "", fmt.Errorf("could not hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify checks password against a bcrypt hash. A mismatch is
// CodeUnauthorized; a malformed hash is an internal error.
func Verify(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return fmt.Errorf("could not verify password: %w", err)
	}
	return nil
}
