// Package models defines the conference administrator principal.
package models

import (
	"time"

	"github.com/google/uuid"

	"confreg/pkg/email"
)

// Admin is a conference administrator credential row.
type Admin struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// NormalizeEmail trims and lower-cases an admin login.
func NormalizeEmail(address string) string {
	return email.Normalize(address)
}
