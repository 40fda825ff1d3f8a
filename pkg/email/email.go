// Package email normalizes and checks the addresses used as participant and
// admin identities.
package email

import (
	"net/mail"
	"strings"
)

// MaxLength is the longest address accepted, per RFC 5321.
const MaxLength = 254

// Normalize trims and lower-cases an address so lookups are case-insensitive.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Valid reports whether address is a bare addr-spec. Display names and
// angle-bracket forms are rejected because the address is stored as a key.
func Valid(address string) bool {
	if address == "" || len(address) > MaxLength {
		return false
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return false
	}
	return parsed.Address == address && parsed.Name == ""
}
