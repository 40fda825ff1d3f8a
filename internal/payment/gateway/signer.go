package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// API paths. They take part in the signed string, so they are fixed.
const (
	PayPath    = "/pg/v1/pay"
	StatusPath = "/pg/v1/status"

	signatureSeparator = "###"
)

// Signer derives X-VERIFY values: sha256hex(canonical + saltKey)###saltIndex.
// It holds no mutable state.
type Signer struct {
	saltKey   string
	saltIndex string
}

func NewSigner(saltKey, saltIndex string) *Signer {
	return &Signer{saltKey: saltKey, saltIndex: saltIndex}
}

// SignPayRequest signs the base64-encoded pay payload.
func (s *Signer) SignPayRequest(base64Payload string) string {
	return s.sign(base64Payload + PayPath)
}

// SignStatusQuery signs the status path for one transaction.
func (s *Signer) SignStatusQuery(merchantID, transactionID string) string {
	return s.sign(StatusQueryPath(merchantID, transactionID))
}

// SignCallback computes the signature the gateway attaches to a server-to-server
// callback, taken over the base64 "response" field (or the raw body when the
// callback carries no such field).
func (s *Signer) SignCallback(payload string) string {
	return s.sign(payload)
}

// VerifyCallback compares header against SignCallback(payload) in constant time.
func (s *Signer) VerifyCallback(payload, header string) bool {
	expected := s.SignCallback(payload)
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(header)))
}

// StatusQueryPath is the status endpoint path for one transaction.
func StatusQueryPath(merchantID, transactionID string) string {
	return StatusPath + "/" + merchantID + "/" + transactionID
}

func (s *Signer) sign(canonical string) string {
	sum := sha256.Sum256([]byte(canonical + s.saltKey))
	return hex.EncodeToString(sum[:]) + signatureSeparator + s.saltIndex
}

// String never includes the salt key.
func (s *Signer) String() string {
	return "gateway.Signer{saltIndex:" + s.saltIndex + "}"
}
