package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sandboxSalt = "96434309-7796-489d-8924-ab56988a6076"

func TestSigner_StatusQuery(t *testing.T) {
	s := NewSigner(sandboxSalt, "1")
	got := s.SignStatusQuery("PGTESTPAYUAT86", "TXN1767225600000ABCDEFGHIJ")
	assert.Equal(t, "e1d45a2f9ad01087d0cb1730c41d8c82e01d327944c3fc6fa6ee63babc01f1d6###1", got)
}

func TestSigner_PayRequest(t *testing.T) {
	s := NewSigner(sandboxSalt, "1")
	// base64 of {"a":1}
	got := s.SignPayRequest("eyJhIjoxfQ==")
	assert.Equal(t, "f3a40876c6cca01401f445cd99d456bb30d8cae943b0869fa7b7b6f615fb6059###1", got)
}

func TestSigner_SaltIndexSuffix(t *testing.T) {
	a := NewSigner("salt", "1").SignPayRequest("x")
	b := NewSigner("salt", "2").SignPayRequest("x")
	assert.Equal(t, a[:64], b[:64])
	assert.Equal(t, "###2", b[64:])
}

func TestSigner_DifferentSecretsDiffer(t *testing.T) {
	a := NewSigner("salt-a", "1").SignStatusQuery("M", "T")
	b := NewSigner("salt-b", "1").SignStatusQuery("M", "T")
	assert.NotEqual(t, a, b)
}

func TestSigner_VerifyCallback(t *testing.T) {
	s := NewSigner("salt", "1")
	payload := "eyJjb2RlIjoiUEFZTUVOVF9TVUNDRVNTIn0="
	header := s.SignCallback(payload)

	assert.True(t, s.VerifyCallback(payload, header))
	assert.True(t, s.VerifyCallback(payload, " "+header+" "))
	assert.False(t, s.VerifyCallback(payload+"x", header))
	assert.False(t, s.VerifyCallback(payload, ""))
}

func TestSigner_NeverPrintsSalt(t *testing.T) {
	s := NewSigner("super-secret", "3")
	assert.NotContains(t, s.String(), "super-secret")
}
