package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	dErrors "confreg/pkg/domain-errors"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("correct horse battery", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotContains(t, hash, "correct horse")

	assert.NoError(t, Verify("correct horse battery", hash))

	err = Verify("wrong password!", hash)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestHash_Rejects(t *testing.T) {
	_, err := Hash("short", bcrypt.MinCost)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = Hash(strings.Repeat("x", 80), bcrypt.MinCost)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestVerify_MalformedHash(t *testing.T) {
	err := Verify("correct horse battery", "not-a-hash")
	require.Error(t, err)
	assert.False(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
