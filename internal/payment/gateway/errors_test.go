package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "confreg/pkg/domain-errors"
)

func TestToDomain(t *testing.T) {
	rejected := newError(KindRejected, opPay, nil)
	rejected.Code, rejected.Message = "BAD_REQUEST", "amount invalid"

	tests := []struct {
		name string
		err  error
		code dErrors.Code
	}{
		{"rejection", rejected, dErrors.CodeGatewayRejected},
		{"unavailable", newError(KindUnavailable, opStatus, errors.New("dial tcp: refused")), dErrors.CodeGatewayUnavailable},
		{"protocol", newError(KindProtocol, opStatus, errors.New("bad json")), dErrors.CodeGatewayUnavailable},
		{"foreign error", errors.New("boom"), dErrors.CodeGatewayUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, dErrors.HasCode(ToDomain(tt.err), tt.code))
		})
	}
	assert.NoError(t, ToDomain(nil))
}

func TestError_Retryable(t *testing.T) {
	assert.True(t, newError(KindUnavailable, opStatus, nil).Retryable)
	assert.False(t, newError(KindRejected, opPay, nil).Retryable)
	assert.False(t, newError(KindProtocol, opPay, nil).Retryable)

	wrapped := errors.Join(errors.New("context"), newError(KindUnavailable, opStatus, ErrCircuitOpen))
	assert.True(t, IsUnavailable(wrapped))
	assert.ErrorIs(t, wrapped, ErrCircuitOpen)
	assert.False(t, IsRejected(wrapped))
}
