package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "confreg/pkg/domain-errors"
)

var now = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func newParticipant(t *testing.T) *Participant {
	t.Helper()
	p, err := NewParticipant(uuid.New(), " Ada@Example.org ", "Ada", "9999999999", "", "Student (with ID)", now)
	require.NoError(t, err)
	return p
}

func TestNewParticipant(t *testing.T) {
	p := newParticipant(t)
	assert.Equal(t, "ada@example.org", p.Email)
	assert.Equal(t, AbstractUnset, p.AbstractStatus)
	assert.Equal(t, PaymentUnset, p.PaymentStatus)
	assert.Equal(t, PaperUnset, p.PaperStatus)

	_, err := NewParticipant(uuid.New(), "not-an-email", "Ada", "", "", "student", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	_, err = NewParticipant(uuid.New(), "a@b.c", "", "", "", "student", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestAbstractTransitions(t *testing.T) {
	tests := []struct {
		from   AbstractStatus
		to     AbstractStatus
		noop   bool
		errOut dErrors.Code
	}{
		{AbstractUnset, AbstractSubmitted, false, ""},
		{AbstractUnset, AbstractAccepted, false, dErrors.CodeInvalidTransition},
		{AbstractSubmitted, AbstractAccepted, false, ""},
		{AbstractSubmitted, AbstractRejected, false, ""},
		{AbstractSubmitted, AbstractSubmitted, true, ""},
		{AbstractAccepted, AbstractAccepted, true, ""},
		{AbstractAccepted, AbstractRejected, false, dErrors.CodeInvalidTransition},
		{AbstractRejected, AbstractSubmitted, false, dErrors.CodeInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			p := newParticipant(t)
			p.AbstractStatus = tt.from
			noop, err := p.CanRecordAbstract(tt.to)
			if tt.errOut != "" {
				assert.True(t, dErrors.HasCode(err, tt.errOut), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.noop, noop)
		})
	}
}

func TestBeginPayment(t *testing.T) {
	cycle := PaymentCycle{TransactionID: "TX1", Amount: 1200000, AccompanyingPersons: 1}

	t.Run("from unset", func(t *testing.T) {
		p := newParticipant(t)
		noop, err := p.CanBeginPayment(cycle)
		require.NoError(t, err)
		assert.False(t, noop)
		p.ApplyBeginPayment(cycle, now)
		assert.Equal(t, PaymentPending, p.PaymentStatus)
		assert.Equal(t, "TX1", p.PaymentTransactionID)
		assert.Equal(t, int64(1200000), p.PaymentAmount)
		assert.Equal(t, 1, p.AccompanyingPersons)
		require.NotNil(t, p.PaymentStartedAt)
	})

	t.Run("completed is final", func(t *testing.T) {
		p := newParticipant(t)
		p.PaymentStatus = PaymentCompleted
		_, err := p.CanBeginPayment(cycle)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePaymentAlreadyCompleted))
	})

	t.Run("same pending cycle is a no-op", func(t *testing.T) {
		p := newParticipant(t)
		p.ApplyBeginPayment(cycle, now)
		noop, err := p.CanBeginPayment(cycle)
		require.NoError(t, err)
		assert.True(t, noop)
	})

	t.Run("pending amount is immutable under the same id", func(t *testing.T) {
		p := newParticipant(t)
		p.ApplyBeginPayment(cycle, now)
		changed := cycle
		changed.Amount = 1
		_, err := p.CanBeginPayment(changed)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("new id supersedes pending", func(t *testing.T) {
		p := newParticipant(t)
		p.ApplyBeginPayment(cycle, now)
		noop, err := p.CanBeginPayment(PaymentCycle{TransactionID: "TX2", Amount: 1400000})
		require.NoError(t, err)
		assert.False(t, noop)
	})

	t.Run("failed needs a fresh id", func(t *testing.T) {
		p := newParticipant(t)
		p.ApplyBeginPayment(cycle, now)
		p.ApplyFailPayment(nil, now)
		_, err := p.CanBeginPayment(cycle)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
		_, err = p.CanBeginPayment(PaymentCycle{TransactionID: "TX3", Amount: 1})
		assert.NoError(t, err)
	})

	t.Run("invalid cycle", func(t *testing.T) {
		p := newParticipant(t)
		_, err := p.CanBeginPayment(PaymentCycle{TransactionID: "TX", Amount: 0})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = p.CanBeginPayment(PaymentCycle{Amount: 10})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = p.CanBeginPayment(PaymentCycle{TransactionID: "TX", Amount: 10, WorkshopParticipants: -1})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestCompleteAndFail(t *testing.T) {
	pending := func(t *testing.T) *Participant {
		p := newParticipant(t)
		p.ApplyBeginPayment(PaymentCycle{TransactionID: "TX1", Amount: 100}, now)
		return p
	}

	t.Run("complete matching pending", func(t *testing.T) {
		p := pending(t)
		noop, err := p.CanCompletePayment("TX1")
		require.NoError(t, err)
		assert.False(t, noop)
		p.ApplyCompletePayment(now, now)
		assert.Equal(t, PaymentCompleted, p.PaymentStatus)
		require.NotNil(t, p.PaymentDate)
	})

	t.Run("complete replay is a no-op", func(t *testing.T) {
		p := pending(t)
		p.ApplyCompletePayment(now, now)
		noop, err := p.CanCompletePayment("TX1")
		require.NoError(t, err)
		assert.True(t, noop)
	})

	t.Run("stale id", func(t *testing.T) {
		p := pending(t)
		_, err := p.CanCompletePayment("TX0")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeStaleTransaction))
		_, err = p.CanFailPayment("TX0")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeStaleTransaction))
	})

	t.Run("no cycle at all is stale", func(t *testing.T) {
		p := newParticipant(t)
		_, err := p.CanCompletePayment("")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeStaleTransaction))
	})

	t.Run("failed cannot complete", func(t *testing.T) {
		p := pending(t)
		p.ApplyFailPayment(nil, now)
		_, err := p.CanCompletePayment("TX1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("late failure after completion is a no-op", func(t *testing.T) {
		p := pending(t)
		p.ApplyCompletePayment(now, now)
		noop, err := p.CanFailPayment("TX1")
		require.NoError(t, err)
		assert.True(t, noop)
	})

	t.Run("fail records explicit date", func(t *testing.T) {
		p := pending(t)
		d := now.Add(time.Hour)
		p.ApplyFailPayment(&d, now)
		assert.Equal(t, PaymentFailed, p.PaymentStatus)
		require.NotNil(t, p.PaymentDate)
		assert.Equal(t, d, *p.PaymentDate)
	})
}

func TestPaperSubmission(t *testing.T) {
	p := newParticipant(t)
	_, err := p.CanSubmitPaper()
	assert.True(t, dErrors.HasCode(err, dErrors.CodePreconditionFailed))

	p.AbstractStatus = AbstractAccepted
	_, err = p.CanSubmitPaper()
	assert.True(t, dErrors.HasCode(err, dErrors.CodePreconditionFailed), "payment still missing")

	p.PaymentStatus = PaymentCompleted
	noop, err := p.CanSubmitPaper()
	require.NoError(t, err)
	assert.False(t, noop)

	p.ApplyPaperSubmission(now, now)
	noop, err = p.CanSubmitPaper()
	require.NoError(t, err)
	assert.True(t, noop)
}

func TestClone_IsDeep(t *testing.T) {
	p := newParticipant(t)
	p.ApplyBeginPayment(PaymentCycle{TransactionID: "TX1", Amount: 100}, now)
	c := p.Clone()
	*c.PaymentStartedAt = now.Add(time.Hour)
	assert.Equal(t, now, *p.PaymentStartedAt)
}

func TestParseStatuses(t *testing.T) {
	s, err := ParseAbstractStatus(" Accepted ")
	require.NoError(t, err)
	assert.Equal(t, AbstractAccepted, s)
	_, err = ParseAbstractStatus("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	ps, err := ParsePaymentStatus("FAILED")
	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, ps)
	_, err = ParsePaymentStatus("refunded")
	assert.Error(t, err)
}
