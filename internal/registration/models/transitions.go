package models

import (
	"time"

	dErrors "confreg/pkg/domain-errors"
)

// Each transition is split into a Can* check and an Apply* mutation so stores
// can run both under one row lock. Can* returns noop=true when the requested
// state is already in place; the caller then skips Apply*.

// CanRecordAbstract checks an abstract status change.
func (p *Participant) CanRecordAbstract(target AbstractStatus) (noop bool, err error) {
	if target == p.AbstractStatus && target != AbstractUnset {
		return true, nil
	}
	switch {
	case p.AbstractStatus == AbstractUnset && target == AbstractSubmitted:
		return false, nil
	case p.AbstractStatus == AbstractSubmitted && (target == AbstractAccepted || target == AbstractRejected):
		return false, nil
	}
	return false, dErrors.Newf(dErrors.CodeInvalidTransition,
		"abstract cannot move from %s to %s", displayAbstract(p.AbstractStatus), displayAbstract(target))
}

func (p *Participant) ApplyAbstract(target AbstractStatus, now time.Time) {
	p.AbstractStatus = target
	p.UpdatedAt = now
}

// PaymentCycle is one payment attempt. Amount is in paise.
type PaymentCycle struct {
	TransactionID        string
	Amount               int64
	AccompanyingPersons  int
	WorkshopParticipants int
}

// Validate checks the cycle's own fields.
func (c PaymentCycle) Validate() error {
	switch {
	case c.TransactionID == "":
		return dErrors.New(dErrors.CodeValidation, "transaction id is required")
	case c.Amount <= 0:
		return dErrors.New(dErrors.CodeValidation, "payment amount must be positive")
	case c.AccompanyingPersons < 0 || c.WorkshopParticipants < 0:
		return dErrors.New(dErrors.CodeValidation, "add-on counts cannot be negative")
	}
	return nil
}

// CanBeginPayment checks whether a new cycle may start. Unset and failed
// cycles may be replaced, and so may a pending one: an abandoned hosted page
// never reports back, so a new initiation supersedes it. Completed is final.
func (p *Participant) CanBeginPayment(c PaymentCycle) (noop bool, err error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	switch p.PaymentStatus {
	case PaymentCompleted:
		return false, dErrors.New(dErrors.CodePaymentAlreadyCompleted, "payment already completed")
	case PaymentPending:
		if c.TransactionID == p.PaymentTransactionID {
			if c.Amount == p.PaymentAmount &&
				c.AccompanyingPersons == p.AccompanyingPersons &&
				c.WorkshopParticipants == p.WorkshopParticipants {
				return true, nil
			}
			return false, dErrors.New(dErrors.CodeInvalidTransition, "pending cycle amount cannot change without a new transaction id")
		}
	case PaymentFailed:
		if c.TransactionID == p.PaymentTransactionID {
			return false, dErrors.New(dErrors.CodeInvalidTransition, "a failed cycle needs a new transaction id")
		}
	}
	return false, nil
}

func (p *Participant) ApplyBeginPayment(c PaymentCycle, now time.Time) {
	started := now
	p.PaymentStatus = PaymentPending
	p.PaymentTransactionID = c.TransactionID
	p.PaymentAmount = c.Amount
	p.AccompanyingPersons = c.AccompanyingPersons
	p.WorkshopParticipants = c.WorkshopParticipants
	p.PaymentStartedAt = &started
	p.PaymentDate = nil
	p.UpdatedAt = now
}

// CanCompletePayment checks a completion for transactionID. A completion
// replayed for the current, already completed cycle is a no-op.
func (p *Participant) CanCompletePayment(transactionID string) (noop bool, err error) {
	if transactionID == "" || transactionID != p.PaymentTransactionID {
		return false, dErrors.New(dErrors.CodeStaleTransaction, "transaction is not the current payment cycle")
	}
	switch p.PaymentStatus {
	case PaymentCompleted:
		return true, nil
	case PaymentPending:
		return false, nil
	}
	return false, dErrors.Newf(dErrors.CodeInvalidTransition,
		"payment cannot complete from %s", displayPayment(p.PaymentStatus))
}

func (p *Participant) ApplyCompletePayment(date, now time.Time) {
	d := date
	p.PaymentStatus = PaymentCompleted
	p.PaymentDate = &d
	p.UpdatedAt = now
}

// CanFailPayment checks a failure for transactionID. Completed wins over a
// late failure, and a repeated failure is a no-op; both report noop.
func (p *Participant) CanFailPayment(transactionID string) (noop bool, err error) {
	if transactionID == "" || transactionID != p.PaymentTransactionID {
		return false, dErrors.New(dErrors.CodeStaleTransaction, "transaction is not the current payment cycle")
	}
	switch p.PaymentStatus {
	case PaymentCompleted, PaymentFailed:
		return true, nil
	case PaymentPending:
		return false, nil
	}
	return false, dErrors.Newf(dErrors.CodeInvalidTransition,
		"payment cannot fail from %s", displayPayment(p.PaymentStatus))
}

// ApplyFailPayment marks the cycle failed. date is recorded when given.
func (p *Participant) ApplyFailPayment(date *time.Time, now time.Time) {
	p.PaymentStatus = PaymentFailed
	p.PaymentDate = cloneTime(date)
	p.UpdatedAt = now
}

// CanSubmitPaper requires an accepted abstract and a completed payment.
func (p *Participant) CanSubmitPaper() (noop bool, err error) {
	if p.AbstractStatus != AbstractAccepted {
		return false, dErrors.New(dErrors.CodePreconditionFailed, "paper submission requires an accepted abstract")
	}
	if p.PaymentStatus != PaymentCompleted {
		return false, dErrors.New(dErrors.CodePreconditionFailed, "paper submission requires a completed payment")
	}
	if p.PaperStatus == PaperSubmitted {
		return true, nil
	}
	return false, nil
}

func (p *Participant) ApplyPaperSubmission(date, now time.Time) {
	d := date
	p.PaperStatus = PaperSubmitted
	p.PaperSubmittedAt = &d
	p.UpdatedAt = now
}

func displayAbstract(s AbstractStatus) string {
	if s == AbstractUnset {
		return "unset"
	}
	return string(s)
}

func displayPayment(s PaymentStatus) string {
	if s == PaymentUnset {
		return "unset"
	}
	return string(s)
}
