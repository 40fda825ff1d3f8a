package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "confreg/pkg/domain-errors"
	"confreg/pkg/email"
)

// AbstractStatus tracks the abstract review. The zero value is unset.
type AbstractStatus string

const (
	AbstractUnset     AbstractStatus = ""
	AbstractSubmitted AbstractStatus = "submitted"
	AbstractAccepted  AbstractStatus = "accepted"
	AbstractRejected  AbstractStatus = "rejected"
)

// ParseAbstractStatus accepts submitted, accepted or rejected.
func ParseAbstractStatus(s string) (AbstractStatus, error) {
	switch v := AbstractStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case AbstractSubmitted, AbstractAccepted, AbstractRejected:
		return v, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "invalid abstract status %q", s)
}

// PaymentStatus tracks the fee payment. The zero value is unset.
type PaymentStatus string

const (
	PaymentUnset     PaymentStatus = ""
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// ParsePaymentStatus accepts pending, completed or failed.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch v := PaymentStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case PaymentPending, PaymentCompleted, PaymentFailed:
		return v, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "invalid payment status %q", s)
}

// PaperStatus tracks the full paper. The zero value is unset.
type PaperStatus string

const (
	PaperUnset     PaperStatus = ""
	PaperSubmitted PaperStatus = "submitted"
)

// Participant is a registered conference attendee.
//
// Invariants:
//   - Email is the unique key, stored lower case
//   - PaperStatus becomes submitted only once the abstract is accepted and the payment completed
//   - PaymentStatus moves to completed or failed only from pending, and only for the
//     stored PaymentTransactionID; completed is terminal
//   - PaymentAmount and the add-on counts belong to the current cycle and change only
//     together with a new PaymentTransactionID
//   - PaymentTransactionID is unique across participants (enforced by the store)
type Participant struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Mobile   string    `json:"mobile"`
	Address  string    `json:"address,omitempty"`
	Category string    `json:"category"`

	AbstractStatus AbstractStatus `json:"abstract_status"`

	PaymentStatus        PaymentStatus `json:"payment_status"`
	PaymentTransactionID string        `json:"payment_transaction_id,omitempty"`
	// PaymentAmount is in paise.
	PaymentAmount        int64      `json:"payment_amount"`
	PaymentStartedAt     *time.Time `json:"payment_started_at,omitempty"`
	PaymentDate          *time.Time `json:"payment_date,omitempty"`
	AccompanyingPersons  int        `json:"accompanying_persons"`
	WorkshopParticipants int        `json:"workshop_participants"`

	PaperStatus      PaperStatus `json:"paper_status"`
	PaperSubmittedAt *time.Time  `json:"paper_submitted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(address string) string {
	return email.Normalize(address)
}

// NewParticipant validates identity fields and returns a participant with
// every status unset.
func NewParticipant(id uuid.UUID, emailAddr, name, mobile, address, category string, now time.Time) (*Participant, error) {
	emailAddr = NormalizeEmail(emailAddr)
	name = strings.TrimSpace(name)
	if !email.Valid(emailAddr) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a valid email is required")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "name is required")
	}
	if strings.TrimSpace(category) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "category is required")
	}
	return &Participant{
		ID:        id,
		Email:     emailAddr,
		Name:      name,
		Mobile:    strings.TrimSpace(mobile),
		Address:   strings.TrimSpace(address),
		Category:  strings.TrimSpace(category),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Clone returns a deep copy.
func (p *Participant) Clone() *Participant {
	c := *p
	c.PaymentStartedAt = cloneTime(p.PaymentStartedAt)
	c.PaymentDate = cloneTime(p.PaymentDate)
	c.PaperSubmittedAt = cloneTime(p.PaperSubmittedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
