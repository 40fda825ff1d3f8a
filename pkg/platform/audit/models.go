package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryFinancial covers payment state changes. These are the rows a
	// treasurer reconciles against the gateway settlement report.
	CategoryFinancial EventCategory = "financial"

	// CategoryAdministrative covers actions taken by a conference admin.
	CategoryAdministrative EventCategory = "administrative"

	// CategoryOperations covers routine activity that is useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Action names an audited transition.
type Action string

const (
	ActionParticipantRegistered Action = "participant_registered"
	ActionAbstractSubmitted     Action = "abstract_submitted"
	ActionAbstractReviewed      Action = "abstract_status_changed"
	ActionPaperSubmitted        Action = "paper_submitted"

	ActionPaymentInitiated  Action = "payment_initiated"
	ActionPaymentCompleted  Action = "payment_completed"
	ActionPaymentFailed     Action = "payment_failed"
	ActionPaymentOverridden Action = "payment_overridden"
	ActionStaleOutcome      Action = "payment_outcome_stale"
)

var actionCategories = map[Action]EventCategory{
	ActionPaymentInitiated:  CategoryFinancial,
	ActionPaymentCompleted:  CategoryFinancial,
	ActionPaymentFailed:     CategoryFinancial,
	ActionPaymentOverridden: CategoryAdministrative,
	ActionAbstractReviewed:  CategoryAdministrative,
}

// Category returns the EventCategory for this action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID            uuid.UUID     `json:"id"`
	Category      EventCategory `json:"category"`
	Timestamp     time.Time     `json:"timestamp"`
	Action        Action        `json:"action"`
	Email         string        `json:"email"`
	TransactionID string        `json:"transaction_id,omitempty"`
	// GatewayReference is the gateway's own id for a settled payment.
	GatewayReference string `json:"gateway_reference,omitempty"`
	// AmountMinor is the payment amount in the smallest currency unit.
	AmountMinor int64  `json:"amount_minor,omitempty"`
	Source      string `json:"source,omitempty"`
	Reason      string `json:"reason,omitempty"`
	// ActorID is the admin email for administrative actions.
	ActorID   string `json:"actor_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader lists audit events for a participant, oldest first.
type Reader interface {
	ListByEmail(ctx context.Context, email string) ([]Event, error)
}
