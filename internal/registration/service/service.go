// Package service owns the participant state machine: every change to the
// abstract, payment, or paper status of a participant goes through here.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"confreg/internal/registration/metrics"
	"confreg/internal/registration/models"
	dErrors "confreg/pkg/domain-errors"
	"confreg/pkg/platform/audit"
	"confreg/pkg/platform/sentinel"
	"confreg/pkg/requestcontext"
)

// Store is the participant persistence port. Execute must run validate and
// mutate atomically per participant row.
type Store interface {
	Create(ctx context.Context, p *models.Participant) error
	FindByEmail(ctx context.Context, email string) (*models.Participant, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Participant, error)
	List(ctx context.Context, f models.Filter) ([]*models.Participant, error)
	Execute(ctx context.Context, email string, validate func(*models.Participant) error, mutate func(*models.Participant)) (*models.Participant, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service applies state machine transitions to stored participants.
type Service struct {
	store   Store
	logger  *slog.Logger
	audit   AuditPublisher
	metrics *metrics.Metrics
	newID   func() uuid.UUID
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithIDGenerator overrides participant id generation.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRequest carries the identity fields of a new participant.
type RegisterRequest struct {
	Email    string
	Name     string
	Mobile   string
	Address  string
	Category string
}

// Register creates a participant with every status unset.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.Participant, error) {
	p, err := models.NewParticipant(s.newID(), req.Email, req.Name, req.Mobile, req.Address, req.Category, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, wrapStoreErr(err, "failed to register participant")
	}
	s.metrics.IncrementRegistered()
	s.emit(ctx, audit.Event{Action: audit.ActionParticipantRegistered, Email: p.Email})
	s.logger.InfoContext(ctx, "participant registered",
		"request_id", requestcontext.RequestID(ctx),
		"email", p.Email,
	)
	return p, nil
}

func (s *Service) Get(ctx context.Context, email string) (*models.Participant, error) {
	p, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load participant")
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f models.Filter) ([]*models.Participant, error) {
	ps, err := s.store.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list participants")
	}
	return ps, nil
}

// FindByTransactionID returns the participant whose current cycle uses transactionID.
func (s *Service) FindByTransactionID(ctx context.Context, transactionID string) (*models.Participant, error) {
	if transactionID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "transaction id is required")
	}
	p, err := s.store.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no participant for transaction")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load participant")
	}
	return p, nil
}

// ListStalePending returns pending cycles that started at or before cutoff.
func (s *Service) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Participant, error) {
	return s.List(ctx, models.Filter{
		PaymentStatuses:      []models.PaymentStatus{models.PaymentPending},
		PaymentStartedBefore: &cutoff,
		Limit:                limit,
	})
}

// RecordAbstractStatus moves the abstract review forward. Re-recording the
// current status is a no-op.
func (s *Service) RecordAbstractStatus(ctx context.Context, email string, status models.AbstractStatus) (*models.Participant, error) {
	now := requestcontext.Now(ctx)
	var noop bool
	p, err := s.store.Execute(ctx, email,
		func(p *models.Participant) error {
			var err error
			noop, err = p.CanRecordAbstract(status)
			return err
		},
		func(p *models.Participant) {
			if !noop {
				p.ApplyAbstract(status, now)
			}
		},
	)
	if err != nil {
		s.observe("abstract", err)
		return nil, wrapStoreErr(err, "failed to record abstract status")
	}
	s.observeApplied("abstract", noop)
	if !noop {
		action := audit.ActionAbstractReviewed
		if status == models.AbstractSubmitted {
			action = audit.ActionAbstractSubmitted
		}
		s.emit(ctx, audit.Event{Action: action, Email: p.Email, Reason: string(status)})
	}
	return p, nil
}

// BeginPayment opens a new pending cycle. A pending cycle under a different
// transaction id is superseded; completed is final.
func (s *Service) BeginPayment(ctx context.Context, email string, cycle models.PaymentCycle) (*models.Participant, error) {
	now := requestcontext.Now(ctx)
	var (
		noop       bool
		previousTx string
	)
	p, err := s.store.Execute(ctx, email,
		func(p *models.Participant) error {
			var err error
			noop, err = p.CanBeginPayment(cycle)
			previousTx = p.PaymentTransactionID
			return err
		},
		func(p *models.Participant) {
			if !noop {
				p.ApplyBeginPayment(cycle, now)
			}
		},
	)
	if err != nil {
		s.observe("payment_begin", err)
		return nil, wrapStoreErr(err, "failed to begin payment")
	}
	s.observeApplied("payment_begin", noop)
	if !noop {
		if previousTx != "" && previousTx != cycle.TransactionID {
			s.logger.InfoContext(ctx, "payment cycle superseded",
				"email", p.Email,
				"transaction_id", cycle.TransactionID,
				"previous_transaction_id", previousTx,
			)
		}
		s.emit(ctx, audit.Event{
			Action:        audit.ActionPaymentInitiated,
			Email:         p.Email,
			TransactionID: cycle.TransactionID,
			AmountMinor:   cycle.Amount,
		})
	}
	return p, nil
}

// Outcome is a verified payment result to apply to the current cycle.
type Outcome struct {
	TransactionID string
	// Status must be completed or failed.
	Status models.PaymentStatus
	// ExplicitDate overrides the payment date. A completion without one is
	// dated now; a failure without one records no date.
	ExplicitDate *time.Time
	// Source names the path that produced the outcome, one of the Source constants.
	Source string
	// GatewayReference is the gateway's own id for the payment, when it sent one.
	GatewayReference string
}

// ApplyPaymentOutcome is the single entry point for payment results from
// every reconciliation path. applied reports whether the stored record
// changed. A result for a cycle that is no longer current fails with
// CodeStaleTransaction and leaves the record untouched.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, email string, o Outcome) (p *models.Participant, applied bool, err error) {
	if o.Status != models.PaymentCompleted && o.Status != models.PaymentFailed {
		return nil, false, dErrors.Newf(dErrors.CodeValidation, "payment outcome must be completed or failed, got %q", o.Status)
	}
	now := requestcontext.Now(ctx)
	kind := "payment_" + string(o.Status)

	var noop bool
	p, err = s.store.Execute(ctx, email,
		func(p *models.Participant) error {
			var err error
			if o.Status == models.PaymentCompleted {
				noop, err = p.CanCompletePayment(o.TransactionID)
			} else {
				noop, err = p.CanFailPayment(o.TransactionID)
			}
			return err
		},
		func(p *models.Participant) {
			if noop {
				return
			}
			if o.Status == models.PaymentCompleted {
				date := now
				if o.ExplicitDate != nil {
					date = *o.ExplicitDate
				}
				p.ApplyCompletePayment(date, now)
				return
			}
			p.ApplyFailPayment(o.ExplicitDate, now)
		},
	)
	if err != nil {
		s.observe(kind, err)
		if dErrors.HasCode(err, dErrors.CodeStaleTransaction) {
			s.logger.InfoContext(ctx, "stale payment outcome discarded",
				"email", email,
				"transaction_id", o.TransactionID,
				"status", string(o.Status),
				"source", o.Source,
			)
			s.emit(ctx, audit.Event{
				Action:        audit.ActionStaleOutcome,
				Email:         models.NormalizeEmail(email),
				TransactionID: o.TransactionID,
				Source:        o.Source,
				Reason:        string(o.Status),
			})
		}
		return nil, false, wrapStoreErr(err, "failed to apply payment outcome")
	}
	s.observeApplied(kind, noop)
	if noop {
		return p, false, nil
	}

	action := audit.ActionPaymentCompleted
	if o.Status == models.PaymentFailed {
		action = audit.ActionPaymentFailed
	}
	if actor := requestcontext.AdminEmail(ctx); actor != "" && o.Source == SourceAdmin {
		action = audit.ActionPaymentOverridden
	}
	s.emit(ctx, audit.Event{
		Action:           action,
		Email:            p.Email,
		TransactionID:    p.PaymentTransactionID,
		AmountMinor:      p.PaymentAmount,
		Source:           o.Source,
		Reason:           string(o.Status),
		ActorID:          requestcontext.AdminEmail(ctx),
		GatewayReference: o.GatewayReference,
	})
	s.logger.InfoContext(ctx, "payment outcome applied",
		"email", p.Email,
		"transaction_id", p.PaymentTransactionID,
		"gateway_reference", o.GatewayReference,
		"status", string(p.PaymentStatus),
		"source", o.Source,
	)
	return p, true, nil
}

// Outcome sources.
const (
	SourceCallback = "callback"
	SourceVerify   = "verify"
	SourceSweep    = "sweep"
	SourceAdmin    = "admin"
	SourceInitiate = "initiate"
)

// CompletePayment marks the cycle identified by transactionID completed.
func (s *Service) CompletePayment(ctx context.Context, email, transactionID string, date time.Time) (*models.Participant, error) {
	p, _, err := s.ApplyPaymentOutcome(ctx, email, Outcome{
		TransactionID: transactionID,
		Status:        models.PaymentCompleted,
		ExplicitDate:  &date,
	})
	return p, err
}

// FailPayment marks the cycle identified by transactionID failed. It is a
// no-op when the cycle already completed.
func (s *Service) FailPayment(ctx context.Context, email, transactionID string) (*models.Participant, error) {
	p, _, err := s.ApplyPaymentOutcome(ctx, email, Outcome{
		TransactionID: transactionID,
		Status:        models.PaymentFailed,
	})
	return p, err
}

// OverridePayment lets an admin settle the current pending cycle without a
// gateway query.
func (s *Service) OverridePayment(ctx context.Context, email string, status models.PaymentStatus, date *time.Time) (*models.Participant, error) {
	current, err := s.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	if current.PaymentTransactionID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "participant has no payment cycle to settle")
	}
	if current.PaymentStatus != models.PaymentPending {
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "payment cycle is already %s", current.PaymentStatus)
	}
	p, _, err := s.ApplyPaymentOutcome(ctx, email, Outcome{
		TransactionID: current.PaymentTransactionID,
		Status:        status,
		ExplicitDate:  date,
		Source:        SourceAdmin,
	})
	return p, err
}

// RecordPaperSubmission requires an accepted abstract and a completed payment.
func (s *Service) RecordPaperSubmission(ctx context.Context, email string, date time.Time) (*models.Participant, error) {
	now := requestcontext.Now(ctx)
	var noop bool
	p, err := s.store.Execute(ctx, email,
		func(p *models.Participant) error {
			var err error
			noop, err = p.CanSubmitPaper()
			return err
		},
		func(p *models.Participant) {
			if !noop {
				p.ApplyPaperSubmission(date, now)
			}
		},
	)
	if err != nil {
		s.observe("paper", err)
		return nil, wrapStoreErr(err, "failed to record paper submission")
	}
	s.observeApplied("paper", noop)
	if !noop {
		s.emit(ctx, audit.Event{Action: audit.ActionPaperSubmitted, Email: p.Email})
	}
	return p, nil
}

func (s *Service) emit(ctx context.Context, ev audit.Event) {
	if s.audit == nil {
		return
	}
	if ev.RequestID == "" {
		ev.RequestID = requestcontext.RequestID(ctx)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = requestcontext.Now(ctx)
	}
	if err := s.audit.Emit(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", string(ev.Action),
			"email", ev.Email,
			"error", err,
		)
	}
}

func (s *Service) observe(kind string, err error) {
	outcome := metrics.OutcomeRejected
	if dErrors.HasCode(err, dErrors.CodeStaleTransaction) {
		outcome = metrics.OutcomeStale
	}
	s.metrics.ObserveTransition(kind, outcome)
}

func (s *Service) observeApplied(kind string, noop bool) {
	if noop {
		s.metrics.ObserveTransition(kind, metrics.OutcomeNoop)
		return
	}
	s.metrics.ObserveTransition(kind, metrics.OutcomeApplied)
}

// wrapStoreErr keeps coded domain errors and translates store sentinels.
func wrapStoreErr(err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "participant not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "email is already registered")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "transaction id is already in use")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
