// Package service converges local payment state with the gateway.
//
// The browser poll, the gateway callback and the background sweeper all end
// in Reconcile: query the gateway for the authoritative status, classify the
// code, and hand the result to the registrar's single apply function. The
// registrar's transaction-id match and absorbing completed state make the
// paths safe to race.
package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"confreg/internal/payment/gateway"
	"confreg/internal/payment/txid"
	"confreg/internal/pricing"
	"confreg/internal/reconciliation/metrics"
	"confreg/internal/registration/models"
	regservice "confreg/internal/registration/service"
	dErrors "confreg/pkg/domain-errors"
	"confreg/pkg/requestcontext"
)

// Gateway is the payment gateway client.
type Gateway interface {
	Initiate(ctx context.Context, req gateway.InitiateRequest) (gateway.InitiateResult, error)
	QueryStatus(ctx context.Context, transactionID string) (gateway.StatusResult, error)
}

// Registrar owns participant records and their payment state machine.
type Registrar interface {
	Get(ctx context.Context, email string) (*models.Participant, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Participant, error)
	BeginPayment(ctx context.Context, email string, cycle models.PaymentCycle) (*models.Participant, error)
	ApplyPaymentOutcome(ctx context.Context, email string, o regservice.Outcome) (*models.Participant, bool, error)
}

// IDSource mints a fresh, reserved transaction id on every call.
type IDSource interface {
	Next(ctx context.Context) (string, error)
}

// Pricer quotes registration fees.
type Pricer interface {
	Quote(category string, now time.Time, accompanying, workshop int) (pricing.Quote, error)
}

// CallbackVerifier checks the X-VERIFY header of a gateway callback.
type CallbackVerifier interface {
	VerifyCallback(payload, header string) bool
}

type Service struct {
	gateway   Gateway
	registrar Registrar
	ids       IDSource
	pricer    Pricer
	verifier  CallbackVerifier
	logger    *slog.Logger
	metrics   *metrics.Metrics

	callbackRetry time.Duration
	newBackOff    func() backoff.BackOff
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCallbackRetry bounds how long the callback path retries a status query
// while the gateway is unavailable. Zero disables retries.
func WithCallbackRetry(maxElapsed time.Duration) Option {
	return func(s *Service) {
		s.callbackRetry = maxElapsed
	}
}

// WithBackOff replaces the exponential backoff used between callback retries.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(s *Service) {
		if fn != nil {
			s.newBackOff = fn
		}
	}
}

func New(gw Gateway, registrar Registrar, ids IDSource, pricer Pricer, verifier CallbackVerifier, opts ...Option) *Service {
	s := &Service{
		gateway:       gw,
		registrar:     registrar,
		ids:           ids,
		pricer:        pricer,
		verifier:      verifier,
		logger:        slog.Default(),
		callbackRetry: 10 * time.Second,
		newBackOff:    func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quote prices a registration for the participant's category at request time.
func (s *Service) Quote(ctx context.Context, email string, accompanying, workshop int) (pricing.Quote, error) {
	p, err := s.registrar.Get(ctx, email)
	if err != nil {
		return pricing.Quote{}, err
	}
	return s.pricer.Quote(p.Category, requestcontext.Now(ctx), accompanying, workshop)
}

// InitiateRequest starts a payment cycle. ExpectedTotal is the amount in
// rupees the client displayed; zero skips the comparison.
type InitiateRequest struct {
	Email                string
	AccompanyingPersons  int
	WorkshopParticipants int
	ExpectedTotal        int64
}

type InitiateResult struct {
	RedirectURL   string
	TransactionID string
	Quote         pricing.Quote
}

// Initiate prices the registration server-side, opens a pending cycle under
// a freshly minted transaction id and asks the gateway for a pay page.
//
// A gateway rejection fails the new cycle so the participant can retry with
// another id. An unavailable gateway leaves it pending for the sweeper.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	p, err := s.registrar.Get(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if p.PaymentStatus == models.PaymentCompleted {
		s.metrics.IncInitiation("already_completed")
		return nil, dErrors.New(dErrors.CodePaymentAlreadyCompleted, "payment is already completed")
	}

	quote, err := s.pricer.Quote(p.Category, requestcontext.Now(ctx), req.AccompanyingPersons, req.WorkshopParticipants)
	if err != nil {
		return nil, err
	}
	if req.ExpectedTotal != 0 && req.ExpectedTotal != quote.Total {
		s.logger.WarnContext(ctx, "client amount disagrees with quote",
			"email", p.Email,
			"expected_total", req.ExpectedTotal,
			"quoted_total", quote.Total,
		)
		return nil, dErrors.Newf(dErrors.CodeValidation, "amount %d does not match the current fee of %d", req.ExpectedTotal, quote.Total)
	}

	transactionID, err := s.beginCycle(ctx, p.Email, quote, req)
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
		TransactionID:  transactionID,
		MerchantUserID: merchantUserID(p),
		AmountMinor:    quote.TotalMinorUnits(),
		Mobile:         p.Mobile,
	})
	if err != nil {
		s.initiationFailed(ctx, p.Email, transactionID, err)
		return nil, gateway.ToDomain(err)
	}

	s.metrics.IncInitiation("ok")
	s.logger.InfoContext(ctx, "payment initiated",
		"email", p.Email,
		"transaction_id", transactionID,
		"amount_minor", quote.TotalMinorUnits(),
		"tier", string(quote.Tier),
	)
	return &InitiateResult{
		RedirectURL:   res.RedirectURL,
		TransactionID: transactionID,
		Quote:         quote,
	}, nil
}

// beginCycle mints a transaction id and opens the pending cycle under it. An
// id another participant already holds comes back as a store conflict and is
// minted again.
func (s *Service) beginCycle(ctx context.Context, email string, quote pricing.Quote, req InitiateRequest) (string, error) {
	for range txid.MaxAttempts {
		transactionID, err := s.ids.Next(ctx)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate transaction id")
		}
		_, err = s.registrar.BeginPayment(ctx, email, models.PaymentCycle{
			TransactionID:        transactionID,
			Amount:               quote.TotalMinorUnits(),
			AccompanyingPersons:  req.AccompanyingPersons,
			WorkshopParticipants: req.WorkshopParticipants,
		})
		if err == nil {
			return transactionID, nil
		}
		if !dErrors.HasCode(err, dErrors.CodeConflict) {
			return "", err
		}
		s.logger.WarnContext(ctx, "transaction id already held in store, minting another",
			"email", email,
			"transaction_id", transactionID,
		)
	}
	return "", dErrors.Wrap(txid.ErrExhausted, dErrors.CodeInternal, "failed to allocate transaction id")
}

func (s *Service) initiationFailed(ctx context.Context, email, transactionID string, err error) {
	if !gateway.IsRejected(err) {
		s.metrics.IncInitiation("unavailable")
		s.logger.WarnContext(ctx, "payment initiation unavailable, cycle left pending",
			"email", email,
			"transaction_id", transactionID,
			"error", err,
		)
		return
	}
	s.metrics.IncInitiation("rejected")
	s.logger.WarnContext(ctx, "payment initiation rejected",
		"email", email,
		"transaction_id", transactionID,
		"error", err,
	)
	if _, _, ferr := s.registrar.ApplyPaymentOutcome(ctx, email, regservice.Outcome{
		TransactionID: transactionID,
		Status:        models.PaymentFailed,
		Source:        regservice.SourceInitiate,
	}); ferr != nil {
		s.logger.ErrorContext(ctx, "failed to close rejected payment cycle",
			"email", email,
			"transaction_id", transactionID,
			"error", ferr,
		)
	}
}

// merchantUserID derives the gateway's user reference from the participant
// id. The gateway only accepts alphanumerics.
func merchantUserID(p *models.Participant) string {
	return strings.ReplaceAll(p.ID.String(), "-", "")
}

// Result describes one reconciliation.
type Result struct {
	TransactionID string
	Email         string
	// Code is the gateway's status code.
	Code    string
	Message string
	// PaymentStatus is the participant's status after the attempt.
	PaymentStatus models.PaymentStatus
	// Applied reports whether the stored record changed.
	Applied bool
	// Stale is set when the transaction no longer owns the participant's
	// current cycle and the result was discarded.
	Stale bool
}

// Verify is the browser poll path.
func (s *Service) Verify(ctx context.Context, transactionID string) (*Result, error) {
	return s.Reconcile(ctx, transactionID, regservice.SourceVerify)
}

// Reconcile queries the gateway for transactionID and applies the verified
// outcome. Pending and unrecognized codes leave the record untouched. A
// stale result is reported on Result, not as an error.
func (s *Service) Reconcile(ctx context.Context, transactionID, source string) (*Result, error) {
	if !txid.Sanitize(transactionID) {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid transaction id")
	}
	p, err := s.registrar.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	status, err := s.gateway.QueryStatus(ctx, transactionID)
	if err != nil {
		s.metrics.IncVerification(source, "unavailable")
		s.logger.WarnContext(ctx, "payment status query failed",
			"email", p.Email,
			"transaction_id", transactionID,
			"source", source,
			"error", err,
		)
		return nil, gateway.ToDomain(err)
	}
	return s.apply(ctx, p, status, source)
}

func (s *Service) apply(ctx context.Context, p *models.Participant, status gateway.StatusResult, source string) (*Result, error) {
	res := &Result{
		TransactionID: status.TransactionID,
		Email:         p.Email,
		Code:          status.Code,
		Message:       status.Message,
		PaymentStatus: p.PaymentStatus,
	}

	target, known := Classify(status.Code)
	if !known {
		s.logger.WarnContext(ctx, "unrecognized gateway status code",
			"email", p.Email,
			"transaction_id", status.TransactionID,
			"code", status.Code,
			"source", source,
		)
	}
	if target == models.PaymentPending {
		s.metrics.IncVerification(source, "pending")
		return res, nil
	}

	if target == models.PaymentCompleted && p.PaymentTransactionID == status.TransactionID &&
		status.AmountMinor > 0 && status.AmountMinor != p.PaymentAmount {
		s.metrics.IncVerification(source, "amount_mismatch")
		s.logger.ErrorContext(ctx, "gateway amount does not match payment cycle",
			"email", p.Email,
			"transaction_id", status.TransactionID,
			"gateway_amount_minor", status.AmountMinor,
			"cycle_amount_minor", p.PaymentAmount,
			"source", source,
		)
		return nil, dErrors.New(dErrors.CodeConflict, "gateway amount does not match the payment")
	}

	updated, applied, err := s.registrar.ApplyPaymentOutcome(ctx, p.Email, regservice.Outcome{
		TransactionID:    status.TransactionID,
		Status:           target,
		Source:           source,
		GatewayReference: status.GatewayTransactionID,
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeStaleTransaction) {
			s.metrics.IncVerification(source, "stale")
			res.Stale = true
			return res, nil
		}
		s.metrics.IncVerification(source, "error")
		return nil, err
	}

	res.PaymentStatus = updated.PaymentStatus
	res.Applied = applied
	outcome := "noop"
	if applied {
		outcome = string(target)
	}
	s.metrics.IncVerification(source, outcome)
	return res, nil
}

// Callback is an inbound gateway notification. Its stated outcome is never
// trusted; only the transaction id is used.
type Callback struct {
	// Response is the base64 "response" field, when the body carries one.
	Response string
	// TransactionID is set when the body names the transaction directly.
	TransactionID string
	RawBody       []byte
	// Signature is the X-VERIFY header, possibly empty.
	Signature string
}

type callbackPayload struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	Data                  struct {
		MerchantTransactionID string `json:"merchantTransactionId"`
	} `json:"data"`
}

// HandleCallback authenticates a callback when it is signed, then
// reconciles the transaction it names. A gateway outage during the status
// query is retried with backoff for up to the configured window.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) (*Result, error) {
	if cb.Signature != "" {
		payload := cb.Response
		if payload == "" {
			payload = string(cb.RawBody)
		}
		if !s.verifier.VerifyCallback(payload, cb.Signature) {
			s.metrics.IncCallbackRejected()
			s.logger.WarnContext(ctx, "gateway callback signature mismatch")
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid callback signature")
		}
	}

	transactionID := cb.TransactionID
	if transactionID == "" && cb.Response != "" {
		id, err := transactionFromResponse(cb.Response)
		if err != nil {
			return nil, err
		}
		transactionID = id
	}
	if transactionID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "transaction id is required")
	}

	if s.callbackRetry <= 0 {
		return s.Reconcile(ctx, transactionID, regservice.SourceCallback)
	}
	return backoff.Retry(ctx, func() (*Result, error) {
		res, err := s.Reconcile(ctx, transactionID, regservice.SourceCallback)
		if err != nil && !dErrors.HasCode(err, dErrors.CodeGatewayUnavailable) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxElapsedTime(s.callbackRetry),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.InfoContext(ctx, "retrying callback status query",
				"transaction_id", transactionID,
				"next", next,
				"error", err,
			)
		}),
	)
}

func transactionFromResponse(response string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(response)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, "callback response is not base64")
	}
	var body callbackPayload
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, "callback response is not json")
	}
	switch {
	case body.Data.MerchantTransactionID != "":
		return body.Data.MerchantTransactionID, nil
	case body.MerchantTransactionID != "":
		return body.MerchantTransactionID, nil
	}
	return body.TransactionID, nil
}
