// Package gateway talks to the hosted payment page provider: it initiates
// payments and queries their status. It never retries; retry policy belongs
// to the caller.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"confreg/internal/platform/config"
	"confreg/pkg/platform/circuit"
)

const (
	opPay    = "pay"
	opStatus = "status"
)

// Client is the outbound gateway client.
type Client struct {
	cfg        config.Gateway
	signer     *Signer
	httpClient *http.Client
	breaker    *circuit.Breaker
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures the Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithBreaker guards status queries. Pay calls are never short-circuited:
// a refused initiation would look like a rejection to the user.
func WithBreaker(b *circuit.Breaker) Option {
	return func(cl *Client) { cl.breaker = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// NewClient builds a client for the merchant described by cfg.
func NewClient(cfg config.Gateway, signer *Signer, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		signer: signer,
		logger: slog.Default(),
		tracer: otel.Tracer("confreg/internal/payment/gateway"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return c
}

// MerchantID returns the configured merchant id.
func (c *Client) MerchantID() string {
	return c.cfg.MerchantID
}

// Initiate creates a hosted payment page for one transaction id. The id must
// be fresh: the gateway rejects a reused merchantTransactionId.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	ctx, span := c.tracer.Start(ctx, "gateway.Initiate", trace.WithAttributes(
		attribute.String("payment.transaction_id", req.TransactionID),
		attribute.Int64("payment.amount_minor", req.AmountMinor),
	))
	defer span.End()
	start := c.now()

	payload, err := json.Marshal(PayRequest{
		MerchantID:            c.cfg.MerchantID,
		MerchantTransactionID: req.TransactionID,
		MerchantUserID:        req.MerchantUserID,
		Amount:                req.AmountMinor,
		RedirectURL:           c.cfg.RedirectURL,
		RedirectMode:          RedirectModePOST,
		CallbackURL:           c.cfg.CallbackURL,
		MobileNumber:          req.Mobile,
		PaymentInstrument:     PaymentInstrument{Type: InstrumentPayPage},
	})
	if err != nil {
		return InitiateResult{}, c.fail(span, opPay, start, newError(KindProtocol, opPay, err))
	}
	encoded := base64.StdEncoding.EncodeToString(payload)
	body, err := json.Marshal(payEnvelope{Request: encoded})
	if err != nil {
		return InitiateResult{}, c.fail(span, opPay, start, newError(KindProtocol, opPay, err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(PayPath), bytes.NewReader(body))
	if err != nil {
		return InitiateResult{}, c.fail(span, opPay, start, newError(KindProtocol, opPay, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerVerify, c.signer.SignPayRequest(encoded))

	env, status, gerr := c.do(httpReq, opPay)
	if gerr != nil {
		return InitiateResult{}, c.fail(span, opPay, start, gerr)
	}
	span.SetAttributes(attribute.Int("http.status_code", status), attribute.String("gateway.code", env.Code))

	if status >= 300 || !env.Success {
		ge := newError(KindRejected, opPay, nil)
		ge.Code, ge.Message, ge.HTTPStatus = env.Code, env.Message, status
		return InitiateResult{}, c.fail(span, opPay, start, ge)
	}

	var data payData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.InstrumentResponse.RedirectInfo.URL == "" {
		ge := newError(KindRejected, opPay, err)
		ge.Code, ge.Message, ge.HTTPStatus = env.Code, "response carried no redirect url", status
		return InitiateResult{}, c.fail(span, opPay, start, ge)
	}

	c.metrics.observe(opPay, "success", c.now().Sub(start).Seconds())
	return InitiateResult{
		RedirectURL:   data.InstrumentResponse.RedirectInfo.URL,
		TransactionID: req.TransactionID,
	}, nil
}

// QueryStatus asks the gateway for the authoritative state of a transaction.
// A well-formed answer is returned as data whatever its code.
func (c *Client) QueryStatus(ctx context.Context, transactionID string) (StatusResult, error) {
	ctx, span := c.tracer.Start(ctx, "gateway.QueryStatus", trace.WithAttributes(
		attribute.String("payment.transaction_id", transactionID),
	))
	defer span.End()
	start := c.now()

	if c.breaker != nil && !c.breaker.Allow() {
		return StatusResult{}, c.fail(span, opStatus, start, newError(KindUnavailable, opStatus, ErrCircuitOpen))
	}

	path := StatusQueryPath(c.cfg.MerchantID, transactionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return StatusResult{}, c.fail(span, opStatus, start, newError(KindProtocol, opStatus, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerVerify, c.signer.SignStatusQuery(c.cfg.MerchantID, transactionID))
	httpReq.Header.Set(headerMerchantID, c.cfg.MerchantID)

	env, status, gerr := c.do(httpReq, opStatus)
	if gerr != nil {
		if gerr.Kind == KindUnavailable {
			c.recordBreakerFailure(ctx)
		}
		return StatusResult{}, c.fail(span, opStatus, start, gerr)
	}
	c.recordBreakerSuccess(ctx)
	span.SetAttributes(attribute.Int("http.status_code", status), attribute.String("gateway.code", env.Code))

	result := StatusResult{
		TransactionID: transactionID,
		Success:       env.Success,
		Code:          env.Code,
		Message:       env.Message,
		RawData:       env.Data,
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		var data statusData
		if err := json.Unmarshal(env.Data, &data); err == nil {
			result.State = data.State
			result.AmountMinor = data.Amount
			result.GatewayTransactionID = data.TransactionID
		}
	}

	c.metrics.observe(opStatus, "answered", c.now().Sub(start).Seconds())
	return result, nil
}

// do sends req and decodes the envelope. A response with a decodable code is
// an answer regardless of HTTP status; a 5xx or network failure without one
// is unavailability.
func (c *Client) do(req *http.Request, op string) (envelope, int, *Error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope{}, 0, newError(KindUnavailable, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		ge := newError(KindUnavailable, op, err)
		ge.HTTPStatus = resp.StatusCode
		return envelope{}, resp.StatusCode, ge
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if decodeErr == nil && env.Code != "" {
		return env, resp.StatusCode, nil
	}

	kind := KindProtocol
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		kind = KindUnavailable
	}
	if decodeErr == nil {
		decodeErr = errors.New("response carried no code")
	}
	ge := newError(kind, op, fmt.Errorf("decode response (http %d): %w", resp.StatusCode, decodeErr))
	ge.HTTPStatus = resp.StatusCode
	return envelope{}, resp.StatusCode, ge
}

func (c *Client) fail(span trace.Span, op string, start time.Time, err *Error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Kind))
	c.metrics.observe(op, string(err.Kind), c.now().Sub(start).Seconds())
	return err
}

func (c *Client) recordBreakerFailure(ctx context.Context) {
	if c.breaker == nil {
		return
	}
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.metrics.setBreakerOpen(true)
		c.logger.WarnContext(ctx, "gateway status breaker opened", "breaker", c.breaker.Name())
	}
}

func (c *Client) recordBreakerSuccess(ctx context.Context) {
	if c.breaker == nil {
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.metrics.setBreakerOpen(false)
		c.logger.InfoContext(ctx, "gateway status breaker closed", "breaker", c.breaker.Name())
	}
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}
