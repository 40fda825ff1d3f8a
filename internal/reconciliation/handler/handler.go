package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"confreg/internal/payment/txid"
	"confreg/internal/pricing"
	"confreg/internal/reconciliation/service"
	dErrors "confreg/pkg/domain-errors"
	"confreg/pkg/platform/httputil"
	"confreg/pkg/platform/middleware/request"
)

const headerVerify = "X-VERIFY"

// Service is the reconciliation service as seen by HTTP callers.
type Service interface {
	Quote(ctx context.Context, email string, accompanying, workshop int) (pricing.Quote, error)
	Initiate(ctx context.Context, req service.InitiateRequest) (*service.InitiateResult, error)
	Verify(ctx context.Context, transactionID string) (*service.Result, error)
	HandleCallback(ctx context.Context, cb service.Callback) (*service.Result, error)
}

// Handler serves the payment endpoints and the gateway's inbound routes.
type Handler struct {
	svc           Service
	resultPageURL string
	logger        *slog.Logger
	rateLimit     func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithRateLimit wraps the browser-facing payment routes in mw. Gateway
// callbacks and redirects are not limited.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.rateLimit = mw
	}
}

// New builds a handler. resultPageURL is where the browser is bounced after
// the gateway redirect.
func New(svc Service, resultPageURL string, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{svc: svc, resultPageURL: resultPageURL, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.rateLimit != nil {
			r.Use(h.rateLimit)
		}
		r.Post("/payments/quote", h.handleQuote)
		r.Post("/payments/initiate", h.handleInitiate)
		r.Post("/payments/verify", h.handleVerify)
	})
	r.Post("/payments/callback", h.handleCallback)
	r.Get("/payment/redirect", h.handleRedirect)
	r.Post("/payment/redirect", h.handleRedirect)
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[QuoteRequest](w, r, h.logger, "quote")
	if !ok {
		return
	}
	q, err := h.svc.Quote(ctx, req.Email, req.AccompanyingPersons, req.WorkshopParticipants)
	if err != nil {
		h.writeError(ctx, w, "quote", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toQuoteResponse(q))
}

func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[InitiateRequest](w, r, h.logger, "initiate")
	if !ok {
		return
	}
	res, err := h.svc.Initiate(ctx, service.InitiateRequest{
		Email:                req.Email,
		AccompanyingPersons:  req.AccompanyingPersons,
		WorkshopParticipants: req.WorkshopParticipants,
		ExpectedTotal:        req.Amount,
	})
	if err != nil {
		h.writeError(ctx, w, "initiate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, InitiateResponse{
		RedirectURL:   res.RedirectURL,
		TransactionID: res.TransactionID,
		Quote:         toQuoteResponse(res.Quote),
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, "verify")
	if !ok {
		return
	}
	res, err := h.svc.Verify(ctx, req.TransactionID)
	if err != nil {
		h.writeError(ctx, w, "verify", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReconcileResponse(res))
}

// handleCallback accepts the gateway's server-to-server notification as JSON
// or form data. Only the transaction id is taken from the body.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes))
	if err != nil {
		h.writeError(ctx, w, "callback", dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable callback body"))
		return
	}
	fields, err := callbackFields(r.Header.Get("Content-Type"), body)
	if err != nil {
		h.writeError(ctx, w, "callback", err)
		return
	}

	res, err := h.svc.HandleCallback(ctx, service.Callback{
		Response:      fields.response,
		TransactionID: fields.transactionID(),
		RawBody:       body,
		Signature:     r.Header.Get(headerVerify),
	})
	if err != nil {
		h.writeError(ctx, w, "callback", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReconcileResponse(res))
}

// handleRedirect bounces the browser from the gateway's redirect to the
// result page with 303 so a POST becomes a GET.
func (h *Handler) handleRedirect(w http.ResponseWriter, r *http.Request) {
	id := redirectTransactionID(w, r)
	target, err := url.Parse(h.resultPageURL)
	if err != nil {
		h.writeError(r.Context(), w, "redirect", dErrors.Wrap(err, dErrors.CodeInternal, "invalid result page url"))
		return
	}
	if id != "" {
		q := target.Query()
		q.Set("merchantTransactionId", id)
		target.RawQuery = q.Encode()
	} else {
		h.logger.WarnContext(r.Context(), "gateway redirect without transaction id",
			"request_id", request.GetRequestID(r.Context()),
		)
	}
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

func redirectTransactionID(w http.ResponseWriter, r *http.Request) string {
	pick := func(get func(string) string) string {
		if v := get("merchantTransactionId"); v != "" {
			return v
		}
		return get("transactionId")
	}

	id := pick(r.URL.Query().Get)
	if id == "" && r.Method == http.MethodPost {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch mediaType {
		case "application/json":
			var body map[string]any
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes)).Decode(&body); err == nil {
				id = pick(func(k string) string {
					s, _ := body[k].(string)
					return s
				})
			}
		default:
			r.Body = http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes)
			if err := r.ParseForm(); err == nil {
				id = pick(r.PostForm.Get)
			}
		}
	}
	id = strings.TrimSpace(id)
	if !txid.Sanitize(id) {
		return ""
	}
	return id
}

type callbackBody struct {
	response              string
	merchantTransactionID string
	plainTransactionID    string
}

func (b callbackBody) transactionID() string {
	if b.merchantTransactionID != "" {
		return b.merchantTransactionID
	}
	return b.plainTransactionID
}

func callbackFields(contentType string, body []byte) (callbackBody, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return callbackBody{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed callback form")
		}
		return callbackBody{
			response:              values.Get("response"),
			merchantTransactionID: strings.TrimSpace(values.Get("merchantTransactionId")),
			plainTransactionID:    strings.TrimSpace(values.Get("transactionId")),
		}, nil
	}

	var fields struct {
		Response              string `json:"response"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		return callbackBody{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "callback body must be json or form data")
	}
	return callbackBody{
		response:              fields.Response,
		merchantTransactionID: strings.TrimSpace(fields.MerchantTransactionID),
		plainTransactionID:    strings.TrimSpace(fields.TransactionID),
	}, nil
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "payment request failed",
			"op", op,
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, "payment request rejected",
			"op", op,
			"request_id", request.GetRequestID(ctx),
			"code", string(dErrors.CodeOf(err)),
		)
	}
	httputil.WriteError(w, err)
}
