package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"confreg/internal/registration/models"
	"confreg/internal/registration/service"
	dErrors "confreg/pkg/domain-errors"
	"confreg/pkg/platform/audit"
	"confreg/pkg/platform/httputil"
	"confreg/pkg/platform/middleware/request"
	platformstrings "confreg/pkg/platform/strings"
	"confreg/pkg/requestcontext"
)

// Service is the registration state machine as seen by HTTP callers.
type Service interface {
	Register(ctx context.Context, req service.RegisterRequest) (*models.Participant, error)
	Get(ctx context.Context, email string) (*models.Participant, error)
	List(ctx context.Context, f models.Filter) ([]*models.Participant, error)
	RecordAbstractStatus(ctx context.Context, email string, status models.AbstractStatus) (*models.Participant, error)
	RecordPaperSubmission(ctx context.Context, email string, date time.Time) (*models.Participant, error)
	OverridePayment(ctx context.Context, email string, status models.PaymentStatus, date *time.Time) (*models.Participant, error)
}

// AuditReader lists a participant's audit trail.
type AuditReader interface {
	List(ctx context.Context, email string) ([]audit.Event, error)
}

// Handler serves participant, abstract and paper endpoints plus the admin
// views over them.
type Handler struct {
	svc          Service
	audit        AuditReader
	requireAdmin func(http.Handler) http.Handler
	rateLimit    func(http.Handler) http.Handler
	logger       *slog.Logger
}

type Option func(*Handler)

// WithAdmin mounts the admin routes behind mw.
func WithAdmin(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.requireAdmin = mw
	}
}

// WithRateLimit wraps the public participant routes in mw.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.rateLimit = mw
	}
}

func WithAuditReader(r AuditReader) Option {
	return func(h *Handler) {
		h.audit = r
	}
}

func New(svc Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: logger}
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
		r.Post("/participants", h.handleRegister)
		r.Get("/participants/{email}/status", h.handleStatus)
		r.Post("/abstracts/submit", h.handleAbstractSubmit)
		r.Post("/papers/submit", h.handlePaperSubmit)
	})

	if h.requireAdmin == nil {
		return
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/participants", h.handleList)
		r.Get("/participants/{email}", h.handleGet)
		r.Get("/participants/{email}/audit", h.handleAudit)
		r.Post("/abstracts/status", h.handleAbstractStatus)
		r.Post("/payments/status", h.handlePaymentOverride)
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, "register")
	if !ok {
		return
	}
	p, err := h.svc.Register(ctx, service.RegisterRequest{
		Email:    req.Email,
		Name:     req.Name,
		Mobile:   req.Mobile,
		Address:  req.Address,
		Category: req.Category,
	})
	if err != nil {
		h.writeError(ctx, w, "register", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toStatusResponse(p))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.svc.Get(ctx, chi.URLParam(r, "email"))
	if err != nil {
		h.writeError(ctx, w, "status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(p))
}

func (h *Handler) handleAbstractSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[EmailRequest](w, r, h.logger, "abstract_submit")
	if !ok {
		return
	}
	p, err := h.svc.RecordAbstractStatus(ctx, req.Email, models.AbstractSubmitted)
	if err != nil {
		h.writeError(ctx, w, "abstract_submit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(p))
}

func (h *Handler) handlePaperSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[EmailRequest](w, r, h.logger, "paper_submit")
	if !ok {
		return
	}
	p, err := h.svc.RecordPaperSubmission(ctx, req.Email, requestcontext.Now(ctx))
	if err != nil {
		h.writeError(ctx, w, "paper_submit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(p))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var f models.Filter
	q := r.URL.Query()
	for _, raw := range platformstrings.SplitList(q["payment_status"]...) {
		if raw == "unset" {
			f.PaymentStatuses = append(f.PaymentStatuses, models.PaymentUnset)
			continue
		}
		st, err := models.ParsePaymentStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		f.PaymentStatuses = append(f.PaymentStatuses, st)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
			return
		}
		f.Limit = n
	}

	ps, err := h.svc.List(ctx, f)
	if err != nil {
		h.writeError(ctx, w, "list", err)
		return
	}
	resp := ParticipantListResponse{Participants: make([]ParticipantResponse, 0, len(ps)), Count: len(ps)}
	for _, p := range ps {
		resp.Participants = append(resp.Participants, toParticipantResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.svc.Get(ctx, chi.URLParam(r, "email"))
	if err != nil {
		h.writeError(ctx, w, "get", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toParticipantResponse(p))
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audit == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit trail is not available"))
		return
	}
	events, err := h.audit.List(ctx, models.NormalizeEmail(chi.URLParam(r, "email")))
	if err != nil {
		h.writeError(ctx, w, "audit", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit trail"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) handleAbstractStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[AbstractStatusRequest](w, r, h.logger, "abstract_status")
	if !ok {
		return
	}
	p, err := h.svc.RecordAbstractStatus(ctx, req.Email, req.status)
	if err != nil {
		h.writeError(ctx, w, "abstract_status", err)
		return
	}
	h.logger.InfoContext(ctx, "abstract status recorded by admin",
		"request_id", request.GetRequestID(ctx),
		"email", p.Email,
		"status", string(p.AbstractStatus),
		"admin", requestcontext.AdminEmail(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, toParticipantResponse(p))
}

func (h *Handler) handlePaymentOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[PaymentOverrideRequest](w, r, h.logger, "payment_override")
	if !ok {
		return
	}
	p, err := h.svc.OverridePayment(ctx, req.Email, req.status, req.PaymentDate)
	if err != nil {
		h.writeError(ctx, w, "payment_override", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toParticipantResponse(p))
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "registration request failed",
			"op", op,
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, "registration request rejected",
			"op", op,
			"request_id", request.GetRequestID(ctx),
			"code", string(dErrors.CodeOf(err)),
		)
	}
	httputil.WriteError(w, err)
}
