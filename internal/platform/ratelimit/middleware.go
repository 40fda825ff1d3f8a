package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "confreg/pkg/domain-errors"
	"confreg/pkg/platform/httputil"
	"confreg/pkg/platform/middleware/request"
)

type Metrics struct {
	Decisions *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "confreg_ratelimit_decisions_total",
			Help: "Rate limit decisions by limiter and decision (allowed, limited, error).",
		}, []string{"limiter", "decision"}),
	}
}

func (m *Metrics) inc(limiter, decision string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(limiter, decision).Inc()
}

// Limiter is HTTP middleware that rejects clients over their request budget.
type Limiter struct {
	name       string
	store      Store
	limit      int
	window     time.Duration
	trustProxy bool
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time
}

type Option func(*Limiter)

// WithTrustProxy keys clients by X-Forwarded-For / X-Real-IP instead of the
// socket address. Only enable behind a proxy that overwrites these headers.
func WithTrustProxy(trust bool) Option {
	return func(l *Limiter) {
		l.trustProxy = trust
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New returns a limiter allowing limit requests per window for each client.
// name separates the budgets of limiters sharing a store.
func New(name string, store Store, limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		name:   name,
		store:  store,
		limit:  limit,
		window: window,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Handler enforces the limit. Store failures let the request through.
func (l *Limiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := ClientIP(r, l.trustProxy)

		res, err := l.store.Allow(ctx, l.name+":"+ip, l.limit, l.window)
		if err != nil {
			l.metrics.inc(l.name, "error")
			l.logger.ErrorContext(ctx, "rate limit check failed",
				"limiter", l.name,
				"request_id", request.GetRequestID(ctx),
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		if !res.Allowed {
			l.metrics.inc(l.name, "limited")
			l.logger.WarnContext(ctx, "rate limit exceeded",
				"limiter", l.name,
				"request_id", request.GetRequestID(ctx),
				"path", r.URL.Path,
			)
			h.Set("Retry-After", strconv.Itoa(res.RetryAfter(l.now())))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, try again later"))
			return
		}
		l.metrics.inc(l.name, "allowed")
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the address a request came from. Forwarding headers are
// honoured only when trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
