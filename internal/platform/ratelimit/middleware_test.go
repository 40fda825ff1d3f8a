package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "confreg/pkg/domain-errors"
	apptestutil "confreg/pkg/testutil"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("redis down")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requestFrom(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/payments/initiate", nil)
	req.RemoteAddr = remote
	return req
}

func TestLimiter_RejectsOverBudget(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := New("payments", NewMemoryStore(), 2, time.Minute, WithLogger(quiet()), WithMetrics(m)).Handler(okHandler())

	for range 2 {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestFrom("203.0.113.7:5000"))
		require.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("203.0.113.7:6000"))
	apptestutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, string(dErrors.CodeRateLimited))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("198.51.100.1:5000"))
	assert.Equal(t, http.StatusNoContent, rr.Code, "other clients are unaffected")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Decisions.WithLabelValues("payments", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("payments", "limited")))
}

func TestLimiter_NamesSeparateBudgets(t *testing.T) {
	store := NewMemoryStore()
	a := New("a", store, 1, time.Minute, WithLogger(quiet())).Handler(okHandler())
	b := New("b", store, 1, time.Minute, WithLogger(quiet())).Handler(okHandler())

	rr := httptest.NewRecorder()
	a.ServeHTTP(rr, requestFrom("203.0.113.7:1"))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = httptest.NewRecorder()
	b.ServeHTTP(rr, requestFrom("203.0.113.7:1"))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestLimiter_FailsOpen(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := New("payments", failingStore{}, 1, time.Minute, WithLogger(quiet()), WithMetrics(m)).Handler(okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("203.0.113.7:5000"))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("payments", "error")))
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		remote  string
		headers map[string]string
		trust   bool
		want    string
	}{
		{name: "socket address", remote: "203.0.113.7:5000", want: "203.0.113.7"},
		{name: "ipv6 socket address", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "no port", remote: "203.0.113.7", want: "203.0.113.7"},
		{
			name:    "forwarded header ignored without trust",
			remote:  "10.0.0.1:80",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.9"},
			want:    "10.0.0.1",
		},
		{
			name:    "first forwarded address when trusted",
			remote:  "10.0.0.1:80",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.9, 10.0.0.2"},
			trust:   true,
			want:    "198.51.100.9",
		},
		{
			name:    "real ip when trusted",
			remote:  "10.0.0.1:80",
			headers: map[string]string{"X-Real-IP": " 198.51.100.4 "},
			trust:   true,
			want:    "198.51.100.4",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := requestFrom(tc.remote)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIP(req, tc.trust))
		})
	}
}
