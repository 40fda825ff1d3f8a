package admin

import (
	"context"
	"log/slog"
	"net/http"

	request "confreg/pkg/platform/middleware/request"
	"confreg/pkg/requestcontext"
)

// Authenticator verifies an admin credential row.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) error
}

// RequireAdmin gates a route on HTTP Basic admin credentials. The admin email
// is placed in the request context for audit attribution.
func RequireAdmin(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			email, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}
			if err := auth.Authenticate(ctx, email, password); err != nil {
				logger.WarnContext(ctx, "admin authentication failed",
					"request_id", request.GetRequestID(ctx),
				)
				unauthorized(w)
				return
			}

			ctx = requestcontext.WithAdminEmail(ctx, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin credentials required"}`))
}
