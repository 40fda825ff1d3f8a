// Package requestcontext carries request-scoped values without net/http.
//
// Middleware sets them for HTTP requests; the sweeper sets them per run.
// Services read them:
//
//	now := requestcontext.Now(ctx)
//	actor := requestcontext.AdminEmail(ctx)
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey  struct{}
	clockKey      struct{}
	adminEmailKey struct{}
)

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now is the time pinned for this request, or the wall clock when none is.
// Every transition in one request stamps the same instant.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(clockKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, clockKey{}, t)
}

// AdminEmail is the authenticated administrator, empty for public callers.
func AdminEmail(ctx context.Context) string {
	email, _ := ctx.Value(adminEmailKey{}).(string)
	return email
}

func WithAdminEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, adminEmailKey{}, email)
}
