package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, AdminEmail(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)

	pinned := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	ctx = WithTime(WithAdminEmail(WithRequestID(ctx, "req-1"), "chair@example.org"), pinned)
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "chair@example.org", AdminEmail(ctx))
	assert.Equal(t, pinned, Now(ctx))
	assert.Equal(t, pinned, Now(ctx), "pinned time does not advance")
}
