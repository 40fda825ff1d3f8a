package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "confreg/pkg/platform/audit"
)

func TestInMemoryStore_ListByEmail(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.Append(ctx, audit.Event{Email: "p1", Action: audit.ActionPaymentInitiated}))
	require.NoError(t, s.Append(ctx, audit.Event{Email: "p2", Action: audit.ActionPaymentInitiated}))
	require.NoError(t, s.Append(ctx, audit.Event{Email: "p1", Action: audit.ActionPaymentCompleted}))

	events, err := s.ListByEmail(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionPaymentInitiated, events[0].Action)
	assert.Equal(t, audit.ActionPaymentCompleted, events[1].Action)
}

func TestInMemoryStore_DropsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.Append(ctx, audit.Event{Email: id}))
	}

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Email)
	assert.Equal(t, "e", all[2].Email)
	assert.Equal(t, int64(2), s.Dropped())

	s.Clear()
	all, err = s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
