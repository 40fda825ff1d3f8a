package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// step drives a breaker: "fail", "ok", "wait:<duration>" or "reset".
type step struct {
	do        string
	wantState State
	wantAllow bool
	opened    bool
	closed    bool
}

func runSteps(t *testing.T, b *Breaker, now *time.Time, steps []step) {
	t.Helper()
	for i, st := range steps {
		var change StateChange
		switch {
		case st.do == "fail":
			_, change = b.RecordFailure()
		case st.do == "ok":
			_, change = b.RecordSuccess()
		case st.do == "reset":
			b.Reset()
		case len(st.do) > 5 && st.do[:5] == "wait:":
			d, err := time.ParseDuration(st.do[5:])
			if err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
			*now = now.Add(d)
		default:
			t.Fatalf("step %d: unknown action %q", i, st.do)
		}
		assert.Equal(t, st.wantState, b.State(), "step %d (%s) state", i, st.do)
		assert.Equal(t, st.wantAllow, b.Allow(), "step %d (%s) allow", i, st.do)
		assert.Equal(t, st.opened, change.Opened, "step %d (%s) opened", i, st.do)
		assert.Equal(t, st.closed, change.Closed, "step %d (%s) closed", i, st.do)
	}
}

func TestBreaker_Sequences(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		steps []step
	}{
		{
			name: "opens on the threshold failure",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{do: "fail", wantState: StateClosed, wantAllow: true},
				{do: "fail", wantState: StateClosed, wantAllow: true},
				{do: "fail", wantState: StateOpen, opened: true},
				{do: "fail", wantState: StateOpen},
			},
		},
		{
			name: "success clears the failure run",
			opts: []Option{WithFailureThreshold(2)},
			steps: []step{
				{do: "fail", wantState: StateClosed, wantAllow: true},
				{do: "ok", wantState: StateClosed, wantAllow: true},
				{do: "fail", wantState: StateClosed, wantAllow: true},
				{do: "fail", wantState: StateOpen, opened: true},
			},
		},
		{
			name: "needs a run of successes to close",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2), WithCooldown(time.Second)},
			steps: []step{
				{do: "fail", wantState: StateOpen, opened: true},
				{do: "wait:1s", wantState: StateOpen, wantAllow: true},
				{do: "ok", wantState: StateOpen, wantAllow: true},
				{do: "fail", wantState: StateOpen},
				{do: "wait:1s", wantState: StateOpen, wantAllow: true},
				{do: "ok", wantState: StateOpen, wantAllow: true},
				{do: "ok", wantState: StateClosed, wantAllow: true, closed: true},
			},
		},
		{
			name: "probe after cooldown and failed probe restarts it",
			opts: []Option{WithFailureThreshold(2), WithCooldown(10 * time.Second)},
			steps: []step{
				{do: "fail", wantState: StateClosed, wantAllow: true},
				{do: "fail", wantState: StateOpen, opened: true},
				{do: "wait:9s", wantState: StateOpen},
				{do: "wait:1s", wantState: StateOpen, wantAllow: true},
				{do: "fail", wantState: StateOpen},
				{do: "wait:10s", wantState: StateOpen, wantAllow: true},
				{do: "ok", wantState: StateClosed, wantAllow: true, closed: true},
			},
		},
		{
			name: "reset closes immediately",
			opts: []Option{WithFailureThreshold(1), WithCooldown(time.Hour)},
			steps: []step{
				{do: "fail", wantState: StateOpen, opened: true},
				{do: "reset", wantState: StateClosed, wantAllow: true},
				{do: "fail", wantState: StateOpen, opened: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
			opts := append([]Option{WithClock(func() time.Time { return now })}, tt.opts...)
			runSteps(t, New("payment-gateway", opts...), &now, tt.steps)
		})
	}
}

func TestBreaker_Defaults(t *testing.T) {
	b := New("payment-gateway", WithFailureThreshold(0), WithCooldown(-time.Second))
	assert.Equal(t, "payment-gateway", b.Name())
	assert.False(t, b.IsOpen())
	for range 4 {
		b.RecordFailure()
	}
	assert.False(t, b.IsOpen(), "non-positive options keep the default threshold of five")
	useFallback, change := b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)
}
