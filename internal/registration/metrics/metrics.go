package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transition outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeRejected = "rejected"
	OutcomeStale    = "stale"
)

// Metrics counts registrations and state machine transitions.
type Metrics struct {
	Registered  prometheus.Counter
	Transitions *prometheus.CounterVec
}

// New registers the registration metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registered: f.NewCounter(prometheus.CounterOpts{
			Name: "confreg_participants_registered_total",
			Help: "Total number of participants registered",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "confreg_participant_transitions_total",
			Help: "State machine transitions by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
}

func (m *Metrics) IncrementRegistered() {
	if m == nil {
		return
	}
	m.Registered.Inc()
}

// ObserveTransition records one transition attempt, e.g. ("payment_complete", OutcomeNoop).
func (m *Metrics) ObserveTransition(kind, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(kind, outcome).Inc()
}
