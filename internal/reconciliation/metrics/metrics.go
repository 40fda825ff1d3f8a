package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the reconciliation paths.
type Metrics struct {
	Initiations       *prometheus.CounterVec
	Verifications     *prometheus.CounterVec
	CallbacksRejected prometheus.Counter
	SweepRuns         *prometheus.CounterVec
	SweepDuration     prometheus.Histogram
	SweepCandidates   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Initiations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "confreg_payment_initiations_total",
			Help: "Payment initiations by result",
		}, []string{"result"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "confreg_payment_verifications_total",
			Help: "Verified gateway statuses by source and resulting outcome",
		}, []string{"source", "outcome"}),
		CallbacksRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "confreg_payment_callbacks_rejected_total",
			Help: "Gateway callbacks rejected for a bad signature",
		}),
		SweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "confreg_payment_sweep_runs_total",
			Help: "Pending payment sweeps by result",
		}, []string{"result"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "confreg_payment_sweep_duration_seconds",
			Help:    "Duration of one pending payment sweep",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		SweepCandidates: f.NewCounter(prometheus.CounterOpts{
			Name: "confreg_payment_sweep_candidates_total",
			Help: "Stale pending cycles picked up by the sweeper",
		}),
	}
}

func (m *Metrics) IncInitiation(result string) {
	if m == nil {
		return
	}
	m.Initiations.WithLabelValues(result).Inc()
}

func (m *Metrics) IncVerification(source, outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) IncCallbackRejected() {
	if m == nil {
		return
	}
	m.CallbacksRejected.Inc()
}

// ObserveSweep records one sweep run started at start.
func (m *Metrics) ObserveSweep(start time.Time, candidates int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SweepRuns.WithLabelValues(result).Inc()
	m.SweepDuration.Observe(time.Since(start).Seconds())
	m.SweepCandidates.Add(float64(candidates))
}
