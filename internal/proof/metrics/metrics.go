package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the proof module. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Sessions leaving the loading state, by resulting state (selecting, unsatisfiable)
	SessionsLoaded *prometheus.CounterVec

	// Terminal and retryable outcomes: submitted, rejected, failed, discarded
	Outcomes *prometheus.CounterVec

	ProvingLatency prometheus.Histogram

	// Number of verifiable credentials in the per-session status batch
	StatusBatchSize prometheus.Histogram

	// Viable credentials per group at load time, by qualifier kind
	Candidates *prometheus.HistogramVec
}

// New registers the proof metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the proof metrics with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_proof_sessions_loaded_total",
			Help: "Proof sessions that finished loading, by resulting state",
		}, []string{"state"}),

		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_proof_outcomes_total",
			Help: "Proof session outcomes",
		}, []string{"outcome"}),

		ProvingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_proof_proving_duration_seconds",
			Help:    "Duration of commitment building plus the proving call",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		StatusBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_proof_status_batch_size",
			Help:    "Verifiable credentials per session status fetch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),

		Candidates: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attest_proof_group_candidates",
			Help:    "Viable credentials per statement group at session start",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		}, []string{"kind"}),
	}
}

// IncrementLoaded records a session leaving the loading state.
func (m *Metrics) IncrementLoaded(state string) {
	if m != nil {
		m.SessionsLoaded.WithLabelValues(state).Inc()
	}
}

// IncrementOutcome records a session outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.Outcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveProvingLatency(d time.Duration) {
	if m != nil {
		m.ProvingLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveStatusBatch(size int) {
	if m != nil {
		m.StatusBatchSize.Observe(float64(size))
	}
}

func (m *Metrics) ObserveCandidates(kind string, n int) {
	if m != nil {
		m.Candidates.WithLabelValues(kind).Observe(float64(n))
	}
}
