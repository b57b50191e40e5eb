package session

import "github.com/prometheus/client_golang/prometheus"

// Refresh outcomes
const (
	RefreshOK        = "ok"
	RefreshRejected  = "rejected"
	RefreshTransient = "transient"
)

// Recorder receives session events for metrics
type Recorder interface {
	RecordTransition(to State)
	RecordRefresh(outcome string)
	RecordStaleResponse(op string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(State)     {}
func (nopRecorder) RecordRefresh(string)       {}
func (nopRecorder) RecordStaleResponse(string) {}

// Metrics is the Prometheus Recorder
type Metrics struct {
	transitions *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	stale       *prometheus.CounterVec
}

// NewMetrics creates the session collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consultadmin_session_transitions_total",
			Help: "Session state transitions by target state",
		}, []string{"state"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consultadmin_session_refresh_total",
			Help: "Background session re-validations by outcome",
		}, []string{"outcome"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consultadmin_session_stale_responses_total",
			Help: "Responses discarded because a newer session change happened first",
		}, []string{"operation"}),
	}

	reg.MustRegister(m.transitions, m.refreshes, m.stale)
	return m
}

func (m *Metrics) RecordTransition(to State) {
	m.transitions.WithLabelValues(to.String()).Inc()
}

func (m *Metrics) RecordRefresh(outcome string) {
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordStaleResponse(op string) {
	m.stale.WithLabelValues(op).Inc()
}
