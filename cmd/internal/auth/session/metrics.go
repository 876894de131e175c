package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts session transitions.
type Metrics struct {
	transitions *prometheus.CounterVec
}

// NewMetrics registers session collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasklane",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session status transitions by target status.",
		}, []string{"to"}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions)
	}
	return m
}

func (m *Metrics) transition(to Status) {
	m.transitions.WithLabelValues(string(to)).Inc()
}
