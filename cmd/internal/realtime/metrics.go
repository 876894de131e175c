package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the channel collectors.
type Metrics struct {
	state       *prometheus.GaugeVec
	reconnects  prometheus.Counter
	connects    *prometheus.CounterVec
	invocations *prometheus.CounterVec
}

// NewMetrics registers channel collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tasklane",
			Subsystem: "channel",
			Name:      "state",
			Help:      "1 for the current hub connection state, 0 otherwise.",
		}, []string{"state"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tasklane",
			Subsystem: "channel",
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnect attempts.",
		}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasklane",
			Subsystem: "channel",
			Name:      "connects_total",
			Help:      "Connection attempts by result.",
		}, []string{"result"}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tasklane",
			Subsystem: "channel",
			Name:      "invocations_total",
			Help:      "Hub invocations by method and result.",
		}, []string{"method", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.state, m.reconnects, m.connects, m.invocations)
	}
	return m
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(string(st)).Set(v)
	}
}

func (m *Metrics) reconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) connectResult(ok bool) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) invocation(method string, ok bool) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(method, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
