package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds delivery counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	pushes         *prometheus.CounterVec
	lookupFailures prometheus.Counter
	notifyDropped  prometheus.Counter
}

// NewMetrics creates delivery metrics and registers them on reg when non-nil.
// registry, when non-nil, backs the connected-users gauge.
func NewMetrics(reg prometheus.Registerer, registry *Registry) *Metrics {
	m := &Metrics{
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wiremsg",
			Subsystem: "delivery",
			Name:      "pushes_total",
			Help:      "Live push attempts by outcome.",
		}, []string{"result"}),
		lookupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wiremsg",
			Subsystem: "delivery",
			Name:      "roster_lookup_failures_total",
			Help:      "Group roster lookups that failed; the message was stored but not pushed.",
		}),
		notifyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wiremsg",
			Subsystem: "delivery",
			Name:      "notify_dropped_total",
			Help:      "Messages not pushed because the notify backlog was full.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.pushes, m.lookupFailures, m.notifyDropped)
		if registry != nil {
			reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "wiremsg",
				Name:      "connected_users",
				Help:      "Users with a registered live connection.",
			}, func() float64 { return float64(registry.Len()) }))
		}
	}

	return m
}

func (m *Metrics) observePush(result string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(result).Inc()
}

func (m *Metrics) observeLookupFailure() {
	if m == nil {
		return
	}
	m.lookupFailures.Inc()
}

func (m *Metrics) observeNotifyDropped() {
	if m == nil {
		return
	}
	m.notifyDropped.Inc()
}
