package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts circulation operations by outcome. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	alerts   *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "circulation",
			Name:      "operations_total",
			Help:      "Borrow, return and renew requests by outcome.",
		}, []string{"op", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "circulation",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in one circulation transaction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "circulation",
			Name:      "integrity_alerts_total",
			Help:      "Data-integrity failures (missing policy, failed inserts, ledger drift).",
		}, []string{"kind"}),
		gatherer: reg,
	}
}

func (m *Metrics) Observe(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) Alert(kind string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind).Inc()
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
