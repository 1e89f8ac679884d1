package sim

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of a simulation. Each Metrics has
// its own registry so several networks can run in one process.
type Metrics struct {
	reg *prometheus.Registry

	// rounds counts completed rounds.
	rounds prometheus.Counter

	// evaluations counts device evaluations.
	// Labels: status (ok, error)
	evaluations *prometheus.CounterVec

	// roundDuration measures wall time of a whole round.
	roundDuration prometheus.Histogram

	// devices is the number of devices in the network.
	devices prometheus.Gauge
}

// NewMetrics creates and registers the simulation collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		rounds: f.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldvm",
			Subsystem: "sim",
			Name:      "rounds_total",
			Help:      "Total completed simulation rounds",
		}),
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldvm",
			Subsystem: "sim",
			Name:      "evaluations_total",
			Help:      "Total device evaluations by outcome",
		}, []string{"status"}),
		roundDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fieldvm",
			Subsystem: "sim",
			Name:      "round_duration_seconds",
			Help:      "Wall time of one round over all devices",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		devices: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "fieldvm",
			Subsystem: "sim",
			Name:      "devices",
			Help:      "Number of simulated devices",
		}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRound(seconds float64, ok, failed int) {
	if m == nil {
		return
	}
	m.rounds.Inc()
	m.roundDuration.Observe(seconds)
	m.evaluations.WithLabelValues("ok").Add(float64(ok))
	m.evaluations.WithLabelValues("error").Add(float64(failed))
}
