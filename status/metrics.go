package status

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quic-interop/interop-harness/framework/result"
)

// Metrics are the Prometheus collectors updated as triples finish.
type Metrics struct {
	Runs     *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Pending  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interop_runs_total",
				Help: "Number of finished triples by test case and result.",
			},
			[]string{"test", "result"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "interop_run_duration_seconds",
				Help:    "Wall time of a triple, including all repetitions of a measurement.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"test"},
		),
		Pending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "interop_triples_pending",
				Help: "Number of selected triples that have not finished yet.",
			},
		),
	}
	reg.MustRegister(m.Runs, m.Duration, m.Pending)
	return m
}

func (m *Metrics) observe(test string, r result.Result, seconds float64) {
	m.Runs.WithLabelValues(test, string(r)).Inc()
	m.Duration.WithLabelValues(test).Observe(seconds)
}
