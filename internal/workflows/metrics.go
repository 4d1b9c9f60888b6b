package workflows

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency of collaborator calls including retries, by operation and outcome.
	CallDuration *prometheus.HistogramVec

	// 0 closed, 1 half-open, 2 open
	BreakerState prometheus.Gauge

	Throttled prometheus.Counter
}

// NewMetrics registers the collaborator collectors. A nil registerer gets a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		CallDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_source_call_duration_seconds",
			Help:    "Latency of calls to the workflow platform.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"op", "outcome"}),

		BreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "workflow_source_circuit_breaker_state",
			Help: "State of the circuit breaker around the workflow platform (0=closed, 1=half-open, 2=open).",
		}),

		Throttled: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "workflow_source_throttled_total",
			Help: "Calls rejected by the local rate limiter.",
		}),
	}
}
