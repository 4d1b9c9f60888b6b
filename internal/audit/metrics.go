package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the operator side channel: audit failures never reach end users,
// so they have to be visible here.
type Metrics struct {
	Appends       *prometheus.CounterVec
	WriteFailures prometheus.Counter
	CorruptLines  prometheus.Counter
	Pruned        prometheus.Counter

	MirrorBufferFill prometheus.Gauge
	MirrorDropped    prometheus.Counter
	MirrorFailures   prometheus.Counter
}

// NewMetrics registers the audit collectors. A nil registerer gets a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Appends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_records_appended_total",
			Help: "Audit records appended, by action and status.",
		}, []string{"action", "status"}),

		WriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Appends that could not be persisted to the audit log file.",
		}),

		CorruptLines: f.NewCounter(prometheus.CounterOpts{
			Name: "audit_corrupt_lines_total",
			Help: "Unparseable lines skipped while scanning the audit log.",
		}),

		Pruned: f.NewCounter(prometheus.CounterOpts{
			Name: "audit_records_pruned_total",
			Help: "Audit records removed by retention pruning.",
		}),

		MirrorBufferFill: f.NewGauge(prometheus.GaugeOpts{
			Name: "audit_mirror_buffer_utilization",
			Help: "Records waiting in the mirror buffer.",
		}),

		MirrorDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "audit_mirror_dropped_total",
			Help: "Records not mirrored because the buffer was full or the mirror stopped.",
		}),

		MirrorFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "audit_mirror_flush_failures_total",
			Help: "Mirror batches that failed to write.",
		}),
	}
}
