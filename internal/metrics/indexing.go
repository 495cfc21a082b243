// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Indexing pipeline metrics.
var (
	CommandsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docindex",
			Name:      "commands_applied_total",
			Help:      "Commands applied to the index, by kind",
		},
		[]string{"kind"},
	)

	CommandsMalformedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docindex",
			Name:      "commands_malformed_total",
			Help:      "Queue messages that did not decode to a command and were dead-lettered",
		},
	)

	DrainCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docindex",
			Name:      "drain_cycles_total",
			Help:      "Drain cycles by outcome",
		},
		[]string{"result"}, // "work" / "idle" / "failed"
	)

	DrainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docindex",
			Name:      "drain_duration_seconds",
			Help:      "Duration of drain cycles that did work",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	WriteLockContentionTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docindex",
			Name:      "write_lock_contention_total",
			Help:      "Drain cycles that could not take the index write lock",
		},
	)

	CompactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docindex",
			Name:      "compactions_total",
			Help:      "Writer session closes that requested compaction, by whether an optimize command asked for it",
		},
		[]string{"requested"}, // "true" / "false"
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docindex",
			Name:      "queue_depth",
			Help:      "Messages waiting in the work queue at the last idle check",
		},
	)
)

func init() {
	prometheus.MustRegister(CommandsAppliedTotal)
	prometheus.MustRegister(CommandsMalformedTotal)
	prometheus.MustRegister(DrainCyclesTotal)
	prometheus.MustRegister(DrainDuration)
	prometheus.MustRegister(WriteLockContentionTotal)
	prometheus.MustRegister(CompactionsTotal)
	prometheus.MustRegister(QueueDepth)
}
