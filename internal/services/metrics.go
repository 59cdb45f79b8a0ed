// Prometheus collectors for the scheduling engine. Label cardinality is kept
// bounded: statuses and outcomes only, never event or user IDs.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// dispatchTicks counts scanner ticks by outcome ("ok" or "error").
	dispatchTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_dispatch_ticks_total",
			Help: "Total number of dispatch scanner ticks.",
		},
		[]string{"outcome"},
	)

	// dispatchCandidates counts candidates examined per tick by resolution.
	dispatchCandidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_dispatch_candidates_total",
			Help: "Candidates handled by the dispatch scanner, by resolution.",
		},
		[]string{"resolution"}, // claimed|deferred|conflict|skipped
	)

	// deliveries counts delivery attempts by final status of the attempt.
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_deliveries_total",
			Help: "Delivery attempts by result status.",
		},
		[]string{"status"}, // sent|failed
	)

	// dueIndexSize gauges the number of materialized due-index rows.
	dueIndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reminder_due_index_size",
			Help: "Current number of due-index rows.",
		},
	)

	// refreshDuration records due-index refresh latency.
	refreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reminder_due_index_refresh_seconds",
			Help:    "Duration of due-index refresh cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// indexStaleness counts refreshes observed to lag behind the horizon.
	indexStaleness = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reminder_due_index_staleness_total",
			Help: "Times the due index was observed stale at scan time.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		dispatchTicks, dispatchCandidates, deliveries,
		dueIndexSize, refreshDuration, indexStaleness,
	)
}
