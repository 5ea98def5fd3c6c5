// Package telemetry exposes prometheus instrumentation for the graph
// core: edge mutation counters, type-scan counters, and search latency.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EdgeWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usergrid_edge_writes_total",
			Help: "Total edge write batches applied.",
		},
	)

	EdgeRemovals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usergrid_edge_removals_total",
			Help: "Total edge removal batches applied.",
		},
	)

	MetadataDeletes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usergrid_metadata_deletes_total",
			Help: "Total type-discovery columns deleted.",
		},
	)

	TypeScans = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usergrid_type_scans_total",
			Help: "Total type-discovery pages served.",
		},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "usergrid_search_duration_seconds",
			Help:    "Latency of external search index queries.",
			Buckets: prometheus.DefBuckets,
		},
	)

	SearchRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usergrid_search_rejected_total",
			Help: "Search queries rejected by the analyzer/policy.",
		},
	)

	SearchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usergrid_search_failures_total",
			Help: "Search queries failed for reasons other than rejection.",
		},
	)

	AuditRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usergrid_audit_runs_total",
			Help: "Metadata audit sweeps completed.",
		},
	)

	AuditOrphansRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usergrid_audit_orphans_removed_total",
			Help: "Orphaned type-discovery columns removed by the auditor.",
		},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "usergrid_queue_depth",
			Help: "Visible messages per queue region.",
		},
		[]string{"region"},
	)

	QueueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usergrid_queue_dropped_total",
			Help: "Messages dropped because a queue was full.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		EdgeWrites,
		EdgeRemovals,
		MetadataDeletes,
		TypeScans,
		SearchDuration,
		SearchRejected,
		SearchFailures,
		AuditRuns,
		AuditOrphansRemoved,
		QueueDepth,
		QueueDropped,
	)
}

// TimeSearch records one search round trip duration.
func TimeSearch(start time.Time) {
	SearchDuration.Observe(time.Since(start).Seconds())
}
