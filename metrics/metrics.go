// Package metrics holds the Prometheus collectors of the tracing pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chaintrace"

// Trace pipeline
var (
	// TracesTotal counts payment chain traces by outcome (success, not_found, network, malformed_trace, warehouse)
	TracesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracer",
			Name:      "traces_total",
			Help:      "Payment chain traces by outcome",
		},
		[]string{"outcome"},
	)

	TraceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tracer",
			Name:      "trace_duration_seconds",
			Help:      "Time from debug_traceTransaction request to warehouse append",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 100},
		},
	)

	TraceParticipants = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tracer",
			Name:      "participants",
			Help:      "Participants extracted per traced transaction",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 25, 50, 100},
		},
	)

	ArchivedTracesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "objects_total",
			Help:      "Raw traces written to the archive",
		},
		[]string{"status"},
	)
)

// Warehouse
var (
	WarehouseRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "warehouse",
			Name:      "rows_total",
			Help:      "Rows appended to warehouse tables",
		},
		[]string{"table", "status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "warehouse",
			Name:      "query_duration_seconds",
			Help:      "Analytics query latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"query"},
	)
)

// Synchronizer
var (
	SyncedHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "synchronizer",
			Name:      "last_block",
			Help:      "Last block whose headers and contract logs are stored",
		},
	)

	SyncedLogsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "synchronizer",
			Name:      "logs_total",
			Help:      "Procurement contract logs stored",
		},
	)
)

// Event mirror
var (
	MirroredEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "events_total",
			Help:      "Procurement contract events written to the warehouse",
		},
		[]string{"event"},
	)

	MirrorHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "last_block",
			Help:      "Last block whose events were mirrored",
		},
	)
)

// HTTP
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API requests by route and status code",
		},
		[]string{"route", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
