// Package metrics exposes Prometheus instrumentation for the outbound
// pipeline, ingestion service, and aggregation engine, following the same
// promauto registration style used throughout this codebase's other
// Prometheus-backed subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector this service registers.
type Metrics struct {
	QueueDepth        prometheus.Gauge
	BatchFlushLatency prometheus.Histogram
	BatchSize         prometheus.Histogram
	SpoolSize         prometheus.Gauge
	DispatchRetries   *prometheus.CounterVec

	IngestInserted   prometheus.Counter
	IngestDuplicates prometheus.Counter
	IngestSkipped    prometheus.Counter
	IngestRequests   *prometheus.CounterVec

	AggregationQueryDuration *prometheus.HistogramVec
}

// New constructs and registers every collector.
func New() *Metrics {
	return &Metrics{
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Current number of buffered events in the outbound channel.",
		}),
		BatchFlushLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_batch_flush_latency_seconds",
			Help:    "Time spent delivering one batch, including retries, spooling and the spool drain.",
			Buckets: prometheus.DefBuckets,
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_batch_size",
			Help:    "Number of events in each flushed batch.",
			Buckets: []float64{1, 10, 50, 100, 250, 500},
		}),
		SpoolSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_spool_rows",
			Help: "Number of rows currently buffered in the disk spool.",
		}),
		DispatchRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_dispatch_retries_total",
			Help: "Total dispatch retry attempts, labeled by outcome.",
		}, []string{"outcome"}), // outcome: success, spooled

		IngestInserted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingestion_events_inserted_total",
			Help: "Total events newly inserted by the bulk ingestion endpoint.",
		}),
		IngestDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingestion_events_duplicate_total",
			Help: "Total events rejected as duplicates by the bulk ingestion endpoint.",
		}),
		IngestSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingestion_events_skipped_total",
			Help: "Total events dropped for failing validation before insert.",
		}),
		IngestRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestion_requests_total",
			Help: "Total ingestion HTTP requests, labeled by status outcome.",
		}, []string{"status"}), // status: ok, scope_violation, invalid_credential, error

		AggregationQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aggregation_query_duration_seconds",
			Help:    "Duration of aggregation engine queries, labeled by query name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
	}
}
