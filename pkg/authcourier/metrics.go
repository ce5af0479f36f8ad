package authcourier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for auth-courier
// NOTE: No username labels are used to avoid high cardinality issues
type Metrics struct {
	// BatchesProcessed tracks invocations by outcome
	BatchesProcessed *prometheus.CounterVec // labels: status (success/control/<error kind>)

	// EventsPerBatch tracks the number of log events delivered per batch
	EventsPerBatch prometheus.Histogram

	// RecordsWritten tracks successful upserts
	RecordsWritten prometheus.Counter

	// EventsRejected tracks events that could not be parsed
	EventsRejected prometheus.Counter

	// WriteDuration tracks the latency of a single upsert
	WriteDuration prometheus.Histogram

	// BatchProcessingDuration tracks end-to-end invocation time
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates metrics with a custom registry
// This is useful for testing to avoid conflicts with the default registry
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BatchesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_courier_batches_processed_total",
				Help: "Total number of log batches processed",
			},
			[]string{"status"},
		),
		EventsPerBatch: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "auth_courier_batch_events",
				Help:    "Number of log events per delivered batch",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 to 2048
			},
		),
		RecordsWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "auth_courier_records_written_total",
				Help: "Total number of auth records upserted",
			},
		),
		EventsRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "auth_courier_events_rejected_total",
				Help: "Total number of log events whose message could not be parsed",
			},
		),
		WriteDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "auth_courier_record_write_duration_seconds",
				Help:    "Time spent upserting a single auth record",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}, // 5ms to 2.5s
			},
		),
		BatchProcessingDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "auth_courier_batch_processing_duration_seconds",
				Help:    "End-to-end batch processing time (decode + parse + writes)",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}, // 10ms to 1min
			},
		),
	}
}
