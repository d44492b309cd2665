package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch-API Metrics
var (
	// Batch lifecycle counters
	BatchesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "objectstage",
			Subsystem: "batch_api",
			Name:      "batches_created_total",
			Help:      "Total number of upload batches created",
		},
	)

	BatchResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objectstage",
			Subsystem: "batch_api",
			Name:      "batch_resolutions_total",
			Help:      "Total batch resolutions by result",
		},
		[]string{"result"},
	)

	// Finalization counters
	FinalizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objectstage",
			Subsystem: "batch_api",
			Name:      "finalizations_total",
			Help:      "Total upload finalizations by outcome",
		},
		[]string{"outcome"},
	)

	FinalizedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "objectstage",
			Subsystem: "batch_api",
			Name:      "finalized_bytes_total",
			Help:      "Total bytes relocated by successful finalizations",
		},
	)

	// S3 operations counter
	S3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "objectstage",
			Subsystem: "batch_api",
			Name:      "s3_operations_total",
			Help:      "Total S3 operations",
		},
		[]string{"operation", "status"},
	)

	// S3 operation duration
	S3Duration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "objectstage",
			Subsystem: "batch_api",
			Name:      "s3_duration_seconds",
			Help:      "S3 operation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"operation"},
	)
)

// RecordBatchCreated records a created batch.
func RecordBatchCreated() {
	BatchesCreatedTotal.Inc()
}

// RecordBatchResolution records a batch resolution attempt.
func RecordBatchResolution(result string) {
	BatchResolutionsTotal.WithLabelValues(result).Inc()
}

// RecordFinalization records a finalization outcome.
func RecordFinalization(outcome string) {
	FinalizationsTotal.WithLabelValues(outcome).Inc()
}

// RecordFinalizedBytes records bytes relocated by a successful finalization.
func RecordFinalizedBytes(bytes int64) {
	FinalizedBytesTotal.Add(float64(bytes))
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation, status string, durationSec float64) {
	S3OperationsTotal.WithLabelValues(operation, status).Inc()
	S3Duration.WithLabelValues(operation).Observe(durationSec)
}
