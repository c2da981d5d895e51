// Package metrics provides Prometheus metrics for the reconciliation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks reconciliation runs by source and terminal status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ufcscraper",
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs by status",
		},
		[]string{"source_id", "status"},
	)

	// RunDuration tracks reconciliation run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ufcscraper",
			Subsystem: "reconcile",
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source_id"},
	)

	// UnitsProcessedTotal tracks per-unit outcomes within runs
	UnitsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ufcscraper",
			Subsystem: "reconcile",
			Name:      "units_processed_total",
			Help:      "Total number of raw units processed by outcome",
		},
		[]string{"source_id", "outcome"},
	)

	// UnitsStagedTotal tracks raw units accepted into staging
	UnitsStagedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ufcscraper",
			Subsystem: "intake",
			Name:      "units_staged_total",
			Help:      "Total number of raw units staged by status",
		},
		[]string{"source_id", "status"},
	)

	// CursorPosition tracks the committed cursor per source
	CursorPosition = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ufcscraper",
			Subsystem: "reconcile",
			Name:      "cursor_position",
			Help:      "Committed cursor position per source",
		},
		[]string{"source_id"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ufcscraper",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ufcscraper",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// KafkaMessagesConsumed tracks Kafka messages consumed from the intake topic
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ufcscraper",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of messages consumed from Kafka",
		},
		[]string{"topic", "status"},
	)

	// DatabaseQueryDuration tracks database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ufcscraper",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	// RedisOperationDuration tracks Redis operation duration
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ufcscraper",
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis operations in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"operation"},
	)
)

// RecordRun records a finished reconciliation run
func RecordRun(sourceID, status string, durationSeconds float64) {
	RunsTotal.WithLabelValues(sourceID, status).Inc()
	RunDuration.WithLabelValues(sourceID).Observe(durationSeconds)
}

// RecordUnitOutcome records n units that resolved to the given outcome
func RecordUnitOutcome(sourceID, outcome string, n int) {
	if n <= 0 {
		return
	}
	UnitsProcessedTotal.WithLabelValues(sourceID, outcome).Add(float64(n))
}

// RecordStagedUnits records an intake batch: how many units were new and how
// many collapsed into already-staged fingerprints
func RecordStagedUnits(sourceID string, staged, duplicates int) {
	if staged > 0 {
		UnitsStagedTotal.WithLabelValues(sourceID, "staged").Add(float64(staged))
	}
	if duplicates > 0 {
		UnitsStagedTotal.WithLabelValues(sourceID, "duplicate").Add(float64(duplicates))
	}
}

// SetCursorPosition records the committed cursor for a source
func SetCursorPosition(sourceID string, position int64) {
	CursorPosition.WithLabelValues(sourceID).Set(float64(position))
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

// RecordKafkaConsume records a consumed intake message
func RecordKafkaConsume(topic, status string) {
	KafkaMessagesConsumed.WithLabelValues(topic, status).Inc()
}
