// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncJobsTotal tracks sync passes by provider and outcome
	SyncJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "jobs_total",
			Help:      "Total number of sync passes by provider and status",
		},
		[]string{"provider", "status"},
	)

	// SyncDuration tracks sync pass duration in seconds
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of sync passes in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"provider"},
	)

	// ConflictsDetected tracks newly created conflicts by type
	ConflictsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "conflicts",
			Name:      "detected_total",
			Help:      "Total number of conflicts created",
		},
		[]string{"provider", "type"},
	)

	// ConflictsResolved tracks conflict resolutions
	ConflictsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "conflicts",
			Name:      "resolved_total",
			Help:      "Total number of conflicts resolved by resolution",
		},
		[]string{"resolution"},
	)

	// RetryJobsTotal tracks retry queue transitions (queued, refreshed, resolved, abandoned)
	RetryJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "retry",
			Name:      "jobs_total",
			Help:      "Total number of retry job transitions",
		},
		[]string{"provider", "transition"},
	)

	// WebhookEventsTotal tracks webhook events by status transition
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Total number of webhook events by status",
		},
		[]string{"provider", "status"},
	)

	// LedgerEventsSynced tracks ledger events per sync outcome
	LedgerEventsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "ledger",
			Name:      "events_total",
			Help:      "Total number of ledger events attempted by outcome",
		},
		[]string{"status"},
	)

	// TokenRefreshes tracks credential refreshes
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "credentials",
			Name:      "token_refreshes_total",
			Help:      "Total number of access token refreshes",
		},
		[]string{"provider", "status"},
	)

	// StateSaveDuration tracks snapshot writes
	StateSaveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "state",
			Name:      "save_duration_seconds",
			Help:      "Duration of state snapshot saves in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// KafkaMessagesConsumed tracks webhook payloads read from Kafka
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of messages consumed from Kafka",
		},
		[]string{"topic", "status"},
	)

	// DLQJobsTotal tracks abandoned retries mirrored to the dead letter stream
	DLQJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "dlq",
			Name:      "jobs_total",
			Help:      "Total number of abandoned retry jobs sent to the dead letter stream",
		},
		[]string{"provider", "status"},
	)

	// RateLimitHits tracks rejected webhook deliveries
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "ratelimit",
			Name:      "hits_total",
			Help:      "Total number of webhook deliveries rejected by the rate limiter",
		},
		[]string{"provider"},
	)

	// SchedulerRuns tracks retry scheduler cycles
	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total number of retry scheduler cycles by outcome",
		},
		[]string{"status"},
	)
)

// RecordSync records a sync pass
func RecordSync(provider, status string, duration time.Duration) {
	SyncJobsTotal.WithLabelValues(provider, status).Inc()
	SyncDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordConflict records a newly created conflict
func RecordConflict(provider, conflictType string) {
	ConflictsDetected.WithLabelValues(provider, conflictType).Inc()
}

// RecordConflictResolution records a conflict resolution
func RecordConflictResolution(resolution string) {
	ConflictsResolved.WithLabelValues(resolution).Inc()
}

// RecordRetry records a retry job transition
func RecordRetry(provider, transition string) {
	RetryJobsTotal.WithLabelValues(provider, transition).Inc()
}

// RecordWebhookEvent records a webhook event reaching status
func RecordWebhookEvent(provider, status string) {
	WebhookEventsTotal.WithLabelValues(provider, status).Inc()
}

// RecordLedgerEvents records n ledger events reaching status
func RecordLedgerEvents(status string, n int) {
	if n <= 0 {
		return
	}
	LedgerEventsSynced.WithLabelValues(status).Add(float64(n))
}

// RecordTokenRefresh records a refresh attempt
func RecordTokenRefresh(provider, status string) {
	TokenRefreshes.WithLabelValues(provider, status).Inc()
}

// RecordStateSave records a snapshot save
func RecordStateSave(status string, duration time.Duration) {
	StateSaveDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

// RecordKafkaConsume records a consumed Kafka message
func RecordKafkaConsume(topic, status string) {
	KafkaMessagesConsumed.WithLabelValues(topic, status).Inc()
}

// RecordDLQJob records a dead letter write
func RecordDLQJob(provider, status string) {
	DLQJobsTotal.WithLabelValues(provider, status).Inc()
}

// RecordRateLimitHit records a rejected webhook delivery
func RecordRateLimitHit(provider string) {
	RateLimitHits.WithLabelValues(provider).Inc()
}

// RecordSchedulerRun records a retry scheduler cycle
func RecordSchedulerRun(status string) {
	SchedulerRuns.WithLabelValues(status).Inc()
}
