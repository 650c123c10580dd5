// Package metrics defines the Prometheus collectors exported by unibox.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unibox_sync_cycle_duration_seconds",
			Help:    "Duration of one account sync cycle in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"provider", "outcome"},
	)

	// outcome: persisted, skipped, dropped
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unibox_messages_processed_total",
			Help: "Fetched messages by how the sync cycle handled them",
		},
		[]string{"provider", "outcome"},
	)

	AICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unibox_ai_call_duration_seconds",
			Help:    "AI completion latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"operation", "status"},
	)

	AIFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unibox_ai_fallbacks_total",
			Help: "AI operations that returned their default result",
		},
		[]string{"operation"},
	)

	// outcome: ok, reauth, error
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unibox_token_refreshes_total",
			Help: "OAuth token refresh attempts",
		},
		[]string{"provider", "outcome"},
	)

	DraftsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "unibox_drafts_generated_total",
			Help: "Draft replies created",
		},
	)
)

// RecordSyncCycle records the duration and outcome of a sync cycle.
func RecordSyncCycle(provider, outcome string, duration time.Duration) {
	SyncCycleDuration.WithLabelValues(provider, outcome).Observe(duration.Seconds())
}

// RecordMessages adds n messages with the given outcome.
func RecordMessages(provider, outcome string, n int) {
	if n <= 0 {
		return
	}
	MessagesProcessed.WithLabelValues(provider, outcome).Add(float64(n))
}

// RecordAICall records one completion call.
func RecordAICall(operation, status string, duration time.Duration) {
	AICallDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

func RecordAIFallback(operation string) {
	AIFallbacks.WithLabelValues(operation).Inc()
}

func RecordTokenRefresh(provider, outcome string) {
	TokenRefreshes.WithLabelValues(provider, outcome).Inc()
}

func RecordDraft() {
	DraftsGenerated.Inc()
}
