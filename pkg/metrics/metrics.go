// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMRequestDuration tracks reasoning engine call latency.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Reasoning engine request duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "purpose", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// ConversationsTotal tracks sessions created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"tenant_id"},
	)

	// MessagesTotal tracks total messages appended.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"tenant_id", "role"},
	)

	// ConfirmationsTotal tracks confirmation transitions.
	ConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confirmations_total",
			Help: "Confirmations by tool and resulting status",
		},
		[]string{"tool", "status"},
	)

	// InferredResolutionsTotal tracks approvals recovered from free-text prompts.
	InferredResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inferred_resolutions_total",
			Help: "Resolutions inferred from a free-text confirmation prompt",
		},
		[]string{"tool", "approved"},
	)

	// JobsTotal tracks job transitions.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Jobs by type and status reached",
		},
		[]string{"job_type", "status"},
	)

	// JobDuration tracks execution time from running to terminal.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Job execution duration",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"job_type", "status"},
	)

	// JobQueueDepth tracks jobs waiting for a worker.
	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "job_queue_depth",
			Help: "Jobs waiting for a worker",
		},
	)

	// CompactionsTotal tracks memory compaction attempts.
	CompactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_compactions_total",
			Help: "Memory compaction attempts by outcome",
		},
		[]string{"outcome"},
	)

	// FetchRetriesTotal tracks retried outbound fetches.
	FetchRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_retries_total",
			Help: "Outbound fetch attempts retried after a transient failure",
		},
	)

	// SSEConnectionsActive tracks open event streams.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE event streams",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for a reasoning engine call.
func RecordLLMCall(provider, purpose, status string, duration float64, model string, tokensIn, tokensOut int) {
	LLMRequestDuration.WithLabelValues(provider, purpose, status).Observe(duration)
	if model != "" {
		LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
		LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
	}
}

// RecordJob records a job reaching a status.
func RecordJob(jobType, status string) {
	JobsTotal.WithLabelValues(jobType, status).Inc()
}

// RecordJobDuration records how long a job ran.
func RecordJobDuration(jobType, status string, duration float64) {
	JobDuration.WithLabelValues(jobType, status).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connections gauge.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connections gauge.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
