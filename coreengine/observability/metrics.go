// Package observability provides Prometheus metrics instrumentation for the interview engine.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// EVENT BUS METRICS
// =============================================================================

var (
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_events_published_total",
			Help: "Total number of events delivered by the event bus",
		},
		[]string{"category", "event_type"},
	)

	subscriberFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_subscriber_failures_total",
			Help: "Total number of subscriber errors and panics",
		},
		[]string{"event_type"},
	)

	eventDeliverySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "interview_event_delivery_seconds",
			Help:    "Time to deliver one event to every subscriber",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"category"},
	)
)

// =============================================================================
// TOOL METRICS
// =============================================================================

var (
	toolDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_tool_dispatch_total",
			Help: "Total number of tool calls dispatched by the router",
		},
		[]string{"tool", "outcome"}, // outcome: immediate, prompt, rejected
	)

	toolDispatchSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "interview_tool_dispatch_seconds",
			Help:    "Tool handler duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"tool"},
	)

	continuationOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_continuation_outcomes_total",
			Help: "Total number of pending tool call resolutions",
		},
		[]string{"disposition"}, // completed, cancelled, superseded, rejected, stale
	)
)

// =============================================================================
// PHASE AND PERSISTENCE METRICS
// =============================================================================

var (
	phaseTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_phase_transitions_total",
			Help: "Total number of phase transition requests",
		},
		[]string{"to", "result"}, // result: applied, forced, rejected
	)

	persistenceOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_persistence_operations_total",
			Help: "Total number of artifact persistence operations",
		},
		[]string{"record_type", "status"}, // status: success, error
	)
)

// =============================================================================
// GRPC METRICS
// =============================================================================

var (
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_grpc_requests_total",
			Help: "Total gRPC requests",
		},
		[]string{"method", "status"}, // status: OK, InvalidArgument, Internal, etc.
	)

	grpcRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "interview_grpc_request_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordEventDelivery records one bus delivery.
func RecordEventDelivery(category, eventType string, failures int, duration time.Duration) {
	eventsPublishedTotal.WithLabelValues(category, eventType).Inc()
	if failures > 0 {
		subscriberFailuresTotal.WithLabelValues(eventType).Add(float64(failures))
	}
	eventDeliverySeconds.WithLabelValues(category).Observe(duration.Seconds())
}

// RecordToolDispatch records how the router resolved a tool call.
func RecordToolDispatch(tool, outcome string, duration time.Duration) {
	toolDispatchTotal.WithLabelValues(tool, outcome).Inc()
	toolDispatchSeconds.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordContinuationOutcome records how a pending tool call was resolved.
func RecordContinuationOutcome(disposition string) {
	continuationOutcomesTotal.WithLabelValues(disposition).Inc()
}

// RecordPhaseTransition records a phase transition request.
func RecordPhaseTransition(to, result string) {
	phaseTransitionsTotal.WithLabelValues(to, result).Inc()
}

// RecordPersistence records an artifact persistence attempt.
func RecordPersistence(recordType, status string) {
	persistenceOperationsTotal.WithLabelValues(recordType, status).Inc()
}

// RecordGRPCRequest records gRPC request metrics.
// This should be called from gRPC interceptors.
func RecordGRPCRequest(method string, status string, durationMS int) {
	grpcRequestsTotal.WithLabelValues(method, status).Inc()
	grpcRequestDurationSeconds.WithLabelValues(method).Observe(float64(durationMS) / 1000.0)
}
