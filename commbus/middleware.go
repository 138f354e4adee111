// Package commbus provides event bus middleware implementations.
//
// Available Middleware:
//   - LoggingMiddleware: structured logging of every delivery
//   - MetricsMiddleware: Prometheus counters and delivery latency
package commbus

import (
	"context"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/observability"
)

// =============================================================================
// LOGGING MIDDLEWARE
// =============================================================================

// LoggingMiddleware logs all event traffic at debug level, and failures at warn.
type LoggingMiddleware struct {
	logger Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &LoggingMiddleware{logger: logger}
}

// Before logs event receipt.
func (m *LoggingMiddleware) Before(ctx context.Context, event Event) (Event, error) {
	m.logger.Debug("event_publishing",
		"category", string(event.Category()),
		"event_type", event.EventType(),
	)
	return event, nil
}

// After logs delivery completion.
func (m *LoggingMiddleware) After(ctx context.Context, event Event, report DeliveryReport) {
	if report.Failures > 0 {
		m.logger.Warn("event_delivered_with_failures",
			"event_type", event.EventType(),
			"subscribers", report.Subscribers,
			"failures", report.Failures,
			"error", report.FirstError.Error(),
		)
		return
	}
	m.logger.Debug("event_delivered",
		"event_type", event.EventType(),
		"subscribers", report.Subscribers,
		"duration_ms", report.Duration.Milliseconds(),
	)
}

// =============================================================================
// METRICS MIDDLEWARE
// =============================================================================

// MetricsMiddleware records delivery counts and latency.
type MetricsMiddleware struct{}

// NewMetricsMiddleware creates a new MetricsMiddleware.
func NewMetricsMiddleware() *MetricsMiddleware {
	return &MetricsMiddleware{}
}

// Before passes the event through.
func (m *MetricsMiddleware) Before(ctx context.Context, event Event) (Event, error) {
	return event, nil
}

// After records the delivery.
func (m *MetricsMiddleware) After(ctx context.Context, event Event, report DeliveryReport) {
	observability.RecordEventDelivery(string(event.Category()), event.EventType(), report.Failures, report.Duration)
}
