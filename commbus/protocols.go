package commbus

import (
	"context"
	"time"
)

// =============================================================================
// EVENT PROTOCOLS
// =============================================================================

// Event is the protocol for all domain events.
// Events are immutable once published.
type Event interface {
	// Category returns the routing category.
	Category() Category
	// EventType returns the stable "<category>.<name>" type string.
	EventType() string
}

// Handler is the protocol for event subscribers.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is a function type that implements Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// SubscriptionToken identifies a subscription for later removal.
type SubscriptionToken uint64

// DeliveryReport summarizes one event delivery for middleware.
type DeliveryReport struct {
	Subscribers int
	Failures    int
	// FirstError is the first subscriber failure, if any.
	FirstError error
	Duration   time.Duration
}

// Middleware is the protocol for bus middleware.
// Middleware can intercept events before and after delivery.
type Middleware interface {
	// Before is called before delivery.
	// Returns the event to deliver, or nil to drop it.
	Before(ctx context.Context, event Event) (Event, error)

	// After is called once every subscriber has seen the event.
	After(ctx context.Context, event Event, report DeliveryReport)
}

// Publisher is the narrow publishing capability handed to components.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventBus is the protocol for the ordered event bus.
//
// Delivery contract:
//   - every subscriber registered at dispatch time receives each event exactly once
//   - subscribers are called sequentially in registration order
//   - for two publishes P1 then P2, every subscriber observes P1 before P2
//   - a subscriber failure never stops delivery to the others
type EventBus interface {
	Publisher

	// Subscribe registers a handler for all events.
	Subscribe(handler HandlerFunc) SubscriptionToken

	// SubscribeCategory registers a handler that only sees one category.
	SubscribeCategory(category Category, handler HandlerFunc) SubscriptionToken

	// Unsubscribe removes a subscription. Returns false if the token is unknown.
	Unsubscribe(token SubscriptionToken) bool

	// AddMiddleware appends middleware. Middleware runs in registration order.
	AddMiddleware(middleware Middleware)
}

// Logger is the logging capability injected into the bus.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}
