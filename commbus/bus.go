package commbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// InMemoryEventBus is an in-memory implementation of EventBus.
//
// Delivery is single-threaded cooperative: each event is handed to every
// subscriber in registration order before the next event is dispatched.
// Publishers on different goroutines take turns; each one delivers its own
// event before Publish returns. A publish made from inside a subscriber, with
// the context the subscriber received, is queued behind the current event and
// delivered by the same publisher before its Publish returns.
//
// Usage:
//
//	bus := NewInMemoryEventBus(logger)
//	token := bus.SubscribeCategory(CategoryPhase, func(ctx context.Context, e Event) error {
//		applied, ok := e.(*PhaseTransitionApplied)
//		...
//	})
//	defer bus.Unsubscribe(token)
//	_ = bus.Publish(ctx, &PhaseTransitionApplied{From: ..., To: ...})
type InMemoryEventBus struct {
	subscribers []subscription
	active      map[SubscriptionToken]struct{}
	middleware  []Middleware
	nextToken   SubscriptionToken
	logger      Logger
	mu          sync.RWMutex

	deliverMu sync.Mutex
	current   atomic.Pointer[delivery]
}

type subscription struct {
	token    SubscriptionToken
	category Category // empty receives every category
	handler  HandlerFunc
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

type deliveryKey struct{}

// delivery holds the events published by subscribers while one top-level
// Publish is running.
type delivery struct {
	bus   *InMemoryEventBus
	mu    sync.Mutex
	queue []queuedEvent
	done  bool
}

func (d *delivery) enqueue(ctx context.Context, event Event) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return 0, false
	}
	d.queue = append(d.queue, queuedEvent{ctx: ctx, event: event})
	return len(d.queue), true
}

// dequeue pops the next queued event. An empty queue closes the delivery
// under the same lock so a late publish cannot strand its event.
func (d *delivery) dequeue() (queuedEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		d.done = true
		return queuedEvent{}, false
	}
	next := d.queue[0]
	d.queue[0] = queuedEvent{}
	d.queue = d.queue[1:]
	return next, true
}

func (d *delivery) close() {
	d.mu.Lock()
	d.done = true
	d.queue = nil
	d.mu.Unlock()
}

func (d *delivery) depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// NewInMemoryEventBus creates a new InMemoryEventBus. A nil logger discards output.
func NewInMemoryEventBus(logger Logger) *InMemoryEventBus {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &InMemoryEventBus{
		subscribers: make([]subscription, 0),
		active:      make(map[SubscriptionToken]struct{}),
		middleware:  make([]Middleware, 0),
		logger:      logger,
	}
}

// =============================================================================
// PUBLISHING
// =============================================================================

// Publish delivers an event to every subscriber.
//
// Called with a subscriber's context, the event is queued behind the event
// being delivered and Publish returns nil at once. Otherwise Publish waits for
// any delivery running on another goroutine, then delivers the event and
// everything its subscribers queued. The error result only reflects
// middleware rejection of the caller's own event.
func (b *InMemoryEventBus) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return ErrNilEvent
	}

	if d, ok := ctx.Value(deliveryKey{}).(*delivery); ok && d.bus == b {
		if depth, queued := d.enqueue(ctx, event); queued {
			b.logger.Debug("event_queued", "event_type", event.EventType(), "queue_depth", depth)
			return nil
		}
	}

	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	d := &delivery{bus: b}
	b.current.Store(d)
	defer func() {
		b.current.Store(nil)
		// a middleware panic leaves queued events behind; they are dropped
		d.close()
	}()

	err := b.deliver(context.WithValue(ctx, deliveryKey{}, d), event)
	for {
		next, ok := d.dequeue()
		if !ok {
			return err
		}
		if qerr := b.deliver(next.ctx, next.event); qerr != nil {
			b.logger.Warn("queued_event_rejected", "event_type", next.event.EventType(), "error", qerr.Error())
		}
	}
}

// deliver runs the middleware chain and calls every matching subscriber in order.
func (b *InMemoryEventBus) deliver(ctx context.Context, event Event) error {
	eventType := event.EventType()

	processed, err := b.runMiddlewareBefore(ctx, event)
	if err != nil {
		return &CommBusError{Message: "middleware rejected " + eventType, Cause: err}
	}
	if processed == nil {
		b.logger.Debug("event_dropped_by_middleware", "event_type", eventType)
		return nil
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	start := time.Now()
	report := DeliveryReport{}
	for _, sub := range subs {
		if sub.category != "" && sub.category != processed.Category() {
			continue
		}
		// Removed by an earlier subscriber during this delivery.
		if !b.isActive(sub.token) {
			continue
		}

		report.Subscribers++
		if herr := callSubscriber(ctx, sub.handler, processed); herr != nil {
			report.Failures++
			serr := NewSubscriberError(eventType, sub.token, herr)
			if report.FirstError == nil {
				report.FirstError = serr
			}
			b.logger.Error("subscriber_failed",
				"event_type", eventType,
				"token", uint64(sub.token),
				"error", herr.Error(),
			)
		}
	}

	report.Duration = time.Since(start)
	b.runMiddlewareAfter(ctx, processed, report)
	return nil
}

// callSubscriber invokes a handler, converting a panic into an error.
func callSubscriber(ctx context.Context, handler HandlerFunc, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return handler(ctx, event)
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Subscribe registers a handler that receives every event.
func (b *InMemoryEventBus) Subscribe(handler HandlerFunc) SubscriptionToken {
	return b.addSubscription("", handler)
}

// SubscribeCategory registers a handler that only receives one category.
func (b *InMemoryEventBus) SubscribeCategory(category Category, handler HandlerFunc) SubscriptionToken {
	return b.addSubscription(category, handler)
}

func (b *InMemoryEventBus) addSubscription(category Category, handler HandlerFunc) SubscriptionToken {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextToken++
	token := b.nextToken
	b.subscribers = append(b.subscribers, subscription{token: token, category: category, handler: handler})
	b.active[token] = struct{}{}

	b.logger.Debug("subscribed", "token", uint64(token), "category", string(category))
	return token
}

// Unsubscribe removes a subscription.
func (b *InMemoryEventBus) Unsubscribe(token SubscriptionToken) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.active[token]; !ok {
		return false
	}
	delete(b.active, token)
	for i, sub := range b.subscribers {
		if sub.token == token {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			break
		}
	}

	b.logger.Debug("unsubscribed", "token", uint64(token))
	return true
}

// AddMiddleware adds middleware to the bus.
// Middleware is executed in registration order.
func (b *InMemoryEventBus) AddMiddleware(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.middleware = append(b.middleware, middleware)
}

func (b *InMemoryEventBus) isActive(token SubscriptionToken) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.active[token]
	return ok
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// SubscriberCount returns the number of live subscriptions.
func (b *InMemoryEventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers)
}

// QueueDepth returns the number of events waiting behind the current delivery.
func (b *InMemoryEventBus) QueueDepth() int {
	if d := b.current.Load(); d != nil {
		return d.depth()
	}
	return 0
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Clear removes all subscribers and middleware.
// Useful for testing.
func (b *InMemoryEventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers = make([]subscription, 0)
	b.active = make(map[SubscriptionToken]struct{})
	b.middleware = make([]Middleware, 0)
	b.logger.Debug("bus_cleared")
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

// runMiddlewareBefore runs the before chain.
func (b *InMemoryEventBus) runMiddlewareBefore(ctx context.Context, event Event) (Event, error) {
	b.mu.RLock()
	middlewareCopy := make([]Middleware, len(b.middleware))
	copy(middlewareCopy, b.middleware)
	b.mu.RUnlock()

	current := event
	for _, mw := range middlewareCopy {
		result, err := mw.Before(ctx, current)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		current = result
	}
	return current, nil
}

// runMiddlewareAfter runs the after chain (reverse order).
func (b *InMemoryEventBus) runMiddlewareAfter(ctx context.Context, event Event, report DeliveryReport) {
	b.mu.RLock()
	middlewareCopy := make([]Middleware, len(b.middleware))
	copy(middlewareCopy, b.middleware)
	b.mu.RUnlock()

	for i := len(middlewareCopy) - 1; i >= 0; i-- {
		middlewareCopy[i].After(ctx, event, report)
	}
}

// Ensure InMemoryEventBus implements EventBus interface.
var _ EventBus = (*InMemoryEventBus)(nil)
