// Package testutil provides shared test doubles for the interview engine.
//
// Everything here is safe for concurrent use and has no external dependencies,
// so components can be tested in isolation.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/persistence"
)

// =============================================================================
// CAPTURING LOGGER
// =============================================================================

// CapturingLogger records every log call. It satisfies the Logger interfaces
// of commbus, kernel, tools and actions.
type CapturingLogger struct {
	entries []LogEntry
	mu      sync.Mutex
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewCapturingLogger creates an empty CapturingLogger.
func NewCapturingLogger() *CapturingLogger {
	return &CapturingLogger{}
}

func (l *CapturingLogger) Debug(msg string, keysAndValues ...any) {
	l.log("debug", msg, keysAndValues...)
}

func (l *CapturingLogger) Info(msg string, keysAndValues ...any) {
	l.log("info", msg, keysAndValues...)
}

func (l *CapturingLogger) Warn(msg string, keysAndValues ...any) {
	l.log("warn", msg, keysAndValues...)
}

func (l *CapturingLogger) Error(msg string, keysAndValues ...any) {
	l.log("error", msg, keysAndValues...)
}

func (l *CapturingLogger) log(level, msg string, keysAndValues ...any) {
	fields := make(map[string]any)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg, Fields: fields})
}

// Entries returns captured entries (thread-safe).
func (l *CapturingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	copied := make([]LogEntry, len(l.entries))
	copy(copied, l.entries)
	return copied
}

// Has reports whether a message was logged at level.
func (l *CapturingLogger) Has(level, message string) bool {
	return l.Count(level, message) > 0
}

// Count returns how many times a message was logged at level.
func (l *CapturingLogger) Count(level, message string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, e := range l.entries {
		if e.Level == level && e.Message == message {
			n++
		}
	}
	return n
}

// Clear removes all captured entries.
func (l *CapturingLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// =============================================================================
// EVENT RECORDER
// =============================================================================

// EventRecorder subscribes to a bus and keeps every delivered event in order.
type EventRecorder struct {
	events []commbus.Event
	mu     sync.Mutex
}

// NewEventRecorder creates a recorder subscribed to bus.
func NewEventRecorder(bus commbus.EventBus) *EventRecorder {
	r := &EventRecorder{}
	bus.Subscribe(r.Handle)
	return r
}

// Handle is the bus handler.
func (r *EventRecorder) Handle(_ context.Context, event commbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns recorded events in delivery order.
func (r *EventRecorder) Events() []commbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := make([]commbus.Event, len(r.events))
	copy(copied, r.events)
	return copied
}

// Types returns recorded event type strings in delivery order.
func (r *EventRecorder) Types() []string {
	events := r.Events()
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.EventType()
	}
	return types
}

// Count returns the number of recorded events of eventType.
func (r *EventRecorder) Count(eventType string) int {
	n := 0
	for _, e := range r.Events() {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

// Reset forgets recorded events.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// EventsOf returns recorded events of concrete type T.
func EventsOf[T commbus.Event](r *EventRecorder) []T {
	var result []T
	for _, e := range r.Events() {
		if typed, ok := e.(T); ok {
			result = append(result, typed)
		}
	}
	return result
}

// LastOf returns the most recent event of concrete type T.
func LastOf[T commbus.Event](r *EventRecorder) (T, bool) {
	events := EventsOf[T](r)
	if len(events) == 0 {
		var zero T
		return zero, false
	}
	return events[len(events)-1], true
}

// =============================================================================
// FAKE ARTIFACT STORE
// =============================================================================

// FakeArtifactStore is an in-memory persistence.Store with failure injection.
type FakeArtifactStore struct {
	records []persistence.Record

	// PersistError causes Persist to fail with this error.
	PersistError error
	// ListError causes List to fail with this error.
	ListError error
	// Delay simulates storage latency. Persist honors context cancellation while waiting.
	Delay time.Duration

	persistCalls int
	mu           sync.Mutex
}

// NewFakeArtifactStore creates an empty FakeArtifactStore.
func NewFakeArtifactStore() *FakeArtifactStore {
	return &FakeArtifactStore{}
}

// WithPersistError configures Persist to fail.
func (f *FakeArtifactStore) WithPersistError(err error) *FakeArtifactStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PersistError = err
	return f
}

// Seed adds a record as if it had been persisted earlier.
func (f *FakeArtifactStore) Seed(recordType string, payload string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := uuid.NewString()
	f.records = append(f.records, persistence.Record{
		ID:         id,
		RecordType: recordType,
		Payload:    []byte(payload),
		CreatedAt:  time.Now().UTC(),
	})
	return id
}

// Persist implements persistence.Store.
func (f *FakeArtifactStore) Persist(ctx context.Context, recordType string, payload []byte) (string, error) {
	f.mu.Lock()
	f.persistCalls++
	delay, persistErr := f.Delay, f.PersistError
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if persistErr != nil {
		return "", persistErr
	}
	if recordType == "" {
		return "", fmt.Errorf("record type is required")
	}
	return f.Seed(recordType, string(payload)), nil
}

// List implements persistence.Store.
func (f *FakeArtifactStore) List(_ context.Context, recordType string) ([]persistence.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListError != nil {
		return nil, f.ListError
	}
	var result []persistence.Record
	for _, r := range f.records {
		if recordType == "" || r.RecordType == recordType {
			result = append(result, r)
		}
	}
	return result, nil
}

// RecordTypes implements persistence.Store.
func (f *FakeArtifactStore) RecordTypes(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListError != nil {
		return nil, f.ListError
	}
	seen := make(map[string]bool)
	var types []string
	for _, r := range f.records {
		if !seen[r.RecordType] {
			seen[r.RecordType] = true
			types = append(types, r.RecordType)
		}
	}
	sort.Strings(types)
	return types, nil
}

// Close implements persistence.Store.
func (f *FakeArtifactStore) Close() error {
	return nil
}

// PersistCalls returns how many times Persist was called.
func (f *FakeArtifactStore) PersistCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.persistCalls
}

// Records returns stored records of one type, or all for an empty type.
func (f *FakeArtifactStore) Records(recordType string) []persistence.Record {
	records, _ := f.List(context.Background(), recordType)
	return records
}
