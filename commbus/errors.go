package commbus

import (
	"errors"
	"fmt"
)

// =============================================================================
// EXCEPTIONS
// =============================================================================

// ErrNilEvent is returned when Publish is called with a nil event.
var ErrNilEvent = errors.New("cannot publish nil event")

// CommBusError is the base error type for commbus errors.
type CommBusError struct {
	Message string
	Cause   error
}

func (e *CommBusError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CommBusError) Unwrap() error {
	return e.Cause
}

// SubscriberError is raised when a subscriber fails or panics while handling an event.
type SubscriberError struct {
	EventType string
	Token     SubscriptionToken
	Cause     error
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("subscriber %d failed for %s: %v", e.Token, e.EventType, e.Cause)
}

func (e *SubscriberError) Unwrap() error {
	return e.Cause
}

// NewSubscriberError creates a new SubscriberError.
func NewSubscriberError(eventType string, token SubscriptionToken, cause error) *SubscriberError {
	return &SubscriberError{EventType: eventType, Token: token, Cause: cause}
}

// PanicError wraps a value recovered from a panicking subscriber.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
