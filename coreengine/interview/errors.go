package interview

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINELS
// =============================================================================

var (
	// ErrStaleContinuation is returned when an action targets a pending call
	// that was already completed or cleared.
	ErrStaleContinuation = errors.New("no pending tool call to complete")

	// ErrUnknownObjective is returned for objective ids not registered in the current phase.
	ErrUnknownObjective = errors.New("unknown objective")

	// ErrObjectiveDependency is returned when an objective is completed before its dependencies.
	ErrObjectiveDependency = errors.New("objective dependencies not satisfied")

	// ErrPromptAlreadyPending is returned when a UI-bound call arrives while another is pending.
	ErrPromptAlreadyPending = errors.New("another tool call is awaiting user input")
)

// =============================================================================
// TYPED ERRORS
// =============================================================================

// InvalidPhaseTransitionError is raised for transitions that skip a phase or go backward.
type InvalidPhaseTransitionError struct {
	From   Phase
	To     Phase
	Reason string
}

func (e *InvalidPhaseTransitionError) Error() string {
	return fmt.Sprintf("invalid phase transition %s -> %s: %s", e.From, e.To, e.Reason)
}

// NewInvalidPhaseTransitionError creates a new InvalidPhaseTransitionError.
func NewInvalidPhaseTransitionError(from, to Phase, reason string) *InvalidPhaseTransitionError {
	return &InvalidPhaseTransitionError{From: from, To: to, Reason: reason}
}

// PersistenceError wraps a failure of the external record store.
type PersistenceError struct {
	RecordType string
	Cause      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.RecordType, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(recordType string, cause error) *PersistenceError {
	return &PersistenceError{RecordType: recordType, Cause: cause}
}

// MalformedToolOutputError is raised when a handler produces an output missing required fields.
type MalformedToolOutputError struct {
	Reason string
}

func (e *MalformedToolOutputError) Error() string {
	return "malformed tool output: " + e.Reason
}

// NewMalformedToolOutputError creates a new MalformedToolOutputError.
func NewMalformedToolOutputError(reason string) *MalformedToolOutputError {
	return &MalformedToolOutputError{Reason: reason}
}
