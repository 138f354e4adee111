package interview

import (
	"time"
)

// =============================================================================
// Tool Status
// =============================================================================

// ToolStatus is the closed status vocabulary of a tool output.
type ToolStatus string

const (
	ToolStatusCompleted        ToolStatus = "completed"
	ToolStatusInProgress       ToolStatus = "in_progress" // model waits for a follow-up message
	ToolStatusRejected         ToolStatus = "rejected"
	ToolStatusCancelled        ToolStatus = "cancelled"
	ToolStatusChangesSubmitted ToolStatus = "changes_submitted"
	ToolStatusPhaseAdvanced    ToolStatus = "phase_advanced"
)

// IsValid reports whether s is in the vocabulary.
func (s ToolStatus) IsValid() bool {
	switch s {
	case ToolStatusCompleted, ToolStatusInProgress, ToolStatusRejected,
		ToolStatusCancelled, ToolStatusChangesSubmitted, ToolStatusPhaseAdvanced:
		return true
	}
	return false
}

// Disposition records how a call was resolved. It travels on completion events
// only; the model sees the ToolOutput alone.
type Disposition string

const (
	DispositionImmediate  Disposition = "immediate"
	DispositionCompleted  Disposition = "completed"
	DispositionCancelled  Disposition = "cancelled"
	DispositionSuperseded Disposition = "superseded"
	DispositionRejected   Disposition = "rejected"
)

// =============================================================================
// Requests and Responses
// =============================================================================

// ToolCallRequest is a tool invocation issued by the model.
type ToolCallRequest struct {
	CallID    string    `json:"call_id"`
	ToolName  string    `json:"tool_name"`
	Arguments Arguments `json:"arguments,omitempty"`
}

// ToolOutput is the structured result returned to the model.
// Auxiliary stays a generic document: it crosses the model boundary as-is.
type ToolOutput struct {
	Status    ToolStatus     `json:"status"`
	Message   string         `json:"message"`
	Auxiliary map[string]any `json:"auxiliary,omitempty"`
}

// Validate checks the required fields.
func (o *ToolOutput) Validate() error {
	if o == nil {
		return NewMalformedToolOutputError("output is nil")
	}
	if !o.Status.IsValid() {
		return NewMalformedToolOutputError("unknown status " + string(o.Status))
	}
	if o.Message == "" {
		return NewMalformedToolOutputError("message is required")
	}
	return nil
}

// NewToolOutput builds an output with optional auxiliary payload.
func NewToolOutput(status ToolStatus, message string, aux map[string]any) *ToolOutput {
	return &ToolOutput{Status: status, Message: message, Auxiliary: aux}
}

// RejectedOutput is the generic reply used when a handler misbehaves or a request
// cannot be honored. It keeps the conversation moving instead of leaving a call pending.
func RejectedOutput(reason string) *ToolOutput {
	if reason == "" {
		reason = "The request could not be completed."
	}
	return &ToolOutput{Status: ToolStatusRejected, Message: reason}
}

// ToolResponse is what the model transport receives for a call.
type ToolResponse struct {
	CallID string      `json:"call_id"`
	Output *ToolOutput `json:"output"`
	// Instruction is optional next-step guidance delivered with the result.
	Instruction string `json:"instruction,omitempty"`
}

// =============================================================================
// Pending Tool Call
// =============================================================================

// PendingToolCall is the single UI-bound call whose response is deferred.
type PendingToolCall struct {
	CallID     string    `json:"call_id"`
	ToolName   string    `json:"tool_name"`
	StatusHint string    `json:"status_hint,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Clone returns a copy.
func (p *PendingToolCall) Clone() *PendingToolCall {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
