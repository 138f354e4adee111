package kernel

import (
	"context"
	"fmt"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/observability"
)

// SupersededMessage is the tool output text used when the user replies in chat
// instead of answering an open prompt.
const SupersededMessage = "User dismissed the prompt and replied in chat"

// ContinuationManager completes the single pending UI-bound tool call.
//
// Completion order:
//  1. claim the pending call (a concurrent or repeated completion loses)
//  2. validate the output, replacing a malformed one with a rejected output
//  3. append the tool-result message
//  4. publish tool.callCompleted
//  5. clear the pending call
//  6. publish tool.promptCleared and reset the waiting state
//
// tool.callCompleted carries the call id and tool name. Subscribers must take
// them from the event: a completion made from inside a bus handler is queued,
// and by the time it is delivered the pending slot is already clear.
type ContinuationManager struct {
	store  *SessionStore
	bus    commbus.Publisher
	logger Logger
}

// NewContinuationManager creates a manager over store.
func NewContinuationManager(store *SessionStore, bus commbus.Publisher, logger Logger) *ContinuationManager {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ContinuationManager{store: store, bus: bus, logger: logger}
}

// Complete resolves whatever call is pending.
// With no pending call it logs a warning and returns ErrStaleContinuation.
func (m *ContinuationManager) Complete(ctx context.Context, output *interview.ToolOutput, instruction string) error {
	return m.complete(ctx, "", output, instruction, interview.DispositionCompleted)
}

// CompleteCall resolves the pending call only if its id is callID.
func (m *ContinuationManager) CompleteCall(ctx context.Context, callID string, output *interview.ToolOutput, instruction string) error {
	if callID == "" {
		return fmt.Errorf("call id is required")
	}
	return m.complete(ctx, callID, output, instruction, interview.DispositionCompleted)
}

// Cancel resolves the pending call with a cancelled output.
func (m *ContinuationManager) Cancel(ctx context.Context, reason string) error {
	if reason == "" {
		reason = "User cancelled the request"
	}
	output := interview.NewToolOutput(interview.ToolStatusCancelled, reason, nil)
	return m.complete(ctx, "", output, "", interview.DispositionCancelled)
}

// Supersede resolves a prompt the user bypassed by typing in chat.
// The model sees a cancelled output; the completion event is marked superseded.
func (m *ContinuationManager) Supersede(ctx context.Context, reason string) error {
	if reason == "" {
		reason = SupersededMessage
	}
	output := interview.NewToolOutput(interview.ToolStatusCancelled, reason, nil)
	return m.complete(ctx, "", output, "", interview.DispositionSuperseded)
}

func (m *ContinuationManager) complete(
	ctx context.Context,
	callID string,
	output *interview.ToolOutput,
	instruction string,
	disposition interview.Disposition,
) error {
	call, ok := m.store.claimPendingToolCall(callID)
	if !ok {
		m.logger.Warn("continuation_stale", "call_id", callID, "disposition", string(disposition))
		observability.RecordContinuationOutcome("stale")
		if callID != "" {
			return fmt.Errorf("%w: %s", interview.ErrStaleContinuation, callID)
		}
		return interview.ErrStaleContinuation
	}

	if err := output.Validate(); err != nil {
		m.logger.Warn("malformed_tool_output",
			"call_id", call.CallID,
			"tool_name", call.ToolName,
			"error", err.Error(),
		)
		output = interview.RejectedOutput("")
		disposition = interview.DispositionRejected
	}

	m.store.AppendToolResult(call.CallID, output, instruction)

	m.publish(ctx, &commbus.ToolCallCompleted{
		CallID:      call.CallID,
		ToolName:    call.ToolName,
		Output:      output,
		Instruction: instruction,
		Disposition: disposition,
	})

	m.store.clearClaimedToolCall(call.CallID)
	m.publish(ctx, &commbus.ToolPromptCleared{CallID: call.CallID})
	m.store.SetWaiting(ctx, interview.WaitingNone)

	m.logger.Info("continuation_completed",
		"call_id", call.CallID,
		"tool_name", call.ToolName,
		"status", string(output.Status),
		"disposition", string(disposition),
	)
	observability.RecordContinuationOutcome(string(disposition))
	return nil
}

func (m *ContinuationManager) publish(ctx context.Context, event commbus.Event) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, event); err != nil {
		m.logger.Warn("publish_failed", "event_type", event.EventType(), "error", err.Error())
	}
}
