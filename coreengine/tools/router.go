package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/kernel"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/observability"
)

// Dispatch outcomes, used as the metrics label and span attribute.
const (
	OutcomeImmediate        = "immediate"
	OutcomePrompt           = "prompt"
	OutcomeUnknownTool      = "unknown_tool"
	OutcomeNotAllowed       = "not_allowed"
	OutcomePromptPending    = "prompt_pending"
	OutcomeInvalidArguments = "invalid_arguments"
	OutcomeHandlerError     = "handler_error"
	OutcomePanic            = "panic"
	OutcomeMalformedOutput  = "malformed_output"
)

// Router turns model tool calls into immediate responses, prompts or rejections.
//
// Usage:
//
//	router := tools.NewRouter(k, tools.NewBuiltinRegistry(), logger)
//	defer router.Close()
//
//	resp, err := router.Dispatch(ctx, req) // nil resp: the answer is deferred to the user
type Router struct {
	kernel   *kernel.Kernel
	registry *Registry
	logger   kernel.Logger
	strict   bool

	mu           sync.Mutex
	allowed      []string
	allowedPhase interview.Phase
	token        commbus.SubscriptionToken
	closed       bool
}

// NewRouter creates a router and subscribes it to tool, phase and objective events.
// A nil registry uses the built-in tools.
func NewRouter(k *kernel.Kernel, registry *Registry, logger kernel.Logger) *Router {
	if registry == nil {
		registry = NewBuiltinRegistry()
	}
	if logger == nil {
		logger = k.Logger()
	}

	r := &Router{
		kernel:   k,
		registry: registry,
		logger:   logger,
		strict:   k.Config().StrictToolGating,
	}
	r.allowedPhase = k.Store().Phase()
	r.allowed = r.computeAllowed(r.allowedPhase)
	r.token = k.Bus().Subscribe(r.handleEvent)
	return r
}

// Close unsubscribes the router. Safe to call more than once.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.kernel.Bus().Unsubscribe(r.token)
}

// Registry returns the tool registry.
func (r *Router) Registry() *Registry {
	return r.registry
}

// AllowedTools returns the last published allowed set.
func (r *Router) AllowedTools() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.allowed)
}

// Specs returns the model-facing specs of the allowed tools.
func (r *Router) Specs() []Spec {
	return r.registry.Specs(r.AllowedTools())
}

// =============================================================================
// Dispatch
// =============================================================================

// Dispatch routes one tool call. It returns the response for immediate answers
// and rejections, or nil when the call now waits on the user. Every outcome
// except the deferred one is also published as tool.callCompleted.
func (r *Router) Dispatch(ctx context.Context, req interview.ToolCallRequest) (*interview.ToolResponse, error) {
	if req.CallID == "" {
		return nil, errors.New("tool call id is required")
	}

	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "tools.dispatch",
		trace.WithAttributes(
			attribute.String("tool.name", req.ToolName),
			attribute.String("tool.call_id", req.CallID),
		),
	)
	defer span.End()

	resp, outcome := r.dispatch(ctx, req)

	span.SetAttributes(attribute.String("tool.outcome", outcome))
	if resp != nil && resp.Output.Status == interview.ToolStatusRejected {
		span.SetStatus(codes.Error, resp.Output.Message)
	}
	observability.RecordToolDispatch(req.ToolName, outcome, time.Since(start))
	return resp, nil
}

func (r *Router) dispatch(ctx context.Context, req interview.ToolCallRequest) (*interview.ToolResponse, string) {
	store := r.kernel.Store()

	def, ok := r.registry.Get(req.ToolName)
	if !ok {
		return r.reject(ctx, req, OutcomeUnknownTool, fmt.Sprintf("Unknown tool: %s", req.ToolName)), OutcomeUnknownTool
	}

	phase := store.Phase()
	if !slices.Contains(r.computeAllowed(phase), req.ToolName) {
		if r.strict {
			msg := fmt.Sprintf("Tool %s is not available in the %s phase", req.ToolName, phase)
			return r.reject(ctx, req, OutcomeNotAllowed, msg), OutcomeNotAllowed
		}
		r.logger.Warn("tool_not_allowed", "tool", req.ToolName, "phase", phase)
	}

	if def.Mode == ModePrompt {
		if pending := store.PendingToolCall(); pending != nil {
			return r.reject(ctx, req, OutcomePromptPending, promptPendingMessage(pending)), OutcomePromptPending
		}
	}

	args := req.Arguments
	if args == nil {
		args = interview.Arguments{}
	}
	if err := def.Parameters.Validate(args); err != nil {
		msg := fmt.Sprintf("Invalid arguments for %s: %v", req.ToolName, err)
		return r.reject(ctx, req, OutcomeInvalidArguments, msg), OutcomeInvalidArguments
	}

	inv := &Invocation{CallID: req.CallID, ToolName: req.ToolName, Args: args, Kernel: r.kernel}
	result, err := kernel.SafeExecuteWithResult(r.logger, "tool:"+req.ToolName, func() (*Result, error) {
		return def.Handler(ctx, inv)
	})
	if err != nil {
		var panicked *kernel.RecoveredPanic
		var argErr *ArgumentError
		switch {
		case errors.As(err, &panicked):
			return r.reject(ctx, req, OutcomePanic, ""), OutcomePanic
		case errors.As(err, &argErr):
			msg := fmt.Sprintf("Invalid arguments for %s: %s", req.ToolName, argErr.Reason)
			return r.reject(ctx, req, OutcomeInvalidArguments, msg), OutcomeInvalidArguments
		default:
			return r.reject(ctx, req, OutcomeHandlerError, err.Error()), OutcomeHandlerError
		}
	}

	if result != nil && result.Prompt != nil {
		return r.openPrompt(ctx, req, result)
	}

	var output *interview.ToolOutput
	if result != nil {
		output = result.Output
	}
	if err := output.Validate(); err != nil {
		r.logger.Warn("malformed_tool_output", "tool", req.ToolName, "call_id", req.CallID, "error", err.Error())
		return r.reject(ctx, req, OutcomeMalformedOutput, ""), OutcomeMalformedOutput
	}

	return r.respond(ctx, req, output, result.Instruction, interview.DispositionImmediate), OutcomeImmediate
}

func (r *Router) openPrompt(ctx context.Context, req interview.ToolCallRequest, result *Result) (*interview.ToolResponse, string) {
	store := r.kernel.Store()

	if _, err := store.TryStorePendingToolCall(req.CallID, req.ToolName, result.StatusHint); err != nil {
		pending := store.PendingToolCall()
		return r.reject(ctx, req, OutcomePromptPending, promptPendingMessage(pending)), OutcomePromptPending
	}

	for _, event := range result.Events {
		r.publish(ctx, event)
	}
	kind := result.Prompt.Waiting()
	r.publish(ctx, &commbus.ToolPromptRequested{
		CallID:   req.CallID,
		ToolName: req.ToolName,
		Kind:     kind,
		Prompt:   result.Prompt,
	})
	store.SetWaiting(ctx, kind)

	r.logger.Info("tool_prompt_opened", "tool", req.ToolName, "call_id", req.CallID, "kind", kind)
	return nil, OutcomePrompt
}

func (r *Router) reject(ctx context.Context, req interview.ToolCallRequest, outcome, reason string) *interview.ToolResponse {
	r.logger.Warn("tool_call_rejected",
		"tool", req.ToolName,
		"call_id", req.CallID,
		"outcome", outcome,
		"reason", reason,
	)
	return r.respond(ctx, req, interview.RejectedOutput(reason), "", interview.DispositionRejected)
}

func (r *Router) respond(
	ctx context.Context,
	req interview.ToolCallRequest,
	output *interview.ToolOutput,
	instruction string,
	disposition interview.Disposition,
) *interview.ToolResponse {
	r.kernel.Store().AppendToolResult(req.CallID, output, instruction)
	r.publish(ctx, &commbus.ToolCallCompleted{
		CallID:      req.CallID,
		ToolName:    req.ToolName,
		Output:      output,
		Instruction: instruction,
		Disposition: disposition,
	})
	return &interview.ToolResponse{CallID: req.CallID, Output: output, Instruction: instruction}
}

func promptPendingMessage(pending *interview.PendingToolCall) string {
	if pending == nil {
		return "Another request is waiting for the user. Wait for it to be answered first."
	}
	return fmt.Sprintf("%s is still waiting for the user. Wait for it to be answered first.", pending.ToolName)
}

// =============================================================================
// Pending resolution
// =============================================================================

// ResolvePending returns the pending call if it matches toolName and callID.
// Empty arguments match anything. A nil result means the action is stale.
func (r *Router) ResolvePending(callID, toolName string) *interview.PendingToolCall {
	pending := r.kernel.Store().PendingToolCall()
	switch {
	case pending == nil:
		r.logger.Debug("no_pending_tool_call", "tool", toolName, "call_id", callID)
		return nil
	case toolName != "" && pending.ToolName != toolName:
		r.logger.Debug("pending_tool_mismatch", "tool", toolName, "pending_tool", pending.ToolName)
		return nil
	case callID != "" && pending.CallID != callID:
		r.logger.Debug("pending_call_mismatch", "call_id", callID, "pending_call_id", pending.CallID)
		return nil
	}
	return pending
}

// =============================================================================
// Allowed tools
// =============================================================================

func (r *Router) computeAllowed(phase interview.Phase) []string {
	store := r.kernel.Store()
	return AllowedTools(store.Script(), phase, store.ObjectiveStatuses())
}

// RefreshAllowedTools recomputes the allowed set and publishes
// state.toolsAllowedUpdated when it changed. Returns whether it changed.
func (r *Router) RefreshAllowedTools(ctx context.Context) bool {
	phase := r.kernel.Store().Phase()
	allowed := r.computeAllowed(phase)

	r.mu.Lock()
	changed := phase != r.allowedPhase || !slices.Equal(allowed, r.allowed)
	if changed {
		r.allowed = allowed
		r.allowedPhase = phase
	}
	r.mu.Unlock()

	if changed {
		r.logger.Debug("tools_allowed_updated", "phase", phase, "count", len(allowed))
		r.publish(ctx, &commbus.ToolsAllowedUpdated{Phase: phase, Tools: slices.Clone(allowed)})
	}
	return changed
}

func (r *Router) handleEvent(ctx context.Context, event commbus.Event) error {
	switch e := event.(type) {
	case *commbus.ToolCallRequested:
		_, err := r.Dispatch(ctx, e.Request)
		return err
	case *commbus.PhaseTransitionApplied, *commbus.ObjectiveStatusChanged:
		r.RefreshAllowedTools(ctx)
	}
	return nil
}

func (r *Router) publish(ctx context.Context, event commbus.Event) {
	if err := r.kernel.Bus().Publish(ctx, event); err != nil {
		r.logger.Warn("publish_failed", "event_type", event.EventType(), "error", err.Error())
	}
}
