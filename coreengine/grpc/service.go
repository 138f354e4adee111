package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/actions"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "interview.v1.InterviewService"

// Full method names.
const (
	MethodSubmitToolCall      = "/" + ServiceName + "/SubmitToolCall"
	MethodSubmitChat          = "/" + ServiceName + "/SubmitChat"
	MethodResolvePrompt       = "/" + ServiceName + "/ResolvePrompt"
	MethodRequestPhaseAdvance = "/" + ServiceName + "/RequestPhaseAdvance"
	MethodGetSnapshot         = "/" + ServiceName + "/GetSnapshot"
	MethodStreamEvents        = "/" + ServiceName + "/StreamEvents"
)

// =============================================================================
// Messages
// =============================================================================

// SubmitToolCallResponse carries the tool result. Pending is true when the
// call opened a prompt; its result arrives later on the event stream.
type SubmitToolCallResponse struct {
	Response *interview.ToolResponse `json:"response,omitempty"`
	Pending  bool                    `json:"pending"`
}

type SubmitChatRequest struct {
	Text string `json:"text"`
}

type SubmitChatResponse struct {
	MessageID string `json:"message_id"`
}

// ResolvePromptRequest is a UI action aimed at the pending prompt.
type ResolvePromptRequest = actions.Envelope

type Ack struct{}

// PhaseAdvanceRequest asks to leave the current phase. Force skips the
// objective check on the user's explicit decision.
type PhaseAdvanceRequest struct {
	Reason string `json:"reason,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

type PhaseAdvanceResponse struct {
	Phase   interview.Phase `json:"phase"`
	Missing []string        `json:"missing,omitempty"`
}

type SnapshotRequest struct{}

// SnapshotResponse summarizes session state. State holds the complete
// snapshot document.
type SnapshotResponse struct {
	Phase           interview.Phase            `json:"phase"`
	Objectives      []*interview.Objective     `json:"objectives"`
	AllowedTools    []string                   `json:"allowed_tools"`
	PendingToolCall *interview.PendingToolCall `json:"pending_tool_call,omitempty"`
	Waiting         interview.WaitingState     `json:"waiting,omitempty"`
	IsProcessing    bool                       `json:"is_processing"`
	State           json.RawMessage            `json:"state"`
}

// StreamEventsRequest filters the event stream. No categories means all.
type StreamEventsRequest struct {
	Categories []commbus.Category `json:"categories,omitempty"`
}

// EventEnvelope is the wire form of one bus event.
type EventEnvelope struct {
	Type     string           `json:"type"`
	Category commbus.Category `json:"category"`
	Payload  json.RawMessage  `json:"payload"`
}

// NewEventEnvelope encodes a bus event.
func NewEventEnvelope(event commbus.Event) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event.EventType(), err)
	}
	return &EventEnvelope{Type: event.EventType(), Category: event.Category(), Payload: payload}, nil
}

// =============================================================================
// Service
// =============================================================================

// InterviewServiceServer is the server API for the interview service.
type InterviewServiceServer interface {
	SubmitToolCall(context.Context, *interview.ToolCallRequest) (*SubmitToolCallResponse, error)
	SubmitChat(context.Context, *SubmitChatRequest) (*SubmitChatResponse, error)
	ResolvePrompt(context.Context, *ResolvePromptRequest) (*Ack, error)
	RequestPhaseAdvance(context.Context, *PhaseAdvanceRequest) (*PhaseAdvanceResponse, error)
	GetSnapshot(context.Context, *SnapshotRequest) (*SnapshotResponse, error)
	StreamEvents(*StreamEventsRequest, EventStream) error
}

// EventStream is the server side of StreamEvents.
type EventStream interface {
	Send(*EventEnvelope) error
	Context() context.Context
}

// RegisterInterviewServiceServer registers srv on s.
func RegisterInterviewServiceServer(s grpc.ServiceRegistrar, srv InterviewServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the interview service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InterviewServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitToolCall", Handler: submitToolCallHandler},
		{MethodName: "SubmitChat", Handler: submitChatHandler},
		{MethodName: "ResolvePrompt", Handler: resolvePromptHandler},
		{MethodName: "RequestPhaseAdvance", Handler: requestPhaseAdvanceHandler},
		{MethodName: "GetSnapshot", Handler: getSnapshotHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamEvents", Handler: streamEventsHandler, ServerStreams: true},
	},
	Metadata: "interview/v1",
}

// unary adapts a typed method to grpc.MethodDesc's handler shape.
func unary[Req, Resp any](
	method string,
	call func(InterviewServiceServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(InterviewServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	submitToolCallHandler      = unary(MethodSubmitToolCall, InterviewServiceServer.SubmitToolCall)
	submitChatHandler          = unary(MethodSubmitChat, InterviewServiceServer.SubmitChat)
	resolvePromptHandler       = unary(MethodResolvePrompt, InterviewServiceServer.ResolvePrompt)
	requestPhaseAdvanceHandler = unary(MethodRequestPhaseAdvance, InterviewServiceServer.RequestPhaseAdvance)
	getSnapshotHandler         = unary(MethodGetSnapshot, InterviewServiceServer.GetSnapshot)
)

func streamEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(StreamEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(InterviewServiceServer).StreamEvents(in, &eventStream{stream})
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(e *EventEnvelope) error {
	return s.ServerStream.SendMsg(e)
}
