// Package grpc exposes an interview engine over gRPC.
//
// The model transport submits tool calls and reads their results from the
// event stream; UI projections resolve prompts, send chat and render
// snapshots. Messages are plain Go structs carried by the JSON codec.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/runtime"
)

// Logger interface for the server.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// InterviewServer implements InterviewServiceServer over one engine.
type InterviewServer struct {
	engine       *runtime.Engine
	logger       Logger
	streamBuffer int
}

// ServerOption configures an InterviewServer.
type ServerOption func(*InterviewServer)

// WithStreamBuffer sets the per-stream event buffer. Zero uses
// runtime.DefaultWatchBuffer.
func WithStreamBuffer(n int) ServerOption {
	return func(s *InterviewServer) { s.streamBuffer = n }
}

// NewInterviewServer creates the service implementation.
func NewInterviewServer(engine *runtime.Engine, logger Logger, opts ...ServerOption) *InterviewServer {
	s := &InterviewServer{engine: engine, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ InterviewServiceServer = (*InterviewServer)(nil)

// =============================================================================
// Model transport
// =============================================================================

// SubmitToolCall dispatches a tool call through the router.
func (s *InterviewServer) SubmitToolCall(ctx context.Context, req *interview.ToolCallRequest) (*SubmitToolCallResponse, error) {
	if err := validateRequired(req.CallID, "call_id"); err != nil {
		return nil, err
	}
	if err := validateRequired(req.ToolName, "tool_name"); err != nil {
		return nil, err
	}

	resp, err := s.engine.HandleToolCall(ctx, *req)
	if err != nil {
		return nil, toStatus("submit tool call", err)
	}
	return &SubmitToolCallResponse{Response: resp, Pending: resp == nil}, nil
}

// =============================================================================
// UI actions
// =============================================================================

// SubmitChat sends a user chat message.
func (s *InterviewServer) SubmitChat(ctx context.Context, req *SubmitChatRequest) (*SubmitChatResponse, error) {
	if err := validateRequired(req.Text, "text"); err != nil {
		return nil, err
	}
	id, err := s.engine.Actions().SubmitChat(ctx, req.Text)
	if err != nil {
		return nil, toStatus("submit chat", err)
	}
	return &SubmitChatResponse{MessageID: id}, nil
}

// ResolvePrompt applies a UI action envelope.
func (s *InterviewServer) ResolvePrompt(ctx context.Context, req *ResolvePromptRequest) (*Ack, error) {
	if err := validateRequired(string(req.Kind), "kind"); err != nil {
		return nil, err
	}
	if err := s.engine.Actions().Apply(ctx, *req); err != nil {
		return nil, toStatus("resolve prompt", err)
	}
	s.logger.Debug("prompt_action_applied", "kind", string(req.Kind), "call_id", req.CallID)
	return &Ack{}, nil
}

// RequestPhaseAdvance moves to the next phase. Without Force the phase's
// required objectives must be met.
func (s *InterviewServer) RequestPhaseAdvance(ctx context.Context, req *PhaseAdvanceRequest) (*PhaseAdvanceResponse, error) {
	phases := s.engine.Kernel().Phases()

	var err error
	if req.Force {
		_, err = s.engine.Actions().SkipToNextPhase(ctx)
	} else {
		_, err = phases.AdvanceToNext(ctx, req.Reason, false)
	}
	if err != nil {
		return nil, toStatus("advance phase", err)
	}
	return &PhaseAdvanceResponse{
		Phase:   s.engine.Kernel().Store().Phase(),
		Missing: phases.MissingObjectives(),
	}, nil
}

// GetSnapshot returns the current session state.
func (s *InterviewServer) GetSnapshot(_ context.Context, _ *SnapshotRequest) (*SnapshotResponse, error) {
	snap := s.engine.Snapshot()
	state, err := json.Marshal(snap)
	if err != nil {
		return nil, Internal("encode snapshot", err)
	}
	return &SnapshotResponse{
		Phase:           snap.Phase,
		Objectives:      snap.Objectives,
		AllowedTools:    s.engine.Router().AllowedTools(),
		PendingToolCall: snap.PendingToolCall,
		Waiting:         snap.Waiting,
		IsProcessing:    snap.IsProcessing,
		State:           state,
	}, nil
}

// StreamEvents forwards bus events until the client goes away. A client that
// falls behind gets ResourceExhausted and should resync with GetSnapshot.
func (s *InterviewServer) StreamEvents(req *StreamEventsRequest, stream EventStream) error {
	ctx := stream.Context()
	feed := s.engine.Watch(ctx, s.streamBuffer)

	s.logger.Info("event_stream_opened", "categories", len(req.Categories))
	defer s.logger.Info("event_stream_closed")

	for event := range feed.Events() {
		if len(req.Categories) > 0 && !slices.Contains(req.Categories, event.Category()) {
			continue
		}
		env, err := NewEventEnvelope(event)
		if err != nil {
			s.logger.Warn("event_not_encodable", "event_type", event.EventType(), "error", err.Error())
			continue
		}
		if err := stream.Send(env); err != nil {
			return err
		}
	}
	if errors.Is(feed.Err(), runtime.ErrFeedOverflow) {
		s.logger.Warn("event_stream_overflow")
		return status.Error(codes.ResourceExhausted, "event stream fell behind; resync with GetSnapshot")
	}
	return nil
}

// =============================================================================
// Server Lifecycle
// =============================================================================

// GracefulServer wraps a gRPC server with graceful shutdown support.
type GracefulServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     Logger
	address    string

	mu         sync.Mutex
	listener   net.Listener
	isShutdown bool
}

// NewGracefulServer creates a gRPC server hosting service and the standard
// health service. With no options the standard interceptors and tracing
// handler are installed.
func NewGracefulServer(service *InterviewServer, address string, opts ...grpc.ServerOption) *GracefulServer {
	if len(opts) == 0 {
		opts = ServerOptions(service.logger)
	}

	grpcServer := grpc.NewServer(opts...)
	RegisterInterviewServiceServer(grpcServer, service)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return &GracefulServer{
		grpcServer: grpcServer,
		health:     healthServer,
		logger:     service.logger,
		address:    address,
	}
}

// Start listens on the configured address and blocks until ctx is cancelled.
// When ctx is cancelled, it performs graceful shutdown.
func (s *GracefulServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.ServeContext(ctx, lis)
}

// ServeContext serves on lis until ctx is cancelled or the server fails.
func (s *GracefulServer) ServeContext(ctx context.Context, lis net.Listener) error {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	s.logger.Info("grpc_server_started", "address", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(lis)
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("grpc_graceful_shutdown_initiated", "reason", ctx.Err().Error())
		s.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// GracefulStop stops accepting connections and waits for in-flight calls.
func (s *GracefulServer) GracefulStop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isShutdown {
		return
	}
	s.isShutdown = true

	s.logger.Info("grpc_graceful_stop_started")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.logger.Info("grpc_graceful_stop_completed")
}

// ShutdownWithTimeout performs graceful shutdown with a timeout.
// If shutdown doesn't complete within timeout, it forces an immediate stop.
func (s *GracefulServer) ShutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})

	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("grpc_graceful_shutdown_timeout", "timeout_ms", timeout.Milliseconds())
		s.grpcServer.Stop()
		<-done
	}
}

// Address returns the bound address once serving, otherwise the configured one.
func (s *GracefulServer) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}
