package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
)

// Client calls an InterviewService. It does not own the connection unless
// it was created with Dial.
type Client struct {
	conn  grpc.ClientConnInterface
	owned *grpc.ClientConn
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial opens a plaintext connection to target. Extra options are appended
// after the defaults.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	defaults := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	conn, err := grpc.NewClient(target, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn, owned: conn}, nil
}

// Close releases a connection opened by Dial.
func (c *Client) Close() error {
	if c.owned == nil {
		return nil
	}
	return c.owned.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, method, in, out, grpc.CallContentSubtype(CodecName))
}

// CheckHealth returns nil when the interview service reports SERVING.
func (c *Client) CheckHealth(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is %s", ServiceName, resp.GetStatus())
	}
	return nil
}

// SubmitToolCall sends one model tool call.
func (c *Client) SubmitToolCall(ctx context.Context, req interview.ToolCallRequest) (*SubmitToolCallResponse, error) {
	out := new(SubmitToolCallResponse)
	if err := c.invoke(ctx, MethodSubmitToolCall, &req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitChat sends a user chat message and returns its message id.
func (c *Client) SubmitChat(ctx context.Context, text string) (string, error) {
	out := new(SubmitChatResponse)
	if err := c.invoke(ctx, MethodSubmitChat, &SubmitChatRequest{Text: text}, out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

// ResolvePrompt applies a UI action.
func (c *Client) ResolvePrompt(ctx context.Context, req ResolvePromptRequest) error {
	return c.invoke(ctx, MethodResolvePrompt, &req, new(Ack))
}

// RequestPhaseAdvance asks the engine to leave the current phase.
func (c *Client) RequestPhaseAdvance(ctx context.Context, req PhaseAdvanceRequest) (*PhaseAdvanceResponse, error) {
	out := new(PhaseAdvanceResponse)
	if err := c.invoke(ctx, MethodRequestPhaseAdvance, &req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSnapshot fetches the current session summary.
func (c *Client) GetSnapshot(ctx context.Context) (*SnapshotResponse, error) {
	out := new(SnapshotResponse)
	if err := c.invoke(ctx, MethodGetSnapshot, &SnapshotRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// StreamEvents calls fn for every event until ctx is cancelled, the server
// ends the stream or fn returns an error. A clean end returns nil.
func (c *Client) StreamEvents(ctx context.Context, req StreamEventsRequest, fn func(*EventEnvelope) error) error {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], MethodStreamEvents, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		env := new(EventEnvelope)
		if err := stream.RecvMsg(env); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(env); err != nil {
			return err
		}
	}
}
