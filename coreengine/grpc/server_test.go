package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/actions"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/persistence"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/runtime"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/testutil"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/tools"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	engine *runtime.Engine
	client *Client
	events *testutil.EventRecorder
	logger *testutil.CapturingLogger
	stop   func()
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	logger := testutil.NewCapturingLogger()
	eng, err := runtime.NewEngine(runtime.Options{Store: persistence.NewMemoryStore(), Logger: logger})
	require.NoError(t, err)
	events := testutil.NewEventRecorder(eng.Bus())

	lis := bufconn.Listen(1 << 20)
	srv := NewGracefulServer(NewInterviewServer(eng, logger), "bufconn")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeContext(ctx, lis) }()

	client, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			client.Close()
			cancel()
			require.NoError(t, <-done)
			eng.Close()
		})
	}
	t.Cleanup(stop)

	return &testServer{engine: eng, client: client, events: events, logger: logger, stop: stop}
}

func requireCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok, "not a status error: %v", err)
	assert.Equal(t, code, st.Code(), st.Message())
}

func choiceArgs() interview.Arguments {
	return interview.Arguments{
		"question": "Where did you work last?",
		"options": []any{
			map[string]any{"id": "acme", "label": "Acme Corp"},
			map[string]any{"id": "globex", "label": "Globex"},
		},
	}
}

// =============================================================================
// MODEL TRANSPORT
// =============================================================================

func TestSubmitToolCallImmediate(t *testing.T) {
	ts := startServer(t)

	resp, err := ts.client.SubmitToolCall(context.Background(), interview.ToolCallRequest{
		CallID: "c1", ToolName: tools.ToolListArtifacts,
	})

	require.NoError(t, err)
	assert.False(t, resp.Pending)
	require.NotNil(t, resp.Response)
	assert.Equal(t, "c1", resp.Response.CallID)
	assert.Equal(t, interview.ToolStatusCompleted, resp.Response.Output.Status)
	assert.Equal(t, float64(0), resp.Response.Output.Auxiliary["count"])
}

func TestSubmitToolCallRequiresIdentifiers(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	_, err := ts.client.SubmitToolCall(ctx, interview.ToolCallRequest{ToolName: tools.ToolListArtifacts})
	requireCode(t, err, codes.InvalidArgument)

	_, err = ts.client.SubmitToolCall(ctx, interview.ToolCallRequest{CallID: "c1"})
	requireCode(t, err, codes.InvalidArgument)
}

func TestPendingToolCallResolvedByPrompt(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	resp, err := ts.client.SubmitToolCall(ctx, interview.ToolCallRequest{
		CallID: "c1", ToolName: tools.ToolGetUserOption, Arguments: choiceArgs(),
	})
	require.NoError(t, err)
	require.True(t, resp.Pending)
	assert.Nil(t, resp.Response)

	snap, err := ts.client.GetSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.PendingToolCall)
	assert.Equal(t, "c1", snap.PendingToolCall.CallID)
	assert.Equal(t, interview.WaitingSelection, snap.Waiting)

	err = ts.client.ResolvePrompt(ctx, ResolvePromptRequest{
		Kind:    actions.KindSubmitChoice,
		CallID:  "c1",
		Payload: json.RawMessage(`{"selected":["acme"]}`),
	})
	require.NoError(t, err)

	completed, ok := testutil.LastOf[*commbus.ToolCallCompleted](ts.events)
	require.True(t, ok)
	assert.Equal(t, "c1", completed.CallID)
	assert.Contains(t, completed.Output.Message, "Acme Corp")

	snap, err = ts.client.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.PendingToolCall)
}

func TestSecondPromptWhilePending(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	_, err := ts.client.SubmitToolCall(ctx, interview.ToolCallRequest{
		CallID: "c1", ToolName: tools.ToolGetUserOption, Arguments: choiceArgs(),
	})
	require.NoError(t, err)

	resp, err := ts.client.SubmitToolCall(ctx, interview.ToolCallRequest{
		CallID: "c2", ToolName: tools.ToolGetUserOption, Arguments: choiceArgs(),
	})
	require.NoError(t, err)
	assert.False(t, resp.Pending)
	require.NotNil(t, resp.Response)
	assert.Equal(t, interview.ToolStatusRejected, resp.Response.Output.Status)

	snap, err := ts.client.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c1", snap.PendingToolCall.CallID)
}

// =============================================================================
// UI ACTIONS
// =============================================================================

func TestResolvePromptErrors(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	requireCode(t, ts.client.ResolvePrompt(ctx, ResolvePromptRequest{CallID: "c1"}), codes.InvalidArgument)
	requireCode(t, ts.client.ResolvePrompt(ctx, ResolvePromptRequest{Kind: "dance"}), codes.InvalidArgument)

	// nothing is pending, so a stale action is dropped quietly
	require.NoError(t, ts.client.ResolvePrompt(ctx, ResolvePromptRequest{
		Kind: actions.KindCancelChoice, CallID: "gone",
	}))
}

func TestSubmitChat(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	id, err := ts.client.SubmitChat(ctx, "I was a data analyst")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	sent, ok := testutil.LastOf[*commbus.UserMessageSent](ts.events)
	require.True(t, ok)
	assert.Equal(t, id, sent.MessageID)

	snap, err := ts.client.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.IsProcessing)

	_, err = ts.client.SubmitChat(ctx, "")
	requireCode(t, err, codes.InvalidArgument)
}

func TestRequestPhaseAdvance(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	_, err := ts.client.RequestPhaseAdvance(ctx, PhaseAdvanceRequest{Reason: "ready"})
	requireCode(t, err, codes.FailedPrecondition)

	resp, err := ts.client.RequestPhaseAdvance(ctx, PhaseAdvanceRequest{Force: true})
	require.NoError(t, err)
	assert.Equal(t, interview.PhaseDeepDive, resp.Phase)

	applied, ok := testutil.LastOf[*commbus.PhaseTransitionApplied](ts.events)
	require.True(t, ok)
	assert.True(t, applied.Forced)
}

func TestHealth(t *testing.T) {
	ts := startServer(t)

	require.NoError(t, ts.client.CheckHealth(context.Background()))
}

func TestGetSnapshot(t *testing.T) {
	ts := startServer(t)

	snap, err := ts.client.GetSnapshot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, interview.PhaseCoreFacts, snap.Phase)
	assert.NotEmpty(t, snap.Objectives)
	assert.Contains(t, snap.AllowedTools, tools.ToolGetApplicantProfile)
	assert.False(t, snap.IsProcessing)

	var state map[string]any
	require.NoError(t, json.Unmarshal(snap.State, &state))
	assert.Equal(t, string(interview.PhaseCoreFacts), state["phase"])
}

// =============================================================================
// EVENT STREAM
// =============================================================================

var errEnough = errors.New("enough")

func TestStreamEventsFiltersCategories(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ts := startServer(t)
	bus := ts.engine.Bus().(*commbus.InMemoryEventBus)
	before := bus.SubscriberCount()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var received []*EventEnvelope
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- ts.client.StreamEvents(ctx, StreamEventsRequest{
			Categories: []commbus.Category{commbus.CategoryTool},
		}, func(env *EventEnvelope) error {
			received = append(received, env)
			if env.Type == commbus.TypeToolCallCompleted {
				return errEnough
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return bus.SubscriberCount() > before },
		2*time.Second, 5*time.Millisecond, "stream never subscribed")

	_, err := ts.client.SubmitChat(context.Background(), "hello")
	require.NoError(t, err)
	_, err = ts.client.SubmitToolCall(context.Background(), interview.ToolCallRequest{
		CallID: "c9", ToolName: tools.ToolListArtifacts,
	})
	require.NoError(t, err)

	require.ErrorIs(t, <-streamErr, errEnough)
	require.NotEmpty(t, received)
	for _, env := range received {
		assert.Equal(t, commbus.CategoryTool, env.Category, env.Type)
	}

	var completed commbus.ToolCallCompleted
	require.NoError(t, json.Unmarshal(received[len(received)-1].Payload, &completed))
	assert.Equal(t, "c9", completed.CallID)

	cancel()
	ts.stop()
	assert.True(t, ts.logger.Has("info", "event_stream_closed"))
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// blockingStream holds the first Send until release is closed.
type blockingStream struct {
	ctx     context.Context
	sending chan struct{}
	release chan struct{}
	once    sync.Once
	sent    int
}

func (s *blockingStream) Context() context.Context { return s.ctx }

func (s *blockingStream) Send(*EventEnvelope) error {
	s.once.Do(func() {
		close(s.sending)
		<-s.release
	})
	s.sent++
	return nil
}

func TestStreamEventsOverflowIsResourceExhausted(t *testing.T) {
	logger := testutil.NewCapturingLogger()
	eng, err := runtime.NewEngine(runtime.Options{Logger: logger})
	require.NoError(t, err)
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := &blockingStream{ctx: ctx, sending: make(chan struct{}), release: make(chan struct{})}
	srv := NewInterviewServer(eng, logger, WithStreamBuffer(1))

	bus := eng.Bus().(*commbus.InMemoryEventBus)
	before := bus.SubscriberCount()
	done := make(chan error, 1)
	go func() { done <- srv.StreamEvents(&StreamEventsRequest{}, stream) }()
	require.Eventually(t, func() bool { return bus.SubscriberCount() > before }, time.Second, 5*time.Millisecond)

	// first event parks the stream in Send, the next fills the buffer, the third overflows
	require.NoError(t, bus.Publish(ctx, &commbus.SnapshotUpdated{Reason: "first"}))
	<-stream.sending
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(ctx, &commbus.SnapshotUpdated{Reason: "more"}))
	}
	close(stream.release)

	select {
	case err := <-done:
		requireCode(t, err, codes.ResourceExhausted)
	case <-time.After(time.Second):
		t.Fatal("stream did not end")
	}
	assert.Equal(t, 2, stream.sent)
	assert.True(t, logger.Has("warn", "event_stream_overflow"))
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"transition", interview.NewInvalidPhaseTransitionError(interview.PhaseCoreFacts, interview.PhaseDeepDive, "missing"), codes.FailedPrecondition},
		{"stale", fmt.Errorf("complete: %w", interview.ErrStaleContinuation), codes.FailedPrecondition},
		{"busy", interview.ErrPromptAlreadyPending, codes.FailedPrecondition},
		{"dependency", interview.ErrObjectiveDependency, codes.FailedPrecondition},
		{"unknown objective", interview.ErrUnknownObjective, codes.NotFound},
		{"cancelled", context.Canceled, codes.Canceled},
		{"deadline", fmt.Errorf("restore: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{"plain", errors.New("only one option may be selected"), codes.InvalidArgument},
		{"status passthrough", status.Error(codes.Aborted, "aborted"), codes.Aborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := toStatus("op", tt.err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}

	assert.NoError(t, toStatus("op", nil))
}
