package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/config"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/testutil"
)

// =============================================================================
// Test Harness
// =============================================================================

type harness struct {
	bus     *commbus.InMemoryEventBus
	kernel  *Kernel
	store   *SessionStore
	events  *testutil.EventRecorder
	logger  *testutil.CapturingLogger
	records *testutil.FakeArtifactStore
}

func newHarness(t *testing.T, script *config.PhaseScript, cfg *config.EngineConfig) *harness {
	t.Helper()

	logger := testutil.NewCapturingLogger()
	bus := commbus.NewInMemoryEventBus(logger)
	records := testutil.NewFakeArtifactStore()
	k := NewKernel(bus, script, cfg, records, logger)
	t.Cleanup(k.Close)

	return &harness{
		bus:     bus,
		kernel:  k,
		store:   k.Store(),
		events:  testutil.NewEventRecorder(bus),
		logger:  logger,
		records: records,
	}
}

// complete marks objectives completed in the given order.
func (h *harness) complete(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := h.store.SetObjectiveStatus(context.Background(), id, interview.ObjectiveCompleted, "test", "")
		require.NoError(t, err, id)
	}
}

const singleObjectiveScript = `phases:
  - phase: core_facts
    objectives:
      - id: profile
        required: true
    tools: [next_phase]
  - phase: deep_dive
    objectives:
      - id: interviews
        required: true
      - id: extras
        required: false
    tools: [next_phase]
  - phase: evidence_collection
    objectives: []
    tools: [next_phase]
  - phase: strategic_synthesis
    objectives: []
    tools: [next_phase]
  - phase: complete
    objectives: []
`

func singleObjective(t *testing.T) *config.PhaseScript {
	t.Helper()
	script, err := config.PhaseScriptFromYAML([]byte(singleObjectiveScript))
	require.NoError(t, err)
	return script
}

// =============================================================================
// Kernel Tests
// =============================================================================

func TestNewKernelDefaults(t *testing.T) {
	h := newHarness(t, nil, nil)

	assert.Equal(t, interview.PhaseCoreFacts, h.store.Phase())
	assert.NotNil(t, h.kernel.Config())
	assert.NotNil(t, h.kernel.Script())
	assert.Same(t, h.store, h.kernel.Store())
	assert.NotNil(t, h.kernel.Continuations())
	assert.NotNil(t, h.kernel.Phases())

	// workflow, phase handler, recorder
	assert.Equal(t, 3, h.bus.SubscriberCount())
}

func TestKernelCloseUnsubscribes(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.kernel.Close()
	h.kernel.Close()
	assert.Equal(t, 1, h.bus.SubscriberCount())

	require.NoError(t, h.bus.Publish(context.Background(), &commbus.ApplicantProfileStored{
		Profile: &interview.ApplicantProfile{Name: "Sam"},
	}))
	status, _ := h.store.ObjectiveStatus(interview.ObjectiveApplicantProfile)
	assert.Equal(t, interview.ObjectivePending, status)
}

func TestKernelSnapshot(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.complete(t, interview.ObjectiveApplicantProfile)

	snap := h.kernel.Snapshot()
	assert.Equal(t, interview.PhaseCoreFacts, snap.Phase)
	require.NotNil(t, snap.Objective(interview.ObjectiveApplicantProfile))
	assert.Equal(t, interview.ObjectiveCompleted, snap.Objective(interview.ObjectiveApplicantProfile).Status)
	assert.Nil(t, snap.Objective("missing"))
}

// =============================================================================
// Example Scenarios
// =============================================================================

func TestScenarioA_CompleteObjectiveThenAdvance(t *testing.T) {
	h := newHarness(t, singleObjective(t), nil)
	ctx := context.Background()

	changed, err := h.store.SetObjectiveStatus(ctx, "profile", interview.ObjectiveCompleted, "test", "")
	require.NoError(t, err)
	assert.True(t, changed)

	assert.True(t, h.kernel.Phases().CanAdvance())
	require.NoError(t, h.kernel.Phases().RequestTransition(ctx, interview.PhaseCoreFacts, interview.PhaseDeepDive, "profile done", false))

	applied := testutil.EventsOf[*commbus.PhaseTransitionApplied](h.events)
	require.Len(t, applied, 1)
	assert.Equal(t, interview.PhaseDeepDive, applied[0].To)
	assert.Equal(t, interview.PhaseDeepDive, h.store.Phase())
}

func TestScenarioB_CompletePendingCall(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	h.store.StorePendingToolCall("call-1", "submit_for_validation", "Waiting")
	err := h.kernel.Continuations().Complete(ctx, interview.NewToolOutput(interview.ToolStatusCompleted, "ok", nil), "")
	require.NoError(t, err)

	assert.Nil(t, h.store.PendingToolCall())
	completed := testutil.EventsOf[*commbus.ToolCallCompleted](h.events)
	require.Len(t, completed, 1)
	assert.Equal(t, "call-1", completed[0].CallID)
}

func TestScenarioC_UnknownObjectiveIsIgnored(t *testing.T) {
	h := newHarness(t, nil, nil)
	before := len(h.store.Objectives())

	changed, err := h.store.SetObjectiveStatus(context.Background(), "unknown_id", interview.ObjectiveCompleted, "test", "")

	assert.False(t, changed)
	assert.ErrorIs(t, err, interview.ErrUnknownObjective)
	assert.Len(t, h.store.Objectives(), before)
	assert.True(t, h.logger.Has("debug", "objective_update_ignored"))
	assert.Zero(t, h.events.Count(commbus.TypeObjectiveStatusChanged))
}
