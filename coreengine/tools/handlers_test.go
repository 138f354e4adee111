package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/testutil"
)

func lastPrompt[T interview.Prompt](t *testing.T, h *harness) T {
	t.Helper()
	requested, ok := testutil.LastOf[*commbus.ToolPromptRequested](h.events)
	require.True(t, ok, "no prompt requested")
	prompt, ok := requested.Prompt.(T)
	require.True(t, ok, "unexpected prompt %T", requested.Prompt)
	return prompt
}

func TestNextPhase(t *testing.T) {
	t.Run("asks for approval when objectives are open", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.complete(t, interview.ObjectiveApplicantProfile)

		resp := h.call(t, ToolNextPhase, map[string]any{"reason": "user is in a hurry"})

		assert.Nil(t, resp)
		prompt := lastPrompt[*interview.PhaseAdvancePrompt](t, h)
		assert.Equal(t, interview.PhaseCoreFacts, prompt.From)
		assert.Equal(t, interview.PhaseDeepDive, prompt.To)
		assert.Equal(t, []string{interview.ObjectiveSkeletonTimeline, interview.ObjectiveEnabledSections}, prompt.Missing)
		assert.Equal(t, interview.WaitingPhaseApproval, h.store.Waiting())
		assert.Equal(t, interview.PhaseCoreFacts, h.store.Phase())
	})

	t.Run("advances when satisfied", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.complete(t,
			interview.ObjectiveApplicantProfile,
			interview.ObjectiveSkeletonTimeline,
			interview.ObjectiveEnabledSections,
		)

		resp := h.call(t, ToolNextPhase, nil)

		require.NotNil(t, resp)
		assert.Equal(t, interview.ToolStatusPhaseAdvanced, resp.Output.Status)
		assert.Equal(t, "deep_dive", resp.Output.Auxiliary["to"])
		assert.Contains(t, resp.Instruction, "deep_dive")
		assert.Equal(t, interview.PhaseDeepDive, h.store.Phase())
		assert.Nil(t, h.store.PendingToolCall())
	})
}

func TestSubmitForValidation(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.complete(t, interview.ObjectiveTimelineEditsConfirmed)

	resp := h.call(t, ToolSubmitForValidation, map[string]any{
		"data_type": interview.ObjectiveSkeletonTimeline,
		"summary":   "Is this your timeline?",
	})
	requireRejected(t, resp, "the timeline is empty")

	h.call(t, ToolCreateTimelineCard, map[string]any{"title": "Engineer"})
	resp = h.call(t, ToolSubmitForValidation, map[string]any{
		"data_type": interview.ObjectiveSkeletonTimeline,
		"summary":   "Is this your timeline?",
	})

	assert.Nil(t, resp)
	prompt := lastPrompt[*interview.ValidationPrompt](t, h)
	assert.Equal(t, interview.ObjectiveSkeletonTimeline, prompt.DataType)
	entries, ok := prompt.Payload["entries"].([]*interview.TimelineEntry)
	require.True(t, ok)
	assert.Len(t, entries, 1)
	assert.Equal(t, interview.WaitingValidation, h.store.Waiting())
}

func TestGetApplicantProfilePrefill(t *testing.T) {
	h := newHarness(t, nil, nil)

	assert.Nil(t, h.call(t, ToolGetApplicantProfile, map[string]any{
		"prefill": map[string]any{"name": "Sam Lee", "email": "sam@example.com"},
	}))

	prompt := lastPrompt[*interview.ProfileIntakePrompt](t, h)
	require.NotNil(t, prompt.Prefill)
	assert.Equal(t, "Sam Lee", prompt.Prefill.Name)
	assert.Equal(t, interview.WaitingIntake, h.store.Waiting())
}

func TestConfigureEnabledSections(t *testing.T) {
	h := newHarness(t, nil, nil)

	resp := h.call(t, ToolConfigureEnabledSections, map[string]any{"proposed": []any{"experience", "hobbies"}})
	requireRejected(t, resp, `proposed section "hobbies" is not available`)

	assert.Nil(t, h.call(t, ToolConfigureEnabledSections, map[string]any{"proposed": []any{"experience", "skills"}}))
	prompt := lastPrompt[*interview.SectionTogglePrompt](t, h)
	assert.Equal(t, []string{"experience", "skills"}, prompt.Proposed)
	assert.Equal(t, DefaultSections, prompt.Available)
}

func TestKnowledgeCardTools(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.force(t, interview.PhaseDeepDive)

	resp := h.call(t, ToolDisplayKnowledgeCardPlan, map[string]any{"items": []any{
		map[string]any{"id": "p1", "title": "Acme"},
		map[string]any{"id": "p2", "title": "Globex", "status": "skipped"},
	}})
	require.NotNil(t, resp)
	assert.Equal(t, interview.ToolStatusCompleted, resp.Output.Status)
	plan := h.store.Plan()
	require.Len(t, plan, 2)
	assert.Equal(t, interview.PlanItemPending, plan[0].Status)
	assert.Equal(t, interview.PlanItemSkipped, plan[1].Status)

	// the approved plan unlocks card submission
	assert.Contains(t, h.router.AllowedTools(), ToolSubmitKnowledgeCard)

	resp = h.call(t, ToolSubmitKnowledgeCard, map[string]any{
		"card": map[string]any{"title": "Acme", "plan_item_id": "p9"},
	})
	requireRejected(t, resp, `plan item "p9" is not in the knowledge card plan`)

	resp = h.call(t, ToolSubmitKnowledgeCard, map[string]any{
		"card": map[string]any{"title": "Acme", "plan_item_id": "p1", "skills": []any{"Go"}},
	})
	assert.Nil(t, resp)

	staged := h.store.PendingKnowledgeCard()
	require.NotNil(t, staged)
	assert.NotEmpty(t, staged.ID)
	assert.Equal(t, []string{"Go"}, staged.Skills)

	prompt := lastPrompt[*interview.KnowledgeCardReviewPrompt](t, h)
	assert.Equal(t, staged.ID, prompt.Card.ID)

	types := h.events.Types()
	pendingAt := indexOf(types, commbus.TypeKnowledgeCardSubmissionPending)
	promptAt := indexOf(types, commbus.TypeToolPromptRequested)
	assert.True(t, pendingAt >= 0 && pendingAt < promptAt, "card is staged before the prompt opens")
}

func TestDispatchSeesEffectsWhileAnotherGoroutineDelivers(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.force(t, interview.PhaseDeepDive)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	h.bus.Subscribe(func(ctx context.Context, e commbus.Event) error {
		if s, ok := e.(*commbus.SnapshotUpdated); ok && s.Reason == "hold" {
			close(entered)
			<-release
		}
		return nil
	})
	held := make(chan error, 1)
	go func() { held <- h.bus.Publish(ctx, &commbus.SnapshotUpdated{Reason: "hold"}) }()
	<-entered
	time.AfterFunc(50*time.Millisecond, func() { close(release) })

	resp := h.call(t, ToolDisplayKnowledgeCardPlan, map[string]any{"items": []any{
		map[string]any{"id": "p1", "title": "Acme"},
	}})
	require.NotNil(t, resp)
	assert.Equal(t, interview.ToolStatusCompleted, resp.Output.Status)
	status, _ := h.store.ObjectiveStatus(interview.ObjectiveKnowledgeCardPlan)
	assert.Equal(t, interview.ObjectiveCompleted, status)

	resp = h.call(t, ToolSubmitKnowledgeCard, map[string]any{
		"card": map[string]any{"title": "Acme", "plan_item_id": "p1"},
	})
	assert.Nil(t, resp, "card submission waits on review")
	require.NoError(t, <-held)
}

func TestTimelineTools(t *testing.T) {
	h := newHarness(t, nil, nil)

	resp := h.call(t, ToolCreateTimelineCard, map[string]any{"id": "t1", "title": "Engineer", "organization": "Acme"})
	require.Equal(t, interview.ToolStatusCompleted, resp.Output.Status)

	resp = h.call(t, ToolCreateTimelineCard, map[string]any{"id": "t1", "title": "Duplicate"})
	requireRejected(t, resp, "already exists")

	resp = h.call(t, ToolUpdateTimelineCard, map[string]any{"id": "t1", "title": "Senior Engineer"})
	require.Equal(t, interview.ToolStatusCompleted, resp.Output.Status)
	entries := h.store.TimelineEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Senior Engineer", entries[0].Title)
	assert.Equal(t, "Acme", entries[0].Organization, "fields not named keep their value")

	requireRejected(t, h.call(t, ToolUpdateTimelineCard, map[string]any{"id": "t9"}), "no timeline card")

	resp = h.call(t, ToolDeleteTimelineCard, map[string]any{"id": "t1"})
	require.Equal(t, interview.ToolStatusCompleted, resp.Output.Status)
	assert.Empty(t, h.store.TimelineEntries())
	requireRejected(t, h.call(t, ToolDeleteTimelineCard, map[string]any{"id": "t1"}), "not found")

	assert.Equal(t, 1, h.events.Count(commbus.TypeTimelineCardCreated))
	assert.Equal(t, 1, h.events.Count(commbus.TypeTimelineCardUpdated))
	assert.Equal(t, 1, h.events.Count(commbus.TypeTimelineCardDeleted))
}

func TestEvidenceTools(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.force(t, interview.PhaseEvidenceCollection)

	resp := h.call(t, ToolCreatePublicationCard, map[string]any{
		"title": "Scaling Interviews", "venue": "GopherCon", "year": 2024.0, "authors": []any{"Sam Lee"},
	})
	require.Equal(t, interview.ToolStatusCompleted, resp.Output.Status)
	assert.Equal(t, true, resp.Output.Auxiliary["persisted"])

	added, ok := testutil.LastOf[*commbus.PublicationCardAdded](h.events)
	require.True(t, ok)
	assert.Equal(t, 2024, added.Card.Year)
	assert.Len(t, h.records.Records(interview.RecordTypePublicationCard), 1)

	status, _ := h.store.ObjectiveStatus(interview.ObjectiveEvidenceDocuments)
	assert.Equal(t, interview.ObjectiveInProgress, status)

	resp = h.call(t, ToolListArtifacts, map[string]any{"record_type": interview.RecordTypePublicationCard})
	assert.Equal(t, 1, resp.Output.Auxiliary["count"])
}

func TestPersistData(t *testing.T) {
	t.Run("dossier completes its objective", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.force(t, interview.PhaseStrategicSynthesis)

		resp := h.call(t, ToolPersistData, map[string]any{
			"data_type": interview.ObjectiveCandidateDossier,
			"data":      map[string]any{"headline": "Builder of teams"},
		})

		require.Equal(t, interview.ToolStatusCompleted, resp.Output.Status)
		assert.NotEmpty(t, resp.Output.Auxiliary["record_id"])
		status, _ := h.store.ObjectiveStatus(interview.ObjectiveCandidateDossier)
		assert.Equal(t, interview.ObjectiveCompleted, status)
		assert.Len(t, h.records.Records(interview.ObjectiveCandidateDossier), 1)
	})

	t.Run("persistence failure keeps the record", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.records.WithPersistError(errors.New("disk full"))
		h.force(t, interview.PhaseStrategicSynthesis)

		resp := h.call(t, ToolPersistData, map[string]any{
			"data_type": interview.ObjectiveCandidateDossier,
			"data":      map[string]any{"headline": "Builder of teams"},
		})

		require.Equal(t, interview.ToolStatusCompleted, resp.Output.Status)
		assert.Equal(t, false, resp.Output.Auxiliary["persisted"])
		assert.Contains(t, resp.Output.Message, "could not be saved")
		assert.Len(t, h.store.Artifacts(interview.ObjectiveCandidateDossier), 1)
		assert.Equal(t, 1, h.events.Count(commbus.TypeArtifactPersistFailed))
	})

	t.Run("typed record is validated", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		h.force(t, interview.PhaseEvidenceCollection)

		resp := h.call(t, ToolPersistData, map[string]any{
			"data_type": interview.RecordTypeKnowledgeCard,
			"data":      map[string]any{"summary": "no id or title"},
		})
		requireRejected(t, resp, "knowledge card: id is required")
	})
}

func TestSetObjectiveStatusTool(t *testing.T) {
	h := newHarness(t, nil, nil)

	requireRejected(t, h.call(t, ToolSetObjectiveStatus, map[string]any{
		"objective_id": interview.ObjectiveKnowledgeCards, "status": "completed",
	}), "is not part of the core_facts phase")

	requireRejected(t, h.call(t, ToolSetObjectiveStatus, map[string]any{
		"objective_id": interview.ObjectiveEnabledSections, "status": "completed",
	}), "dependencies")

	resp := h.call(t, ToolSetObjectiveStatus, map[string]any{
		"objective_id": interview.ObjectiveApplicantProfile, "status": "completed", "notes": "confirmed in chat",
	})
	require.Equal(t, interview.ToolStatusCompleted, resp.Output.Status)
	assert.Equal(t, true, resp.Output.Auxiliary["changed"])

	changed, ok := testutil.LastOf[*commbus.ObjectiveStatusChanged](h.events)
	require.True(t, ok)
	assert.Equal(t, ObjectiveSourceModel, changed.Source)
	assert.Equal(t, "confirmed in chat", changed.Notes)

	resp = h.call(t, ToolSetObjectiveStatus, map[string]any{
		"objective_id": interview.ObjectiveApplicantProfile, "status": "completed",
	})
	assert.Equal(t, false, resp.Output.Auxiliary["changed"])
	assert.Contains(t, resp.Output.Message, "already")
}

func TestPromptToolsSetWaitingState(t *testing.T) {
	tests := []struct {
		tool string
		args map[string]any
		want interview.WaitingState
	}{
		{ToolGetUserUpload, map[string]any{"prompt": "Resume please"}, interview.WaitingUpload},
		{ToolGetUserOption, map[string]any{"question": "?", "options": []any{map[string]any{"id": "a", "label": "A"}}}, interview.WaitingSelection},
		{ToolGetApplicantProfile, nil, interview.WaitingIntake},
		{ToolConfigureEnabledSections, map[string]any{"proposed": []any{"skills"}}, interview.WaitingSections},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			h := newHarness(t, nil, nil)

			assert.Nil(t, h.call(t, tt.tool, tt.args))
			assert.Equal(t, tt.want, h.store.Waiting())
			assert.Equal(t, tt.tool, h.store.PendingToolCall().ToolName)
		})
	}
}

func indexOf(list []string, item string) int {
	for i, v := range list {
		if v == item {
			return i
		}
	}
	return -1
}
