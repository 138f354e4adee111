package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/config"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
)

func TestAllowedToolsUnlockRules(t *testing.T) {
	script := config.DefaultPhaseScript()

	tests := []struct {
		name     string
		phase    interview.Phase
		statuses map[string]interview.ObjectiveStatus
		want     bool
	}{
		{"locked while pending", interview.PhaseCoreFacts,
			map[string]interview.ObjectiveStatus{interview.ObjectiveTimelineEditsConfirmed: interview.ObjectivePending}, false},
		{"locked while in progress", interview.PhaseCoreFacts,
			map[string]interview.ObjectiveStatus{interview.ObjectiveTimelineEditsConfirmed: interview.ObjectiveInProgress}, false},
		{"skipped never unlocks", interview.PhaseCoreFacts,
			map[string]interview.ObjectiveStatus{interview.ObjectiveTimelineEditsConfirmed: interview.ObjectiveSkipped}, false},
		{"unlocked when completed", interview.PhaseCoreFacts,
			map[string]interview.ObjectiveStatus{interview.ObjectiveTimelineEditsConfirmed: interview.ObjectiveCompleted}, true},
		{"base tool in later phase", interview.PhaseEvidenceCollection, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed := AllowedTools(script, tt.phase, tt.statuses)
			assert.Equal(t, tt.want, contains(allowed, ToolSubmitForValidation))
			assert.True(t, contains(allowed, ToolNextPhase))
			assert.IsIncreasing(t, allowed)
		})
	}
}

func TestAllowedToolsTerminalPhase(t *testing.T) {
	assert.Empty(t, AllowedTools(config.DefaultPhaseScript(), interview.PhaseComplete, nil))
	assert.Empty(t, AllowedTools(config.DefaultPhaseScript(), "bonus_round", nil))
}

func TestUnlockedByRequiredStatus(t *testing.T) {
	inProgress := config.ToolUnlock{Tool: "t", WhenObjective: "o", Status: interview.ObjectiveInProgress}
	assert.False(t, unlocked(inProgress, interview.ObjectivePending))
	assert.True(t, unlocked(inProgress, interview.ObjectiveInProgress))
	assert.True(t, unlocked(inProgress, interview.ObjectiveCompleted))
	assert.False(t, unlocked(inProgress, interview.ObjectiveSkipped))

	pending := config.ToolUnlock{Tool: "t", WhenObjective: "o", Status: interview.ObjectivePending}
	assert.True(t, unlocked(pending, interview.ObjectivePending))
	assert.False(t, unlocked(pending, ""), "unregistered objectives unlock nothing")
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
