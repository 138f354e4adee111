package tools

import (
	"sort"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/config"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
)

// AllowedTools returns the phase's base tools plus every tool whose unlock
// rule is satisfied by statuses, sorted and without duplicates.
func AllowedTools(script *config.PhaseScript, phase interview.Phase, statuses map[string]interview.ObjectiveStatus) []string {
	def := script.Phase(phase)
	if def == nil {
		return []string{}
	}

	seen := make(map[string]bool, len(def.Tools)+len(def.Unlocks))
	allowed := make([]string, 0, len(def.Tools)+len(def.Unlocks))
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			allowed = append(allowed, name)
		}
	}

	for _, name := range def.Tools {
		add(name)
	}
	for _, rule := range def.Unlocks {
		if unlocked(rule, statuses[rule.WhenObjective]) {
			add(rule.Tool)
		}
	}
	sort.Strings(allowed)
	return allowed
}

// unlocked reports whether status meets the rule. Reaching a later status
// counts, except that a skipped objective never unlocks anything.
func unlocked(rule config.ToolUnlock, status interview.ObjectiveStatus) bool {
	switch rule.RequiredStatus() {
	case interview.ObjectivePending:
		return status != ""
	case interview.ObjectiveInProgress:
		return status == interview.ObjectiveInProgress || status == interview.ObjectiveCompleted
	default:
		return status == interview.ObjectiveCompleted
	}
}
