// Package interview defines the data model shared by the interview engine:
// phases, objectives, transcript messages, artifact records, the tool-call
// protocol exchanged with the model transport, and the UI prompt variants.
//
// Every type here is a plain value. Ownership and mutation rules live in the
// kernel package; this package only describes shapes and invariants that can
// be checked locally (ordering, status vocabulary, required fields).
package interview

import (
	"fmt"
)

// =============================================================================
// Phase
// =============================================================================

// Phase is one ordered stage of the interview state machine.
//
// Phase order:
//
//	core_facts -> deep_dive -> evidence_collection -> strategic_synthesis -> complete
//
// Transitions only move forward; a phase is never revisited.
type Phase string

const (
	// PhaseCoreFacts collects the applicant profile, the skeleton timeline and section choices.
	PhaseCoreFacts Phase = "core_facts"
	// PhaseDeepDive interviews the user about each role and produces knowledge cards.
	PhaseDeepDive Phase = "deep_dive"
	// PhaseEvidenceCollection gathers supporting documents and writing samples.
	PhaseEvidenceCollection Phase = "evidence_collection"
	// PhaseStrategicSynthesis assembles the candidate dossier and positioning summary.
	PhaseStrategicSynthesis Phase = "strategic_synthesis"
	// PhaseComplete is terminal.
	PhaseComplete Phase = "complete"
)

// phaseOrder is the canonical ordering. Ordinal positions are indexes into it.
var phaseOrder = []Phase{
	PhaseCoreFacts,
	PhaseDeepDive,
	PhaseEvidenceCollection,
	PhaseStrategicSynthesis,
	PhaseComplete,
}

// AllPhases returns the phases in order.
func AllPhases() []Phase {
	result := make([]Phase, len(phaseOrder))
	copy(result, phaseOrder)
	return result
}

// Ordinal returns the zero-based position of the phase, or -1 if unknown.
func (p Phase) Ordinal() int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// IsValid reports whether p is one of the known phases.
func (p Phase) IsValid() bool {
	return p.Ordinal() >= 0
}

// IsTerminal reports whether p is the final phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete
}

// Next returns the phase after p. The terminal phase (and unknown phases)
// return themselves and false.
func (p Phase) Next() (Phase, bool) {
	idx := p.Ordinal()
	if idx < 0 || idx >= len(phaseOrder)-1 {
		return p, false
	}
	return phaseOrder[idx+1], true
}

// Before reports whether p comes strictly before other.
func (p Phase) Before(other Phase) bool {
	a, b := p.Ordinal(), other.Ordinal()
	return a >= 0 && b >= 0 && a < b
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	return string(p)
}

// ParsePhase converts a string to a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.IsValid() {
		return "", fmt.Errorf("unknown phase: %q", s)
	}
	return p, nil
}
