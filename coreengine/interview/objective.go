package interview

import (
	"fmt"
	"time"
)

// ObjectiveStatus is the lifecycle status of an objective.
type ObjectiveStatus string

const (
	ObjectivePending    ObjectiveStatus = "pending"
	ObjectiveInProgress ObjectiveStatus = "in_progress"
	ObjectiveCompleted  ObjectiveStatus = "completed"
	ObjectiveSkipped    ObjectiveStatus = "skipped"
)

// IsSatisfied reports whether the status lets a phase be exited.
func (s ObjectiveStatus) IsSatisfied() bool {
	return s == ObjectiveCompleted || s == ObjectiveSkipped
}

// IsValid reports whether s is in the status vocabulary.
func (s ObjectiveStatus) IsValid() bool {
	switch s {
	case ObjectivePending, ObjectiveInProgress, ObjectiveCompleted, ObjectiveSkipped:
		return true
	}
	return false
}

// ParseObjectiveStatus converts a string to an ObjectiveStatus.
func ParseObjectiveStatus(s string) (ObjectiveStatus, error) {
	status := ObjectiveStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown objective status: %q", s)
	}
	return status, nil
}

// Stable objective identifiers used by the default phase script.
const (
	ObjectiveApplicantProfile       = "applicant_profile"
	ObjectiveSkeletonTimeline       = "skeleton_timeline"
	ObjectiveTimelineEditsConfirmed = "timeline_edits_confirmed"
	ObjectiveEnabledSections        = "enabled_sections"
	ObjectiveExperienceInterviews   = "experience_interviews"
	ObjectiveKnowledgeCardPlan      = "knowledge_card_plan"
	ObjectiveKnowledgeCards         = "knowledge_cards"
	ObjectiveEvidenceDocuments      = "evidence_documents"
	ObjectiveWritingSamples         = "writing_samples"
	ObjectiveCandidateDossier       = "candidate_dossier"
	ObjectiveStrategicSummary       = "strategic_summary"
)

// ObjectiveDefinition declares an objective for a phase.
type ObjectiveDefinition struct {
	ID        string   `json:"id" yaml:"id"`
	Label     string   `json:"label,omitempty" yaml:"label,omitempty"`
	Required  bool     `json:"required" yaml:"required"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// Objective is a trackable sub-goal of a phase.
// Objectives are never deleted, only transitioned.
type Objective struct {
	ID        string          `json:"id"`
	Phase     Phase           `json:"phase"`
	Label     string          `json:"label,omitempty"`
	Status    ObjectiveStatus `json:"status"`
	Required  bool            `json:"required"`
	DependsOn []string        `json:"depends_on,omitempty"`
	Source    string          `json:"source,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Clone returns a copy safe to hand out of the store.
func (o *Objective) Clone() *Objective {
	if o == nil {
		return nil
	}
	c := *o
	if o.DependsOn != nil {
		c.DependsOn = append([]string(nil), o.DependsOn...)
	}
	return &c
}
