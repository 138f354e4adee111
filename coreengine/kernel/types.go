// Package kernel provides the interview kernel: the session state store,
// the continuation manager for the single UI-bound tool call, the phase
// transition controller and the workflow rules that turn domain events into
// objective updates.
//
// All session state lives in SessionStore behind one lock. Components publish
// events only after the mutation they describe is visible to readers.
package kernel

import (
	"context"
	"time"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
)

// =============================================================================
// Collaborators
// =============================================================================

// Logger is the logging capability injected into kernel components.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ArtifactPersister is the write side of the persistence collaborator.
type ArtifactPersister interface {
	Persist(ctx context.Context, recordType string, payload []byte) (string, error)
}

// PlanItemStatusUpdater advances knowledge-card plan items.
// Translators receive this capability instead of a reference to the whole store.
type PlanItemStatusUpdater interface {
	UpdatePlanItemStatus(ctx context.Context, itemID string, status interview.PlanItemStatus) error
}

// StoredRecord is a persisted record handed to Restore.
type StoredRecord struct {
	ID         string
	RecordType string
	Payload    []byte
	CreatedAt  time.Time
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is a consistent copy of session state for projections.
type Snapshot struct {
	Phase                interview.Phase             `json:"phase"`
	Objectives           []*interview.Objective      `json:"objectives"`
	PendingToolCall      *interview.PendingToolCall  `json:"pending_tool_call,omitempty"`
	PendingKnowledgeCard *interview.KnowledgeCard    `json:"pending_knowledge_card,omitempty"`
	Plan                 []interview.PlanItem        `json:"plan,omitempty"`
	EnabledSections      []string                    `json:"enabled_sections,omitempty"`
	Timeline             []*interview.TimelineEntry  `json:"timeline,omitempty"`
	Profile              *interview.ApplicantProfile `json:"profile,omitempty"`
	Artifacts            []*interview.ArtifactRecord `json:"artifacts,omitempty"`
	Messages             []*interview.Message        `json:"messages,omitempty"`
	IsProcessing         bool                        `json:"is_processing"`
	StatusMessage        string                      `json:"status_message,omitempty"`
	Waiting              interview.WaitingState      `json:"waiting,omitempty"`
	TakenAt              time.Time                   `json:"taken_at"`
}

// Objective returns the objective with id from the snapshot.
func (s *Snapshot) Objective(id string) *interview.Objective {
	for _, o := range s.Objectives {
		if o.ID == id {
			return o
		}
	}
	return nil
}
