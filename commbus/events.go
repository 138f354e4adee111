// Package commbus provides the interview event definitions.
//
// Every event is an immutable struct with a stable type string of the form
// "<category>.<name>". Categories:
//   - processing: busy/waiting status changes and surfaced errors
//   - artifact: records produced and persisted, knowledge-card workflow
//   - llm: message lifecycle with the model transport
//   - state: objective status, allowed tools, snapshot refresh
//   - tool: tool calls requested and completed, UI prompts
//   - phase: transitions requested, applied and rejected
//   - timeline, sectionCard, publicationCard: content-specific UI sync
package commbus

import (
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
)

// =============================================================================
// EVENT CATEGORIES
// =============================================================================

// Category is the routing category of an event.
type Category string

const (
	CategoryProcessing      Category = "processing"
	CategoryArtifact        Category = "artifact"
	CategoryLLM             Category = "llm"
	CategoryState           Category = "state"
	CategoryTool            Category = "tool"
	CategoryPhase           Category = "phase"
	CategoryTimeline        Category = "timeline"
	CategorySectionCard     Category = "sectionCard"
	CategoryPublicationCard Category = "publicationCard"
)

// Event type strings.
const (
	TypeProcessingStateChanged = "processing.stateChanged"
	TypeWaitingStateChanged    = "processing.waitingStateChanged"
	TypeErrorOccurred          = "processing.errorOccurred"

	TypeArtifactRecordProduced            = "artifact.recordProduced"
	TypeArtifactRecordPersisted           = "artifact.recordPersisted"
	TypeArtifactPersistFailed             = "artifact.persistFailed"
	TypeApplicantProfileStored            = "artifact.applicantProfileStored"
	TypeKnowledgeCardSubmissionPending    = "artifact.knowledgeCardSubmissionPending"
	TypeKnowledgeCardAutoPersistRequested = "artifact.knowledgeCardAutoPersistRequested"
	TypeKnowledgeCardPersisted            = "artifact.knowledgeCardPersisted"
	TypeKnowledgeCardPlanUpdated          = "artifact.knowledgeCardPlanUpdated"

	TypeUserMessageSent          = "llm.userMessageSent"
	TypeDeveloperMessageSent     = "llm.developerMessageSent"
	TypeUserMessageFailed        = "llm.userMessageFailed"
	TypeAssistantStreamStarted   = "llm.assistantStreamStarted"
	TypeAssistantStreamDelta     = "llm.assistantStreamDelta"
	TypeAssistantStreamFinalized = "llm.assistantStreamFinalized"
	TypeCancelRequested          = "llm.cancelRequested"

	TypeObjectiveStatusChanged = "state.objectiveStatusChanged"
	TypeToolsAllowedUpdated    = "state.toolsAllowedUpdated"
	TypeSnapshotUpdated        = "state.snapshotUpdated"

	TypeToolCallRequested   = "tool.callRequested"
	TypeToolCallCompleted   = "tool.callCompleted"
	TypeToolPromptRequested = "tool.promptRequested"
	TypeToolPromptCleared   = "tool.promptCleared"

	TypePhaseTransitionRequested = "phase.transitionRequested"
	TypePhaseTransitionApplied   = "phase.transitionApplied"
	TypePhaseTransitionRejected  = "phase.transitionRejected"
	TypeInterviewCompleted       = "phase.interviewCompleted"

	TypeTimelineCardCreated = "timeline.cardCreated"
	TypeTimelineCardUpdated = "timeline.cardUpdated"
	TypeTimelineCardDeleted = "timeline.cardDeleted"

	TypeSectionsConfigured = "sectionCard.sectionsConfigured"

	TypePublicationCardAdded = "publicationCard.cardAdded"
)

// =============================================================================
// PROCESSING EVENTS
// =============================================================================

// ProcessingStateChanged reports whether the engine is busy and the status line to show.
type ProcessingStateChanged struct {
	IsProcessing  bool   `json:"is_processing"`
	StatusMessage string `json:"status_message,omitempty"`
}

func (e *ProcessingStateChanged) Category() Category { return CategoryProcessing }
func (e *ProcessingStateChanged) EventType() string  { return TypeProcessingStateChanged }

// WaitingStateChanged reports what kind of user input the session is waiting on.
type WaitingStateChanged struct {
	State interview.WaitingState `json:"state"`
}

func (e *WaitingStateChanged) Category() Category { return CategoryProcessing }
func (e *WaitingStateChanged) EventType() string  { return TypeWaitingStateChanged }

// ErrorOccurred surfaces a recoverable failure as a status message.
type ErrorOccurred struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *ErrorOccurred) Category() Category { return CategoryProcessing }
func (e *ErrorOccurred) EventType() string  { return TypeErrorOccurred }

// =============================================================================
// ARTIFACT EVENTS
// =============================================================================

// ArtifactRecordProduced is emitted when a record enters the session store.
type ArtifactRecordProduced struct {
	Record *interview.ArtifactRecord `json:"record"`
}

func (e *ArtifactRecordProduced) Category() Category { return CategoryArtifact }
func (e *ArtifactRecordProduced) EventType() string  { return TypeArtifactRecordProduced }

// ArtifactRecordPersisted is emitted once the persistence collaborator accepted a record.
type ArtifactRecordPersisted struct {
	RecordID    string `json:"record_id"`
	RecordType  string `json:"record_type"`
	PersistedID string `json:"persisted_id"`
}

func (e *ArtifactRecordPersisted) Category() Category { return CategoryArtifact }
func (e *ArtifactRecordPersisted) EventType() string  { return TypeArtifactRecordPersisted }

// ArtifactPersistFailed reports degraded durability. The in-memory record is kept.
type ArtifactPersistFailed struct {
	RecordID   string `json:"record_id"`
	RecordType string `json:"record_type"`
	Error      string `json:"error"`
}

func (e *ArtifactPersistFailed) Category() Category { return CategoryArtifact }
func (e *ArtifactPersistFailed) EventType() string  { return TypeArtifactPersistFailed }

// ApplicantProfileStored is emitted when the user confirms the profile form.
type ApplicantProfileStored struct {
	Profile *interview.ApplicantProfile `json:"profile"`
}

func (e *ApplicantProfileStored) Category() Category { return CategoryArtifact }
func (e *ApplicantProfileStored) EventType() string  { return TypeApplicantProfileStored }

// KnowledgeCardSubmissionPending stages a drafted card awaiting persistence.
type KnowledgeCardSubmissionPending struct {
	Card *interview.KnowledgeCard `json:"card"`
}

func (e *KnowledgeCardSubmissionPending) Category() Category { return CategoryArtifact }
func (e *KnowledgeCardSubmissionPending) EventType() string {
	return TypeKnowledgeCardSubmissionPending
}

// KnowledgeCardAutoPersistRequested asks the engine to persist the staged card.
// An empty CardID targets whatever card is currently staged.
type KnowledgeCardAutoPersistRequested struct {
	CardID string `json:"card_id,omitempty"`
}

func (e *KnowledgeCardAutoPersistRequested) Category() Category { return CategoryArtifact }
func (e *KnowledgeCardAutoPersistRequested) EventType() string {
	return TypeKnowledgeCardAutoPersistRequested
}

// KnowledgeCardPersisted is emitted after a staged card reached the persistence collaborator.
type KnowledgeCardPersisted struct {
	Card        *interview.KnowledgeCard `json:"card"`
	PersistedID string                   `json:"persisted_id"`
}

func (e *KnowledgeCardPersisted) Category() Category { return CategoryArtifact }
func (e *KnowledgeCardPersisted) EventType() string  { return TypeKnowledgeCardPersisted }

// KnowledgeCardPlanUpdated carries the full plan after any change.
type KnowledgeCardPlanUpdated struct {
	Items []interview.PlanItem `json:"items"`
}

func (e *KnowledgeCardPlanUpdated) Category() Category { return CategoryArtifact }
func (e *KnowledgeCardPlanUpdated) EventType() string  { return TypeKnowledgeCardPlanUpdated }

// =============================================================================
// LLM EVENTS
// =============================================================================

// UserMessageSent asks the model transport to send a user-role message.
type UserMessageSent struct {
	MessageID         string `json:"message_id"`
	Text              string `json:"text"`
	IsSystemGenerated bool   `json:"is_system_generated"`
	ToolChoice        string `json:"tool_choice,omitempty"`
}

func (e *UserMessageSent) Category() Category { return CategoryLLM }
func (e *UserMessageSent) EventType() string  { return TypeUserMessageSent }

// DeveloperMessageSent asks the model transport to send engine guidance.
type DeveloperMessageSent struct {
	MessageID  string `json:"message_id"`
	Text       string `json:"text"`
	ToolChoice string `json:"tool_choice,omitempty"`
}

func (e *DeveloperMessageSent) Category() Category { return CategoryLLM }
func (e *DeveloperMessageSent) EventType() string  { return TypeDeveloperMessageSent }

// UserMessageFailed reports that the transport could not deliver a message.
type UserMessageFailed struct {
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
}

func (e *UserMessageFailed) Category() Category { return CategoryLLM }
func (e *UserMessageFailed) EventType() string  { return TypeUserMessageFailed }

// AssistantStreamStarted opens an in-progress assistant message.
type AssistantStreamStarted struct {
	MessageID string `json:"message_id"`
}

func (e *AssistantStreamStarted) Category() Category { return CategoryLLM }
func (e *AssistantStreamStarted) EventType() string  { return TypeAssistantStreamStarted }

// AssistantStreamDelta appends streamed text.
type AssistantStreamDelta struct {
	MessageID string `json:"message_id"`
	Delta     string `json:"delta"`
}

func (e *AssistantStreamDelta) Category() Category { return CategoryLLM }
func (e *AssistantStreamDelta) EventType() string  { return TypeAssistantStreamDelta }

// AssistantStreamFinalized closes an assistant message with its final text.
type AssistantStreamFinalized struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

func (e *AssistantStreamFinalized) Category() Category { return CategoryLLM }
func (e *AssistantStreamFinalized) EventType() string  { return TypeAssistantStreamFinalized }

// CancelRequested asks the model transport to abort its in-flight request.
type CancelRequested struct {
	Reason string `json:"reason,omitempty"`
}

func (e *CancelRequested) Category() Category { return CategoryLLM }
func (e *CancelRequested) EventType() string  { return TypeCancelRequested }

// =============================================================================
// STATE EVENTS
// =============================================================================

// ObjectiveStatusChanged is emitted after an objective transitioned.
type ObjectiveStatusChanged struct {
	ObjectiveID string                    `json:"objective_id"`
	Phase       interview.Phase           `json:"phase"`
	OldStatus   interview.ObjectiveStatus `json:"old_status"`
	NewStatus   interview.ObjectiveStatus `json:"new_status"`
	Source      string                    `json:"source,omitempty"`
	Notes       string                    `json:"notes,omitempty"`
}

func (e *ObjectiveStatusChanged) Category() Category { return CategoryState }
func (e *ObjectiveStatusChanged) EventType() string  { return TypeObjectiveStatusChanged }

// ToolsAllowedUpdated carries the model-facing tool set after it changed.
type ToolsAllowedUpdated struct {
	Phase interview.Phase `json:"phase"`
	Tools []string        `json:"tools"`
}

func (e *ToolsAllowedUpdated) Category() Category { return CategoryState }
func (e *ToolsAllowedUpdated) EventType() string  { return TypeToolsAllowedUpdated }

// SnapshotUpdated tells projections to re-pull the session snapshot.
type SnapshotUpdated struct {
	Reason string `json:"reason"`
}

func (e *SnapshotUpdated) Category() Category { return CategoryState }
func (e *SnapshotUpdated) EventType() string  { return TypeSnapshotUpdated }

// =============================================================================
// TOOL EVENTS
// =============================================================================

// ToolCallRequested carries a tool invocation from the model transport.
type ToolCallRequested struct {
	Request interview.ToolCallRequest `json:"request"`
}

func (e *ToolCallRequested) Category() Category { return CategoryTool }
func (e *ToolCallRequested) EventType() string  { return TypeToolCallRequested }

// ToolCallCompleted is the tool result delivered back to the model transport.
type ToolCallCompleted struct {
	CallID      string                `json:"call_id"`
	ToolName    string                `json:"tool_name"`
	Output      *interview.ToolOutput `json:"output"`
	Instruction string                `json:"instruction,omitempty"`
	Disposition interview.Disposition `json:"disposition"`
}

func (e *ToolCallCompleted) Category() Category { return CategoryTool }
func (e *ToolCallCompleted) EventType() string  { return TypeToolCallCompleted }

// Response converts the event to the transport response shape.
func (e *ToolCallCompleted) Response() interview.ToolResponse {
	return interview.ToolResponse{CallID: e.CallID, Output: e.Output, Instruction: e.Instruction}
}

// ToolPromptRequested asks UI projections to render a prompt for the pending call.
type ToolPromptRequested struct {
	CallID   string                 `json:"call_id"`
	ToolName string                 `json:"tool_name"`
	Kind     interview.WaitingState `json:"kind"`
	Prompt   interview.Prompt       `json:"prompt"`
}

func (e *ToolPromptRequested) Category() Category { return CategoryTool }
func (e *ToolPromptRequested) EventType() string  { return TypeToolPromptRequested }

// ToolPromptCleared tells UI projections to dismiss the prompt for a call.
type ToolPromptCleared struct {
	CallID string `json:"call_id"`
}

func (e *ToolPromptCleared) Category() Category { return CategoryTool }
func (e *ToolPromptCleared) EventType() string  { return TypeToolPromptCleared }

// =============================================================================
// PHASE EVENTS
// =============================================================================

// PhaseTransitionRequested asks the phase controller to move the interview.
type PhaseTransitionRequested struct {
	From   interview.Phase `json:"from"`
	To     interview.Phase `json:"to"`
	Reason string          `json:"reason,omitempty"`
	Force  bool            `json:"force"`
}

func (e *PhaseTransitionRequested) Category() Category { return CategoryPhase }
func (e *PhaseTransitionRequested) EventType() string  { return TypePhaseTransitionRequested }

// PhaseTransitionApplied is emitted after the phase changed. To is the payload consumers key on.
type PhaseTransitionApplied struct {
	From   interview.Phase `json:"from"`
	To     interview.Phase `json:"to"`
	Reason string          `json:"reason,omitempty"`
	Forced bool            `json:"forced"`
}

func (e *PhaseTransitionApplied) Category() Category { return CategoryPhase }
func (e *PhaseTransitionApplied) EventType() string  { return TypePhaseTransitionApplied }

// PhaseTransitionRejected reports a refused transition; state is unchanged.
type PhaseTransitionRejected struct {
	From   interview.Phase `json:"from"`
	To     interview.Phase `json:"to"`
	Reason string          `json:"reason"`
}

func (e *PhaseTransitionRejected) Category() Category { return CategoryPhase }
func (e *PhaseTransitionRejected) EventType() string  { return TypePhaseTransitionRejected }

// InterviewCompleted is emitted once the terminal phase is reached.
type InterviewCompleted struct{}

func (e *InterviewCompleted) Category() Category { return CategoryPhase }
func (e *InterviewCompleted) EventType() string  { return TypeInterviewCompleted }

// =============================================================================
// CONTENT EVENTS
// =============================================================================

// TimelineCardCreated is emitted for a new timeline entry.
type TimelineCardCreated struct {
	Entry *interview.TimelineEntry `json:"entry"`
}

func (e *TimelineCardCreated) Category() Category { return CategoryTimeline }
func (e *TimelineCardCreated) EventType() string  { return TypeTimelineCardCreated }

// TimelineCardUpdated is emitted for an edited timeline entry.
type TimelineCardUpdated struct {
	Entry *interview.TimelineEntry `json:"entry"`
}

func (e *TimelineCardUpdated) Category() Category { return CategoryTimeline }
func (e *TimelineCardUpdated) EventType() string  { return TypeTimelineCardUpdated }

// TimelineCardDeleted is emitted for a removed timeline entry.
type TimelineCardDeleted struct {
	EntryID string `json:"entry_id"`
}

func (e *TimelineCardDeleted) Category() Category { return CategoryTimeline }
func (e *TimelineCardDeleted) EventType() string  { return TypeTimelineCardDeleted }

// SectionsConfigured carries the resume sections the user enabled.
type SectionsConfigured struct {
	Enabled []string `json:"enabled"`
}

func (e *SectionsConfigured) Category() Category { return CategorySectionCard }
func (e *SectionsConfigured) EventType() string  { return TypeSectionsConfigured }

// PublicationCardAdded is emitted for a new publication card.
type PublicationCardAdded struct {
	Card *interview.PublicationCard `json:"card"`
}

func (e *PublicationCardAdded) Category() Category { return CategoryPublicationCard }
func (e *PublicationCardAdded) EventType() string  { return TypePublicationCardAdded }
