package kernel

import (
	"context"
	"errors"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
)

// WorkflowSource tags objective updates made by workflow rules.
const WorkflowSource = "workflow"

// Workflow applies store side effects of domain events: objective progress,
// the staged knowledge card, and the streamed assistant transcript.
//
// Objective rules only move an objective forward (pending -> in_progress ->
// completed). Updates aimed at objectives outside the current phase are
// dropped by the store.
type Workflow struct {
	store  *SessionStore
	logger Logger
}

// NewWorkflow creates the workflow rules over store.
func NewWorkflow(store *SessionStore, logger Logger) *Workflow {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Workflow{store: store, logger: logger}
}

// Handle is the bus handler. It never fails delivery for expected rejections.
func (w *Workflow) Handle(ctx context.Context, event commbus.Event) error {
	switch e := event.(type) {
	case *commbus.ApplicantProfileStored:
		w.advance(ctx, interview.ObjectiveApplicantProfile, interview.ObjectiveCompleted, "applicant profile confirmed")

	case *commbus.TimelineCardCreated:
		w.advance(ctx, interview.ObjectiveSkeletonTimeline, interview.ObjectiveInProgress, "timeline card created")

	case *commbus.SectionsConfigured:
		w.advance(ctx, interview.ObjectiveEnabledSections, interview.ObjectiveCompleted, "sections configured")

	case *commbus.KnowledgeCardPlanUpdated:
		w.onPlanUpdated(ctx, e.Items)

	case *commbus.KnowledgeCardSubmissionPending:
		w.store.SetPendingKnowledgeCard(e.Card)

	case *commbus.KnowledgeCardPersisted:
		if e.Card != nil && w.store.clearPendingKnowledgeCard(e.Card.ID) {
			w.logger.Debug("pending_knowledge_card_cleared", "card_id", e.Card.ID)
		}
		w.advance(ctx, interview.ObjectiveExperienceInterviews, interview.ObjectiveInProgress, "knowledge card persisted")
		w.advance(ctx, interview.ObjectiveKnowledgeCards, interview.ObjectiveInProgress, "knowledge card persisted")

	case *commbus.ArtifactRecordProduced:
		w.onRecordProduced(ctx, e.Record)

	case *commbus.PublicationCardAdded:
		w.advance(ctx, interview.ObjectiveEvidenceDocuments, interview.ObjectiveInProgress, "publication card added")

	case *commbus.ToolCallCompleted:
		w.onToolCallCompleted(ctx, e)

	case *commbus.AssistantStreamStarted:
		w.store.BeginAssistantMessage(e.MessageID)

	case *commbus.AssistantStreamDelta:
		if err := w.store.UpdateAssistantMessage(e.MessageID, e.Delta); err != nil {
			w.logger.Debug("assistant_delta_ignored", "message_id", e.MessageID, "error", err.Error())
		}

	case *commbus.AssistantStreamFinalized:
		if err := w.store.FinalizeAssistantMessage(e.MessageID, e.Text); err != nil {
			w.logger.Debug("assistant_finalize_ignored", "message_id", e.MessageID, "error", err.Error())
		}

	case *commbus.UserMessageFailed:
		if !w.store.MarkUserMessageFailed(e.MessageID) {
			w.logger.Debug("user_message_failure_ignored", "message_id", e.MessageID)
		}
		w.store.SetProcessing(ctx, false, "")
	}
	return nil
}

func (w *Workflow) onPlanUpdated(ctx context.Context, items []interview.PlanItem) {
	if len(items) == 0 {
		return
	}
	w.advance(ctx, interview.ObjectiveKnowledgeCardPlan, interview.ObjectiveCompleted, "knowledge card plan set")

	for _, item := range items {
		if item.Status != interview.PlanItemCompleted && item.Status != interview.PlanItemSkipped {
			return
		}
	}
	w.advance(ctx, interview.ObjectiveKnowledgeCards, interview.ObjectiveCompleted, "all planned knowledge cards resolved")
}

func (w *Workflow) onRecordProduced(ctx context.Context, record *interview.ArtifactRecord) {
	if record == nil {
		return
	}
	switch content := record.Content.(type) {
	case *interview.DocumentExcerpt:
		w.advance(ctx, interview.ObjectiveEvidenceDocuments, interview.ObjectiveInProgress, "document uploaded")
		if content.Purpose == "writing_sample" {
			w.advance(ctx, interview.ObjectiveWritingSamples, interview.ObjectiveCompleted, "writing sample uploaded")
		}
	case *interview.GenericDocument:
		if content.Type == interview.ObjectiveCandidateDossier {
			w.advance(ctx, interview.ObjectiveCandidateDossier, interview.ObjectiveCompleted, "candidate dossier persisted")
		}
	}
}

// onToolCallCompleted handles approved validations. A validation whose data
// type names an objective completes that objective; the approval that
// completes the skeleton timeline also writes it to persistence.
func (w *Workflow) onToolCallCompleted(ctx context.Context, e *commbus.ToolCallCompleted) {
	if e.ToolName != "submit_for_validation" || e.Output == nil || e.Output.Status != interview.ToolStatusCompleted {
		return
	}
	dataType, _ := e.Output.Auxiliary["data_type"].(string)
	if dataType == "" {
		return
	}

	if w.advance(ctx, dataType, interview.ObjectiveCompleted, "validated by user") && dataType == interview.ObjectiveSkeletonTimeline {
		w.persistTimeline(ctx)
	}
}

func (w *Workflow) persistTimeline(ctx context.Context) {
	for _, entry := range w.store.TimelineEntries() {
		if _, err := w.store.AddArtifact(ctx, entry); err != nil {
			w.logger.Warn("timeline_entry_not_persisted", "entry_id", entry.ID, "error", err.Error())
		}
	}
}

// advance moves an objective to status unless it is already at or past it.
// It reports whether the status changed.
func (w *Workflow) advance(ctx context.Context, id string, status interview.ObjectiveStatus, notes string) bool {
	changed, err := w.store.AdvanceObjectiveStatus(ctx, id, status, WorkflowSource, notes)
	if err != nil && !errors.Is(err, interview.ErrUnknownObjective) {
		w.logger.Warn("workflow_objective_update_failed",
			"objective_id", id,
			"status", string(status),
			"error", err.Error(),
		)
	}
	return changed
}
