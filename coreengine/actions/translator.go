// Package actions translates user actions into model-visible effects.
//
// An action either completes the pending tool call with a payload that
// carries the user's answer, or enqueues a new message when nothing is
// pending. Actions aimed at a call that is no longer pending do nothing.
package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/kernel"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/tools"
)

// Objective source recorded for user-driven updates.
const SourceUser = "user"

// ValidationOutcome is the user's verdict on a validation prompt.
type ValidationOutcome string

const (
	ValidationApproved ValidationOutcome = "approved"
	ValidationModified ValidationOutcome = "modified"
	ValidationRejected ValidationOutcome = "rejected"
)

// ValidationDecision is the answer to submit_for_validation.
type ValidationDecision struct {
	Outcome  ValidationOutcome `json:"outcome"`
	Changes  map[string]any    `json:"changes,omitempty"`
	Feedback string            `json:"feedback,omitempty"`
}

// UploadedFile describes one file the user submitted.
type UploadedFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// Translator maps UI actions onto the continuation manager, the store and the bus.
//
// Usage:
//
//	t := actions.NewTranslator(k, router, nil, logger)
//	defer t.Close()
//
//	err := t.SubmitChoice(ctx, callID, []string{"acme"})
type Translator struct {
	kernel *kernel.Kernel
	router *tools.Router
	plan   kernel.PlanItemStatusUpdater
	logger kernel.Logger

	mu        sync.Mutex
	prompts   map[string]interview.Prompt
	persisted map[string]bool
	token     commbus.SubscriptionToken
	closed    bool
}

// NewTranslator creates a translator and subscribes it to prompt and
// knowledge-card events. A nil plan updater uses the session store.
func NewTranslator(
	k *kernel.Kernel,
	router *tools.Router,
	plan kernel.PlanItemStatusUpdater,
	logger kernel.Logger,
) *Translator {
	if plan == nil {
		plan = k.Store()
	}
	if logger == nil {
		logger = k.Logger()
	}

	t := &Translator{
		kernel:    k,
		router:    router,
		plan:      plan,
		logger:    logger,
		prompts:   make(map[string]interview.Prompt),
		persisted: make(map[string]bool),
	}
	t.token = k.Bus().Subscribe(t.handleEvent)
	return t
}

// Close unsubscribes the translator. Safe to call more than once.
func (t *Translator) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.kernel.Bus().Unsubscribe(t.token)
}

// =============================================================================
// Uploads
// =============================================================================

// SubmitUpload answers get_user_upload. Extraction runs elsewhere, so the
// model is told to wait for the follow-up from NotifyDocumentProcessed.
func (t *Translator) SubmitUpload(ctx context.Context, callID string, files []UploadedFile) error {
	if len(files) == 0 {
		return errors.New("at least one file is required")
	}
	pending := t.router.ResolvePending(callID, tools.ToolGetUserUpload)
	if pending == nil {
		return nil
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Filename)
	}
	output := interview.NewToolOutput(interview.ToolStatusInProgress,
		fmt.Sprintf("User uploaded %s. Text extraction is running.", strings.Join(names, ", ")),
		map[string]any{"files": names})
	return t.finish(ctx, pending, output, "Wait for the document processing message before replying.")
}

// CancelUpload answers get_user_upload with a cancellation.
func (t *Translator) CancelUpload(ctx context.Context, callID string) error {
	pending := t.router.ResolvePending(callID, tools.ToolGetUserUpload)
	if pending == nil {
		return nil
	}
	return t.cancel(ctx, "User skipped the upload")
}

// NotifyDocumentProcessed records extracted text and tells the model about it.
func (t *Translator) NotifyDocumentProcessed(ctx context.Context, doc *interview.DocumentExcerpt) error {
	if doc == nil {
		return errors.New("document is required")
	}
	store := t.kernel.Store()

	record, err := store.AddArtifact(ctx, doc)
	if record == nil {
		return err
	}

	text := fmt.Sprintf("Document %q has been processed (artifact %s).", doc.Filename, record.ID)
	if doc.Excerpt != "" {
		text += "\n\nExcerpt:\n" + doc.Excerpt
	}
	t.sendDeveloperMessage(ctx, text, "")
	return nil
}

// =============================================================================
// Choices, validation, profile, sections
// =============================================================================

// SubmitChoice answers get_user_option.
func (t *Translator) SubmitChoice(ctx context.Context, callID string, selected []string) error {
	pending := t.router.ResolvePending(callID, tools.ToolGetUserOption)
	if pending == nil {
		return nil
	}
	if len(selected) == 0 {
		return errors.New("at least one option must be selected")
	}

	labels := selected
	if prompt, ok := t.prompt(pending.CallID).(*interview.ChoicePrompt); ok {
		if len(selected) > 1 && !prompt.AllowMultiple {
			return errors.New("only one option may be selected")
		}
		labels = make([]string, 0, len(selected))
		for _, id := range selected {
			if !prompt.HasOption(id) {
				return fmt.Errorf("unknown option %q", id)
			}
			for _, opt := range prompt.Options {
				if opt.ID == id {
					labels = append(labels, opt.Label)
				}
			}
		}
	}

	output := interview.NewToolOutput(interview.ToolStatusCompleted,
		"User selected: "+strings.Join(labels, ", "),
		map[string]any{"selected_ids": selected})
	return t.finish(ctx, pending, output, "")
}

// CancelChoice answers get_user_option with a cancellation.
func (t *Translator) CancelChoice(ctx context.Context, callID string) error {
	pending := t.router.ResolvePending(callID, tools.ToolGetUserOption)
	if pending == nil {
		return nil
	}
	return t.cancel(ctx, "User declined to choose")
}

// SubmitValidation answers submit_for_validation.
func (t *Translator) SubmitValidation(ctx context.Context, callID string, decision ValidationDecision) error {
	pending := t.router.ResolvePending(callID, tools.ToolSubmitForValidation)
	if pending == nil {
		return nil
	}

	dataType := ""
	if prompt, ok := t.prompt(pending.CallID).(*interview.ValidationPrompt); ok {
		dataType = prompt.DataType
	}
	aux := map[string]any{"data_type": dataType}

	var output *interview.ToolOutput
	switch decision.Outcome {
	case ValidationApproved:
		output = interview.NewToolOutput(interview.ToolStatusCompleted,
			fmt.Sprintf("User approved the %s.", label(dataType)), aux)
	case ValidationModified:
		aux["changes"] = decision.Changes
		output = interview.NewToolOutput(interview.ToolStatusChangesSubmitted,
			fmt.Sprintf("User edited the %s. Apply the changes and validate again.", label(dataType)), aux)
	case ValidationRejected:
		msg := fmt.Sprintf("User rejected the %s.", label(dataType))
		if decision.Feedback != "" {
			msg += " Feedback: " + decision.Feedback
		}
		output = interview.NewToolOutput(interview.ToolStatusRejected, msg, aux)
	default:
		return fmt.Errorf("unknown validation outcome %q", decision.Outcome)
	}
	if decision.Feedback != "" {
		aux["feedback"] = decision.Feedback
	}
	return t.finish(ctx, pending, output, "")
}

// SubmitApplicantProfile answers get_applicant_profile and stores the profile.
func (t *Translator) SubmitApplicantProfile(ctx context.Context, callID string, profile *interview.ApplicantProfile) error {
	pending := t.router.ResolvePending(callID, tools.ToolGetApplicantProfile)
	if pending == nil {
		return nil
	}
	if profile == nil {
		return errors.New("applicant profile is required")
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	if _, err := t.kernel.Store().StoreApplicantProfile(ctx, profile); err != nil {
		t.logger.Warn("applicant_profile_not_persisted", "error", err.Error())
	}
	output := interview.NewToolOutput(interview.ToolStatusCompleted,
		fmt.Sprintf("User confirmed the applicant profile for %s.", profile.Name),
		map[string]any{"profile": profile})
	return t.finish(ctx, pending, output, "")
}

// SubmitSections answers configure_enabled_sections.
func (t *Translator) SubmitSections(ctx context.Context, callID string, enabled []string) error {
	pending := t.router.ResolvePending(callID, tools.ToolConfigureEnabledSections)
	if pending == nil {
		return nil
	}

	t.kernel.Store().SetEnabledSections(ctx, enabled)
	output := interview.NewToolOutput(interview.ToolStatusCompleted,
		fmt.Sprintf("User enabled %d sections: %s.", len(enabled), strings.Join(enabled, ", ")),
		map[string]any{"enabled": enabled})
	return t.finish(ctx, pending, output, "")
}

// FinishTimelineEditing records that the user is done editing the timeline,
// which unlocks submit_for_validation, and asks the model to call it.
func (t *Translator) FinishTimelineEditing(ctx context.Context) error {
	_, err := t.kernel.Store().SetObjectiveStatus(ctx,
		interview.ObjectiveTimelineEditsConfirmed, interview.ObjectiveCompleted, SourceUser, "")
	if err != nil {
		return err
	}
	t.sendDeveloperMessage(ctx,
		"The user finished editing the timeline. Submit it for validation with data_type skeleton_timeline.",
		tools.ToolSubmitForValidation)
	return nil
}

// =============================================================================
// Knowledge cards
// =============================================================================

// ApproveKnowledgeCard answers submit_knowledge_card. With auto-persist the
// engine saves the card itself; otherwise the model is asked to persist it.
func (t *Translator) ApproveKnowledgeCard(ctx context.Context, callID string) error {
	pending := t.router.ResolvePending(callID, tools.ToolSubmitKnowledgeCard)
	if pending == nil {
		return nil
	}
	card := t.kernel.Store().PendingKnowledgeCard()
	if card == nil {
		return errors.New("no knowledge card is staged")
	}

	aux := map[string]any{"card_id": card.ID}
	if !t.kernel.Config().AutoPersistKnowledgeCards {
		output := interview.NewToolOutput(interview.ToolStatusCompleted,
			fmt.Sprintf("User approved the card %q.", card.Title), aux)
		return t.finish(ctx, pending, output,
			"Call persist_data with data_type knowledge_card and the approved card.")
	}

	output := interview.NewToolOutput(interview.ToolStatusCompleted,
		fmt.Sprintf("User approved the card %q. It is being saved.", card.Title), aux)
	if err := t.finish(ctx, pending, output, ""); err != nil {
		return err
	}
	t.publish(ctx, &commbus.KnowledgeCardAutoPersistRequested{CardID: card.ID})
	return nil
}

// RejectKnowledgeCard answers submit_knowledge_card with the user's feedback.
func (t *Translator) RejectKnowledgeCard(ctx context.Context, callID, feedback string) error {
	pending := t.router.ResolvePending(callID, tools.ToolSubmitKnowledgeCard)
	if pending == nil {
		return nil
	}
	msg := "User asked for changes to the card."
	if feedback != "" {
		msg += " Feedback: " + feedback
	}
	output := interview.NewToolOutput(interview.ToolStatusRejected, msg, map[string]any{"feedback": feedback})
	return t.finish(ctx, pending, output, "Revise the card and submit it again.")
}

// autoPersist saves the staged card once, announces it, tells the model and
// advances the plan.
func (t *Translator) autoPersist(ctx context.Context, req *commbus.KnowledgeCardAutoPersistRequested) {
	store := t.kernel.Store()
	card := store.PendingKnowledgeCard()
	if card == nil || (req.CardID != "" && req.CardID != card.ID) {
		t.logger.Debug("auto_persist_skipped", "card_id", req.CardID)
		return
	}

	t.mu.Lock()
	if t.persisted[card.ID] {
		t.mu.Unlock()
		t.logger.Debug("auto_persist_duplicate", "card_id", card.ID)
		return
	}
	t.persisted[card.ID] = true
	t.mu.Unlock()

	record, err := store.AddArtifact(ctx, card)
	if record == nil {
		// rejected cards stay staged so a later request can retry
		t.mu.Lock()
		delete(t.persisted, card.ID)
		t.mu.Unlock()
		t.logger.Warn("knowledge_card_auto_persist_failed", "card_id", card.ID, "error", err.Error())
		return
	}
	if err != nil {
		t.logger.Warn("knowledge_card_kept_in_memory", "card_id", card.ID, "error", err.Error())
	}

	t.publish(ctx, &commbus.KnowledgeCardPersisted{Card: card, PersistedID: record.PersistedID})
	t.logger.Info("knowledge_card_persisted", "card_id", card.ID, "persisted_id", record.PersistedID)

	t.sendDeveloperMessage(ctx,
		fmt.Sprintf("Knowledge card %q was approved and saved. Continue with the next plan item.", card.Title), "")

	if card.PlanItemID != "" {
		if err := t.plan.UpdatePlanItemStatus(ctx, card.PlanItemID, interview.PlanItemCompleted); err != nil {
			t.logger.Warn("plan_item_not_advanced", "plan_item_id", card.PlanItemID, "error", err.Error())
		}
	}
}

// =============================================================================
// Phases
// =============================================================================

// ApprovePhaseAdvance answers next_phase by forcing the transition the user approved.
func (t *Translator) ApprovePhaseAdvance(ctx context.Context, callID string) error {
	pending := t.router.ResolvePending(callID, tools.ToolNextPhase)
	if pending == nil {
		return nil
	}

	from := t.kernel.Store().Phase()
	to, _ := from.Next()
	if prompt, ok := t.prompt(pending.CallID).(*interview.PhaseAdvancePrompt); ok {
		from, to = prompt.From, prompt.To
	}

	if err := t.kernel.Phases().RequestTransition(ctx, from, to, "user approved", true); err != nil {
		return t.finish(ctx, pending, interview.RejectedOutput("The phase could not be changed: "+err.Error()), "")
	}
	output := interview.NewToolOutput(interview.ToolStatusPhaseAdvanced,
		fmt.Sprintf("User approved moving from %s to %s.", from, to),
		map[string]any{"from": string(from), "to": string(to)})
	return t.finish(ctx, pending, output, fmt.Sprintf("Introduce the goals of the %s phase to the user.", to))
}

// DenyPhaseAdvance answers next_phase with the user's refusal.
func (t *Translator) DenyPhaseAdvance(ctx context.Context, callID, feedback string) error {
	pending := t.router.ResolvePending(callID, tools.ToolNextPhase)
	if pending == nil {
		return nil
	}
	msg := fmt.Sprintf("User wants to stay in %s.", t.kernel.Store().Phase())
	if feedback != "" {
		msg += " Feedback: " + feedback
	}
	output := interview.NewToolOutput(interview.ToolStatusRejected, msg,
		map[string]any{"missing": t.kernel.Phases().MissingObjectives()})
	return t.finish(ctx, pending, output, "Keep working on the open objectives.")
}

// SkipToNextPhase forces the next phase on the user's decision without a
// model round trip. An open prompt is superseded first.
func (t *Translator) SkipToNextPhase(ctx context.Context) (interview.Phase, error) {
	if t.kernel.Store().PendingToolCall() != nil {
		if err := t.kernel.Continuations().Supersede(ctx, "User skipped to the next phase"); err != nil &&
			!errors.Is(err, interview.ErrStaleContinuation) {
			return "", err
		}
	}

	to, err := t.kernel.Phases().AdvanceToNext(ctx, "user skipped ahead", true)
	if err != nil {
		return "", err
	}
	t.sendDeveloperMessage(ctx,
		fmt.Sprintf("The user chose to move on to the %s phase. Introduce its goals.", to), "")
	return to, nil
}

// =============================================================================
// Chat
// =============================================================================

// SubmitChat sends a free-form user message. An open prompt is superseded
// when SupersedeOnChat is set. Returns the message id.
func (t *Translator) SubmitChat(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("message text is required")
	}
	store := t.kernel.Store()

	if t.kernel.Config().SupersedeOnChat && store.PendingToolCall() != nil {
		if err := t.kernel.Continuations().Supersede(ctx, ""); err != nil && !errors.Is(err, interview.ErrStaleContinuation) {
			return "", err
		}
	}

	id := store.AppendUserMessage(text, false)
	store.SetProcessing(ctx, true, "Thinking")
	t.publish(ctx, &commbus.UserMessageSent{MessageID: id, Text: text})
	return id, nil
}

// CancelGeneration asks the model transport to stop and clears the busy state.
func (t *Translator) CancelGeneration(ctx context.Context, reason string) {
	t.publish(ctx, &commbus.CancelRequested{Reason: reason})
	t.kernel.Store().SetProcessing(ctx, false, "")
}

// =============================================================================
// Helpers
// =============================================================================

// finish completes the resolved call. Losing a race to another completion is not an error.
func (t *Translator) finish(ctx context.Context, pending *interview.PendingToolCall, output *interview.ToolOutput, instruction string) error {
	err := t.kernel.Continuations().CompleteCall(ctx, pending.CallID, output, instruction)
	if errors.Is(err, interview.ErrStaleContinuation) {
		return nil
	}
	return err
}

func (t *Translator) cancel(ctx context.Context, reason string) error {
	err := t.kernel.Continuations().Cancel(ctx, reason)
	if errors.Is(err, interview.ErrStaleContinuation) {
		return nil
	}
	return err
}

func (t *Translator) sendDeveloperMessage(ctx context.Context, text, toolChoice string) {
	id := t.kernel.Store().AppendDeveloperMessage(text, toolChoice)
	t.publish(ctx, &commbus.DeveloperMessageSent{MessageID: id, Text: text, ToolChoice: toolChoice})
}

func (t *Translator) prompt(callID string) interview.Prompt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prompts[callID]
}

func (t *Translator) handleEvent(ctx context.Context, event commbus.Event) error {
	switch e := event.(type) {
	case *commbus.ToolPromptRequested:
		t.mu.Lock()
		t.prompts[e.CallID] = e.Prompt
		t.mu.Unlock()
	case *commbus.ToolPromptCleared:
		t.mu.Lock()
		delete(t.prompts, e.CallID)
		t.mu.Unlock()
	case *commbus.KnowledgeCardAutoPersistRequested:
		t.autoPersist(ctx, e)
	}
	return nil
}

func (t *Translator) publish(ctx context.Context, event commbus.Event) {
	if err := t.kernel.Bus().Publish(ctx, event); err != nil {
		t.logger.Warn("publish_failed", "event_type", event.EventType(), "error", err.Error())
	}
}

func label(dataType string) string {
	if dataType == "" {
		return "submission"
	}
	return strings.ReplaceAll(dataType, "_", " ")
}
