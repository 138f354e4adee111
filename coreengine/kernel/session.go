package kernel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/config"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/observability"
)

// SessionStore is the single source of truth for one interview session:
// phase, objectives, artifacts, transcript, and the one pending tool call.
//
// Every mutation goes through a named method and holds mu for the duration of
// the change only. Events describing a change are published after mu is
// released, so a subscriber that reads the store sees the new state.
// Persistence I/O never runs under mu.
type SessionStore struct {
	bus       commbus.Publisher
	script    *config.PhaseScript
	cfg       *config.EngineConfig
	persister ArtifactPersister
	logger    Logger

	phase          interview.Phase
	objectives     map[string]*interview.Objective
	objectiveOrder []string

	pending        *interview.PendingToolCall
	pendingClaimed bool

	messages  []*interview.Message
	artifacts []*interview.ArtifactRecord

	profile              *interview.ApplicantProfile
	timeline             []*interview.TimelineEntry
	pendingKnowledgeCard *interview.KnowledgeCard
	plan                 []interview.PlanItem
	enabledSections      []string

	processing    bool
	statusMessage string
	waiting       interview.WaitingState

	mu sync.RWMutex
}

// NewSessionStore creates a store positioned at the first phase of the script,
// with that phase's objectives registered. A nil persister keeps records in memory only.
func NewSessionStore(
	bus commbus.Publisher,
	script *config.PhaseScript,
	cfg *config.EngineConfig,
	persister ArtifactPersister,
	logger Logger,
) *SessionStore {
	if script == nil {
		script = config.DefaultPhaseScript()
	}
	if cfg == nil {
		cfg = config.DefaultEngineConfig()
	}
	if logger == nil {
		logger = noopLogger{}
	}

	s := &SessionStore{
		bus:        bus,
		script:     script,
		cfg:        cfg,
		persister:  persister,
		logger:     logger,
		phase:      interview.PhaseCoreFacts,
		objectives: make(map[string]*interview.Objective),
	}
	s.registerObjectivesLocked(s.phase)
	return s
}

// publish delivers events in order, logging failures. Must not be called with mu held.
func (s *SessionStore) publish(ctx context.Context, events ...commbus.Event) {
	if s.bus == nil {
		return
	}
	for _, e := range events {
		if err := s.bus.Publish(ctx, e); err != nil {
			s.logger.Warn("publish_failed", "event_type", e.EventType(), "error", err.Error())
		}
	}
}

// =============================================================================
// Phase
// =============================================================================

// Phase returns the current phase.
func (s *SessionStore) Phase() interview.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Script returns the phase script the store was built with.
func (s *SessionStore) Script() *config.PhaseScript {
	return s.script
}

// setPhase moves to a later phase and registers its objectives. It is the
// single point of phase mutation and refuses anything that is not strictly
// forward. With requireSatisfied, the current phase's required objectives are
// checked under the same lock. Only PhaseController calls it.
func (s *SessionStore) setPhase(from, to interview.Phase, requireSatisfied bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != from {
		return interview.NewInvalidPhaseTransitionError(from, to,
			fmt.Sprintf("current phase is %s", s.phase))
	}
	if !from.Before(to) {
		return interview.NewInvalidPhaseTransitionError(from, to, "phases only move forward")
	}
	if requireSatisfied {
		if missing := s.missingRequiredLocked(); len(missing) > 0 {
			return interview.NewInvalidPhaseTransitionError(from, to,
				"required objectives incomplete: "+strings.Join(missing, ", "))
		}
	}

	s.phase = to
	s.registerObjectivesLocked(to)
	return nil
}

// registerObjectivesLocked registers the objectives declared for phase.
// Objectives that already exist keep their status.
func (s *SessionStore) registerObjectivesLocked(phase interview.Phase) {
	def := s.script.Phase(phase)
	if def == nil {
		return
	}
	now := time.Now().UTC()
	for _, od := range def.Objectives {
		if _, exists := s.objectives[od.ID]; exists {
			continue
		}
		s.objectives[od.ID] = &interview.Objective{
			ID:        od.ID,
			Phase:     phase,
			Label:     od.Label,
			Status:    interview.ObjectivePending,
			Required:  od.Required,
			DependsOn: append([]string(nil), od.DependsOn...),
			UpdatedAt: now,
		}
		s.objectiveOrder = append(s.objectiveOrder, od.ID)
	}
}

// =============================================================================
// Objectives
// =============================================================================

// SetObjectiveStatus updates one objective of the current phase.
//
// Ids that are unknown, or that belong to an earlier phase, are expected
// during transitions: the update is dropped with a debug log and
// ErrUnknownObjective is returned for callers that care. Completing an
// objective whose dependencies are not satisfied returns ErrObjectiveDependency.
// The bool result reports whether the status actually changed.
func (s *SessionStore) SetObjectiveStatus(
	ctx context.Context,
	id string,
	status interview.ObjectiveStatus,
	source, notes string,
) (bool, error) {
	return s.updateObjective(ctx, id, status, source, notes, false)
}

// AdvanceObjectiveStatus is SetObjectiveStatus that only moves forward
// (pending -> in_progress -> completed/skipped). An objective already at or
// past status is left alone and reports no change. The comparison and the
// write happen under one lock.
func (s *SessionStore) AdvanceObjectiveStatus(
	ctx context.Context,
	id string,
	status interview.ObjectiveStatus,
	source, notes string,
) (bool, error) {
	return s.updateObjective(ctx, id, status, source, notes, true)
}

func (s *SessionStore) updateObjective(
	ctx context.Context,
	id string,
	status interview.ObjectiveStatus,
	source, notes string,
	forwardOnly bool,
) (bool, error) {
	if !status.IsValid() {
		return false, fmt.Errorf("objective %s: invalid status %q", id, status)
	}

	s.mu.Lock()
	obj, ok := s.objectives[id]
	if !ok || obj.Phase != s.phase {
		phase := s.phase
		s.mu.Unlock()
		s.logger.Debug("objective_update_ignored",
			"objective_id", id,
			"status", string(status),
			"phase", string(phase),
		)
		return false, fmt.Errorf("%w: %s", interview.ErrUnknownObjective, id)
	}

	if forwardOnly && statusRank(obj.Status) >= statusRank(status) {
		s.mu.Unlock()
		return false, nil
	}

	if status == interview.ObjectiveCompleted && s.cfg.EnforceObjectiveDependencies {
		if missing := s.unsatisfiedDependenciesLocked(obj); len(missing) > 0 {
			s.mu.Unlock()
			s.logger.Warn("objective_dependencies_unsatisfied",
				"objective_id", id,
				"missing", strings.Join(missing, ","),
			)
			return false, fmt.Errorf("%w: %s needs %s", interview.ErrObjectiveDependency, id, strings.Join(missing, ", "))
		}
	}

	if obj.Status == status {
		s.mu.Unlock()
		return false, nil
	}

	old := obj.Status
	obj.Status = status
	obj.Source = source
	obj.Notes = notes
	obj.UpdatedAt = time.Now().UTC()
	phase := obj.Phase
	s.mu.Unlock()

	s.logger.Info("objective_status_changed",
		"objective_id", id,
		"from", string(old),
		"to", string(status),
		"source", source,
	)
	s.publish(ctx, &commbus.ObjectiveStatusChanged{
		ObjectiveID: id,
		Phase:       phase,
		OldStatus:   old,
		NewStatus:   status,
		Source:      source,
		Notes:       notes,
	})
	return true, nil
}

func statusRank(s interview.ObjectiveStatus) int {
	switch s {
	case interview.ObjectiveInProgress:
		return 1
	case interview.ObjectiveCompleted, interview.ObjectiveSkipped:
		return 2
	}
	return 0
}

func (s *SessionStore) unsatisfiedDependenciesLocked(obj *interview.Objective) []string {
	var missing []string
	for _, dep := range obj.DependsOn {
		d, ok := s.objectives[dep]
		if !ok || !d.Status.IsSatisfied() {
			missing = append(missing, dep)
		}
	}
	return missing
}

// ObjectiveStatus returns the status of an objective.
func (s *SessionStore) ObjectiveStatus(id string) (interview.ObjectiveStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objectives[id]
	if !ok {
		return "", false
	}
	return obj.Status, true
}

// ObjectiveStatuses returns a status map of every registered objective.
func (s *SessionStore) ObjectiveStatuses() map[string]interview.ObjectiveStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]interview.ObjectiveStatus, len(s.objectives))
	for id, obj := range s.objectives {
		result[id] = obj.Status
	}
	return result
}

// Objectives returns copies of every registered objective in registration order.
func (s *SessionStore) Objectives() []*interview.Objective {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objectivesLocked("")
}

// ObjectivesForPhase returns copies of the objectives registered for phase.
func (s *SessionStore) ObjectivesForPhase(phase interview.Phase) []*interview.Objective {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objectivesLocked(phase)
}

func (s *SessionStore) objectivesLocked(phase interview.Phase) []*interview.Objective {
	result := make([]*interview.Objective, 0, len(s.objectiveOrder))
	for _, id := range s.objectiveOrder {
		obj := s.objectives[id]
		if phase != "" && obj.Phase != phase {
			continue
		}
		result = append(result, obj.Clone())
	}
	return result
}

// missingRequired returns the current phase and its required objectives that are
// neither completed nor skipped, read atomically.
func (s *SessionStore) missingRequired() (interview.Phase, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase, s.missingRequiredLocked()
}

func (s *SessionStore) missingRequiredLocked() []string {
	var missing []string
	for _, id := range s.objectiveOrder {
		obj := s.objectives[id]
		if obj.Phase == s.phase && obj.Required && !obj.Status.IsSatisfied() {
			missing = append(missing, id)
		}
	}
	return missing
}

// =============================================================================
// Pending Tool Call
// =============================================================================

// StorePendingToolCall stores the continuation slot, replacing any previous call.
// Callers check PendingToolCall first; TryStorePendingToolCall does both atomically.
func (s *SessionStore) StorePendingToolCall(callID, toolName, statusHint string) *interview.PendingToolCall {
	call := &interview.PendingToolCall{
		CallID:     callID,
		ToolName:   toolName,
		StatusHint: statusHint,
		CreatedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	previous := s.pending
	s.pending = call
	s.pendingClaimed = false
	s.mu.Unlock()

	if previous != nil {
		s.logger.Warn("pending_tool_call_overwritten",
			"previous_call_id", previous.CallID,
			"call_id", callID,
		)
	}
	return call.Clone()
}

// TryStorePendingToolCall stores the call only if the slot is empty.
func (s *SessionStore) TryStorePendingToolCall(callID, toolName, statusHint string) (*interview.PendingToolCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return nil, fmt.Errorf("%w: %s (%s)", interview.ErrPromptAlreadyPending, s.pending.ToolName, s.pending.CallID)
	}
	s.pending = &interview.PendingToolCall{
		CallID:     callID,
		ToolName:   toolName,
		StatusHint: statusHint,
		CreatedAt:  time.Now().UTC(),
	}
	s.pendingClaimed = false
	return s.pending.Clone(), nil
}

// PendingToolCall returns a copy of the pending call, or nil.
func (s *SessionStore) PendingToolCall() *interview.PendingToolCall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending.Clone()
}

// ClearPendingToolCall empties the slot and returns what was there.
func (s *SessionStore) ClearPendingToolCall() *interview.PendingToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.pending
	s.pending = nil
	s.pendingClaimed = false
	return previous
}

// claimPendingToolCall marks the pending call as being completed so that a
// concurrent completion loses. An empty callID matches any call.
func (s *SessionStore) claimPendingToolCall(callID string) (*interview.PendingToolCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil || s.pendingClaimed {
		return nil, false
	}
	if callID != "" && s.pending.CallID != callID {
		return nil, false
	}
	s.pendingClaimed = true
	return s.pending.Clone(), true
}

// clearClaimedToolCall clears the slot if it still holds callID.
func (s *SessionStore) clearClaimedToolCall(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil || s.pending.CallID != callID {
		return false
	}
	s.pending = nil
	s.pendingClaimed = false
	return true
}

// =============================================================================
// Transcript
// =============================================================================

func (s *SessionStore) appendMessage(msg *interview.Message) string {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return msg.ID
}

// AppendUserMessage appends a user message and returns its id for failure correlation.
func (s *SessionStore) AppendUserMessage(text string, isSystemGenerated bool) string {
	return s.appendMessage(&interview.Message{
		Role:              interview.RoleUser,
		Text:              text,
		IsSystemGenerated: isSystemGenerated,
	})
}

// AppendUserMessageWithToolChoice appends a system-generated user message that forces a tool.
func (s *SessionStore) AppendUserMessageWithToolChoice(text, toolChoice string) string {
	return s.appendMessage(&interview.Message{
		Role:              interview.RoleUser,
		Text:              text,
		IsSystemGenerated: true,
		ToolChoice:        toolChoice,
	})
}

// AppendDeveloperMessage appends engine guidance for the model.
func (s *SessionStore) AppendDeveloperMessage(text, toolChoice string) string {
	return s.appendMessage(&interview.Message{
		Role:              interview.RoleDeveloper,
		Text:              text,
		IsSystemGenerated: true,
		ToolChoice:        toolChoice,
	})
}

// AppendToolResult records the output returned for a tool call.
func (s *SessionStore) AppendToolResult(callID string, output *interview.ToolOutput, instruction string) string {
	payload := map[string]any{"status": string(output.Status)}
	for k, v := range output.Auxiliary {
		payload[k] = v
	}
	if instruction != "" {
		payload["instruction"] = instruction
	}
	return s.appendMessage(&interview.Message{
		Role:              interview.RoleToolResult,
		Text:              output.Message,
		IsSystemGenerated: true,
		ToolCallID:        callID,
		Payload:           payload,
	})
}

// BeginAssistantMessage opens an in-progress assistant message.
// An empty id is generated.
func (s *SessionStore) BeginAssistantMessage(id string) string {
	return s.appendMessage(&interview.Message{
		ID:         id,
		Role:       interview.RoleAssistant,
		InProgress: true,
	})
}

// UpdateAssistantMessage appends streamed text to an in-progress assistant message.
func (s *SessionStore) UpdateAssistantMessage(id, delta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findMessageLocked(id)
	if msg == nil || msg.Role != interview.RoleAssistant {
		return fmt.Errorf("assistant message %s not found", id)
	}
	if !msg.InProgress {
		return fmt.Errorf("assistant message %s is finalized", id)
	}
	msg.Text += delta
	return nil
}

// FinalizeAssistantMessage closes an assistant message. A non-empty text replaces
// the streamed text.
func (s *SessionStore) FinalizeAssistantMessage(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findMessageLocked(id)
	if msg == nil || msg.Role != interview.RoleAssistant {
		return fmt.Errorf("assistant message %s not found", id)
	}
	if !msg.InProgress {
		return fmt.Errorf("assistant message %s is finalized", id)
	}
	if text != "" {
		msg.Text = text
	}
	msg.InProgress = false
	return nil
}

// MarkUserMessageFailed flags a user message the transport could not deliver.
func (s *SessionStore) MarkUserMessageFailed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findMessageLocked(id)
	if msg == nil || msg.Role != interview.RoleUser {
		return false
	}
	msg.Failed = true
	return true
}

func (s *SessionStore) findMessageLocked(id string) *interview.Message {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return s.messages[i]
		}
	}
	return nil
}

// Messages returns copies of the transcript.
func (s *SessionStore) Messages() []*interview.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*interview.Message, len(s.messages))
	for i, m := range s.messages {
		result[i] = m.Clone()
	}
	return result
}

// =============================================================================
// Artifacts
// =============================================================================

// AddArtifact stores a record and writes it through to the persistence collaborator.
//
// The in-memory record is the truth for the session. A persistence failure is
// logged, surfaced as a status message and returned as a PersistenceError, but
// the record stays.
func (s *SessionStore) AddArtifact(ctx context.Context, content interview.ArtifactContent) (*interview.ArtifactRecord, error) {
	if content == nil {
		return nil, fmt.Errorf("artifact content is nil")
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}

	record := &interview.ArtifactRecord{
		ID:        uuid.NewString(),
		Content:   interview.CloneArtifactContent(content),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.artifacts = append(s.artifacts, record)
	s.mu.Unlock()

	s.publish(ctx, &commbus.ArtifactRecordProduced{Record: record.Clone()})

	if s.persister == nil {
		return record.Clone(), nil
	}

	persistedID, err := s.persist(ctx, content)
	if err != nil {
		s.logger.Error("artifact_persist_failed",
			"record_id", record.ID,
			"record_type", content.RecordType(),
			"error", err.Error(),
		)
		s.publish(ctx,
			&commbus.ArtifactPersistFailed{
				RecordID:   record.ID,
				RecordType: content.RecordType(),
				Error:      err.Error(),
			},
			&commbus.ErrorOccurred{Message: s.cfg.ProcessingFailedMessage, Detail: err.Error()},
		)
		return record.Clone(), err
	}

	s.mu.Lock()
	record.PersistedID = persistedID
	result := record.Clone()
	s.mu.Unlock()

	s.publish(ctx, &commbus.ArtifactRecordPersisted{
		RecordID:    record.ID,
		RecordType:  content.RecordType(),
		PersistedID: persistedID,
	})
	return result, nil
}

// persist encodes and writes content with the configured timeout. Never called with mu held.
func (s *SessionStore) persist(ctx context.Context, content interview.ArtifactContent) (string, error) {
	recordType := content.RecordType()

	payload, err := interview.EncodeArtifactContent(content)
	if err != nil {
		observability.RecordPersistence(recordType, "error")
		return "", interview.NewPersistenceError(recordType, err)
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeoutDuration())
	defer cancel()

	id, err := s.persister.Persist(pctx, recordType, payload)
	if err != nil {
		observability.RecordPersistence(recordType, "error")
		return "", interview.NewPersistenceError(recordType, err)
	}
	observability.RecordPersistence(recordType, "success")
	return id, nil
}

// Artifacts returns copies of records of one type, or all records for an empty type.
func (s *SessionStore) Artifacts(recordType string) []*interview.ArtifactRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*interview.ArtifactRecord, 0, len(s.artifacts))
	for _, r := range s.artifacts {
		if recordType == "" || r.RecordType() == recordType {
			result = append(result, r.Clone())
		}
	}
	return result
}

// Artifact returns one record by id.
func (s *SessionStore) Artifact(id string) (*interview.ArtifactRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.artifacts {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return nil, false
}

// =============================================================================
// Applicant Profile
// =============================================================================

// StoreApplicantProfile records the confirmed profile and persists it.
func (s *SessionStore) StoreApplicantProfile(ctx context.Context, profile *interview.ApplicantProfile) (*interview.ArtifactRecord, error) {
	if profile == nil {
		return nil, fmt.Errorf("applicant profile is nil")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	stored := *interview.CloneArtifactContent(profile).(*interview.ApplicantProfile)

	s.mu.Lock()
	s.profile = &stored
	s.mu.Unlock()

	s.publish(ctx, &commbus.ApplicantProfileStored{Profile: &stored})
	return s.AddArtifact(ctx, &stored)
}

// ApplicantProfile returns the stored profile, or nil.
func (s *SessionStore) ApplicantProfile() *interview.ApplicantProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.profile == nil {
		return nil
	}
	return interview.CloneArtifactContent(s.profile).(*interview.ApplicantProfile)
}

// =============================================================================
// Timeline
// =============================================================================

// CreateTimelineEntry adds an entry. Ids must be unique.
func (s *SessionStore) CreateTimelineEntry(ctx context.Context, entry *interview.TimelineEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	stored := *entry

	s.mu.Lock()
	if s.timelineIndexLocked(entry.ID) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("timeline entry %s already exists", entry.ID)
	}
	s.timeline = append(s.timeline, &stored)
	s.mu.Unlock()

	c := stored
	s.publish(ctx, &commbus.TimelineCardCreated{Entry: &c})
	return nil
}

// UpdateTimelineEntry replaces an existing entry.
func (s *SessionStore) UpdateTimelineEntry(ctx context.Context, entry *interview.TimelineEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	stored := *entry

	s.mu.Lock()
	idx := s.timelineIndexLocked(entry.ID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("timeline entry %s not found", entry.ID)
	}
	s.timeline[idx] = &stored
	s.mu.Unlock()

	c := stored
	s.publish(ctx, &commbus.TimelineCardUpdated{Entry: &c})
	return nil
}

// DeleteTimelineEntry removes an entry.
func (s *SessionStore) DeleteTimelineEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.timelineIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("timeline entry %s not found", id)
	}
	s.timeline = append(s.timeline[:idx:idx], s.timeline[idx+1:]...)
	s.mu.Unlock()

	s.publish(ctx, &commbus.TimelineCardDeleted{EntryID: id})
	return nil
}

// TimelineEntries returns copies of the timeline in order.
func (s *SessionStore) TimelineEntries() []*interview.TimelineEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timelineLocked()
}

func (s *SessionStore) timelineLocked() []*interview.TimelineEntry {
	result := make([]*interview.TimelineEntry, len(s.timeline))
	for i, e := range s.timeline {
		c := *e
		result[i] = &c
	}
	return result
}

func (s *SessionStore) timelineIndexLocked(id string) int {
	for i, e := range s.timeline {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// Knowledge Cards
// =============================================================================

// SetPendingKnowledgeCard stages a drafted card awaiting persistence.
func (s *SessionStore) SetPendingKnowledgeCard(card *interview.KnowledgeCard) {
	var stored *interview.KnowledgeCard
	if card != nil {
		stored = interview.CloneArtifactContent(card).(*interview.KnowledgeCard)
	}

	s.mu.Lock()
	previous := s.pendingKnowledgeCard
	s.pendingKnowledgeCard = stored
	s.mu.Unlock()

	if previous != nil && stored != nil && previous.ID != stored.ID {
		s.logger.Warn("pending_knowledge_card_replaced", "previous_card_id", previous.ID, "card_id", stored.ID)
	}
}

// PendingKnowledgeCard returns the staged card, or nil.
func (s *SessionStore) PendingKnowledgeCard() *interview.KnowledgeCard {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pendingKnowledgeCard == nil {
		return nil
	}
	return interview.CloneArtifactContent(s.pendingKnowledgeCard).(*interview.KnowledgeCard)
}

// clearPendingKnowledgeCard drops the staged card if it matches cardID.
func (s *SessionStore) clearPendingKnowledgeCard(cardID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingKnowledgeCard == nil || s.pendingKnowledgeCard.ID != cardID {
		return false
	}
	s.pendingKnowledgeCard = nil
	return true
}

// SetPlan replaces the knowledge-card plan.
func (s *SessionStore) SetPlan(ctx context.Context, items []interview.PlanItem) {
	stored := make([]interview.PlanItem, len(items))
	copy(stored, items)
	for i := range stored {
		if stored[i].Status == "" {
			stored[i].Status = interview.PlanItemPending
		}
	}

	s.mu.Lock()
	s.plan = stored
	snapshot := s.planLocked()
	s.mu.Unlock()

	s.publish(ctx, &commbus.KnowledgeCardPlanUpdated{Items: snapshot})
}

// UpdatePlanItemStatus implements PlanItemStatusUpdater.
func (s *SessionStore) UpdatePlanItemStatus(ctx context.Context, itemID string, status interview.PlanItemStatus) error {
	s.mu.Lock()
	found := false
	for i := range s.plan {
		if s.plan[i].ID == itemID {
			s.plan[i].Status = status
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return fmt.Errorf("plan item %s not found", itemID)
	}
	snapshot := s.planLocked()
	s.mu.Unlock()

	s.publish(ctx, &commbus.KnowledgeCardPlanUpdated{Items: snapshot})
	return nil
}

// Plan returns a copy of the knowledge-card plan.
func (s *SessionStore) Plan() []interview.PlanItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.planLocked()
}

func (s *SessionStore) planLocked() []interview.PlanItem {
	result := make([]interview.PlanItem, len(s.plan))
	copy(result, s.plan)
	return result
}

// =============================================================================
// Sections
// =============================================================================

// SetEnabledSections records the resume sections the user enabled.
func (s *SessionStore) SetEnabledSections(ctx context.Context, sections []string) {
	stored := append([]string(nil), sections...)

	s.mu.Lock()
	s.enabledSections = stored
	s.mu.Unlock()

	s.publish(ctx, &commbus.SectionsConfigured{Enabled: append([]string(nil), stored...)})
}

// EnabledSections returns the enabled sections.
func (s *SessionStore) EnabledSections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.enabledSections...)
}

// =============================================================================
// Processing State
// =============================================================================

// SetProcessing updates the busy flag and status line.
func (s *SessionStore) SetProcessing(ctx context.Context, processing bool, statusMessage string) {
	s.mu.Lock()
	s.processing = processing
	s.statusMessage = statusMessage
	s.mu.Unlock()

	s.publish(ctx, &commbus.ProcessingStateChanged{IsProcessing: processing, StatusMessage: statusMessage})
}

// SetWaiting updates the waiting state. Unchanged states publish nothing.
func (s *SessionStore) SetWaiting(ctx context.Context, state interview.WaitingState) {
	s.mu.Lock()
	if s.waiting == state {
		s.mu.Unlock()
		return
	}
	s.waiting = state
	s.mu.Unlock()

	s.publish(ctx, &commbus.WaitingStateChanged{State: state})
}

// IsProcessing reports the busy flag.
func (s *SessionStore) IsProcessing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processing
}

// Waiting returns the waiting state.
func (s *SessionStore) Waiting() interview.WaitingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.waiting
}

// =============================================================================
// Snapshot and Restore
// =============================================================================

// Snapshot returns a consistent copy of the whole session.
func (s *SessionStore) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Phase:           s.phase,
		Objectives:      s.objectivesLocked(""),
		PendingToolCall: s.pending.Clone(),
		Plan:            s.planLocked(),
		EnabledSections: append([]string(nil), s.enabledSections...),
		Timeline:        s.timelineLocked(),
		IsProcessing:    s.processing,
		StatusMessage:   s.statusMessage,
		Waiting:         s.waiting,
		TakenAt:         time.Now().UTC(),
	}
	if s.pendingKnowledgeCard != nil {
		c := *s.pendingKnowledgeCard
		snap.PendingKnowledgeCard = &c
	}
	if s.profile != nil {
		c := *s.profile
		snap.Profile = &c
	}
	snap.Artifacts = make([]*interview.ArtifactRecord, len(s.artifacts))
	for i, r := range s.artifacts {
		snap.Artifacts[i] = r.Clone()
	}
	snap.Messages = make([]*interview.Message, len(s.messages))
	for i, m := range s.messages {
		snap.Messages[i] = m.Clone()
	}
	return snap
}

// RestoreSource tags objective updates derived from restored records.
const RestoreSource = "restore"

// Restore rehydrates artifacts from persisted records. Records already present
// (same persisted id) are skipped. Undecodable records are logged and skipped.
// A restored profile completes applicant_profile and restored timeline entries
// start skeleton_timeline when those objectives belong to the current phase.
// Returns the number of records restored.
func (s *SessionStore) Restore(ctx context.Context, records []StoredRecord) int {
	restored := 0
	var hasProfile, hasTimeline bool

	s.mu.Lock()
	known := make(map[string]bool, len(s.artifacts))
	for _, r := range s.artifacts {
		if r.PersistedID != "" {
			known[r.PersistedID] = true
		}
	}

	for _, rec := range records {
		if known[rec.ID] {
			continue
		}
		content, err := interview.DecodeArtifactContent(rec.RecordType, rec.Payload)
		if err != nil {
			s.logger.Warn("restore_record_skipped", "record_id", rec.ID, "record_type", rec.RecordType, "error", err.Error())
			continue
		}

		s.artifacts = append(s.artifacts, &interview.ArtifactRecord{
			ID:          uuid.NewString(),
			Content:     content,
			PersistedID: rec.ID,
			CreatedAt:   rec.CreatedAt,
		})
		known[rec.ID] = true
		restored++

		switch c := content.(type) {
		case *interview.ApplicantProfile:
			s.profile = interview.CloneArtifactContent(c).(*interview.ApplicantProfile)
			hasProfile = true
		case *interview.TimelineEntry:
			e := *c
			if idx := s.timelineIndexLocked(e.ID); idx >= 0 {
				s.timeline[idx] = &e
			} else {
				s.timeline = append(s.timeline, &e)
			}
			hasTimeline = true
		}
	}
	s.mu.Unlock()

	// The phase is not persisted; objectives of the current phase that the
	// restored records prove are moved forward.
	if hasProfile {
		s.restoreObjective(ctx, interview.ObjectiveApplicantProfile, interview.ObjectiveCompleted)
	}
	if hasTimeline {
		s.restoreObjective(ctx, interview.ObjectiveSkeletonTimeline, interview.ObjectiveInProgress)
	}

	s.logger.Info("session_restored", "records", restored)
	s.publish(ctx, &commbus.SnapshotUpdated{Reason: "restored"})
	return restored
}

func (s *SessionStore) restoreObjective(ctx context.Context, id string, status interview.ObjectiveStatus) {
	_, err := s.AdvanceObjectiveStatus(ctx, id, status, RestoreSource, "restored from persisted records")
	if err != nil && !errors.Is(err, interview.ErrUnknownObjective) {
		s.logger.Warn("restore_objective_failed", "objective_id", id, "error", err.Error())
	}
}
