package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
)

// Built-in tool names.
const (
	ToolGetUserUpload            = "get_user_upload"
	ToolGetUserOption            = "get_user_option"
	ToolSubmitForValidation      = "submit_for_validation"
	ToolGetApplicantProfile      = "get_applicant_profile"
	ToolConfigureEnabledSections = "configure_enabled_sections"
	ToolDisplayKnowledgeCardPlan = "display_knowledge_card_plan"
	ToolSubmitKnowledgeCard      = "submit_knowledge_card"
	ToolCreateTimelineCard       = "create_timeline_card"
	ToolUpdateTimelineCard       = "update_timeline_card"
	ToolDeleteTimelineCard       = "delete_timeline_card"
	ToolCreatePublicationCard    = "create_publication_card"
	ToolPersistData              = "persist_data"
	ToolListArtifacts            = "list_artifacts"
	ToolSetObjectiveStatus       = "set_objective_status"
	ToolNextPhase                = "next_phase"
)

// ObjectiveSourceModel tags objective updates made through set_objective_status.
const ObjectiveSourceModel = "model"

// DefaultSections are the resume sections offered when the model names none.
var DefaultSections = []string{
	"summary", "experience", "education", "skills",
	"projects", "publications", "awards", "volunteering",
}

// NewBuiltinRegistry returns a registry holding every built-in tool.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	for _, def := range builtinDefinitions() {
		if err := r.Register(def); err != nil {
			panic(fmt.Sprintf("built-in tool %s is invalid: %v", def.Name, err))
		}
	}
	return r
}

func builtinDefinitions() []*Definition {
	timelineFields := map[string]*Schema{
		"id":           String("Card id. Generated when omitted."),
		"title":        String("Role title"),
		"organization": String("Employer or institution"),
		"location":     String("City or remote"),
		"start":        String("Start date, free form"),
		"end":          String("End date, free form"),
		"summary":      String("One-line summary"),
	}

	return []*Definition{
		{
			Name:        ToolGetUserUpload,
			Description: "Ask the user to upload one or more documents.",
			Mode:        ModePrompt,
			Parameters: Object(map[string]*Schema{
				"title":          String("Short heading for the upload card"),
				"prompt":         String("What to upload and why"),
				"purpose":        String("Machine-readable purpose, e.g. resume or writing_sample"),
				"allowed_types":  Array(String(""), "Accepted file extensions"),
				"allow_multiple": Boolean("Accept several files"),
			}, "prompt"),
			Handler: handleGetUserUpload,
		},
		{
			Name:        ToolGetUserOption,
			Description: "Ask the user to choose among options.",
			Mode:        ModePrompt,
			Parameters: Object(map[string]*Schema{
				"question": String("The question to show"),
				"options": Array(Object(map[string]*Schema{
					"id":          String("Stable option id"),
					"label":       String("Label shown to the user"),
					"description": String("Optional detail"),
				}, "id", "label"), "Options to choose from"),
				"allow_multiple": Boolean("Allow several selections"),
				"allow_cancel":   Boolean("Offer a cancel button"),
			}, "question", "options"),
			Handler: handleGetUserOption,
		},
		{
			Name:        ToolSubmitForValidation,
			Description: "Show collected data to the user for confirmation or edits.",
			Mode:        ModePrompt,
			Parameters: Object(map[string]*Schema{
				"data_type": String("Objective the data belongs to, e.g. skeleton_timeline"),
				"summary":   String("What the user is asked to confirm"),
				"payload":   Object(nil),
			}, "data_type", "summary"),
			Handler: handleSubmitForValidation,
		},
		{
			Name:        ToolGetApplicantProfile,
			Description: "Open the applicant profile form, optionally prefilled.",
			Mode:        ModePrompt,
			Parameters: Object(map[string]*Schema{
				"prefill": Object(map[string]*Schema{
					"name":     String(""),
					"email":    String(""),
					"phone":    String(""),
					"location": String(""),
					"headline": String(""),
					"links":    Array(String(""), ""),
				}),
			}),
			Handler: handleGetApplicantProfile,
		},
		{
			Name:        ToolConfigureEnabledSections,
			Description: "Propose which resume sections to enable.",
			Mode:        ModePrompt,
			Parameters: Object(map[string]*Schema{
				"proposed":  Array(String(""), "Sections to enable"),
				"available": Array(String(""), "Sections the user may choose from"),
				"rationale": String("Why these sections"),
			}, "proposed"),
			Handler: handleConfigureEnabledSections,
		},
		{
			Name:        ToolDisplayKnowledgeCardPlan,
			Description: "Show the list of knowledge cards you plan to draft.",
			Mode:        ModeImmediate,
			Parameters: Object(map[string]*Schema{
				"items": Array(Object(map[string]*Schema{
					"id":    String("Stable plan item id"),
					"title": String("Role or project"),
					"status": Enum("Item status",
						string(interview.PlanItemPending), string(interview.PlanItemInProgress),
						string(interview.PlanItemCompleted), string(interview.PlanItemSkipped)),
				}, "id", "title"), "Plan items in order"),
			}, "items"),
			Handler: handleDisplayKnowledgeCardPlan,
		},
		{
			Name:        ToolSubmitKnowledgeCard,
			Description: "Submit a drafted knowledge card for the user to approve.",
			Mode:        ModePrompt,
			Parameters: Object(map[string]*Schema{
				"card": Object(map[string]*Schema{
					"id":           String("Card id. Generated when omitted."),
					"title":        String(""),
					"organization": String(""),
					"summary":      String(""),
					"achievements": Array(String(""), ""),
					"skills":       Array(String(""), ""),
					"plan_item_id": String("Plan item this card fulfils"),
				}, "title"),
			}, "card"),
			Handler: handleSubmitKnowledgeCard,
		},
		{
			Name:        ToolCreateTimelineCard,
			Description: "Add a position to the skeleton timeline.",
			Mode:        ModeImmediate,
			Parameters:  Object(timelineFields, "title"),
			Handler:     handleCreateTimelineCard,
		},
		{
			Name:        ToolUpdateTimelineCard,
			Description: "Edit fields of an existing timeline card.",
			Mode:        ModeImmediate,
			Parameters:  Object(timelineFields, "id"),
			Handler:     handleUpdateTimelineCard,
		},
		{
			Name:        ToolDeleteTimelineCard,
			Description: "Remove a timeline card.",
			Mode:        ModeImmediate,
			Parameters:  Object(map[string]*Schema{"id": String("Card id")}, "id"),
			Handler:     handleDeleteTimelineCard,
		},
		{
			Name:        ToolCreatePublicationCard,
			Description: "Record a publication, talk or patent.",
			Mode:        ModeImmediate,
			Parameters: Object(map[string]*Schema{
				"title":   String(""),
				"venue":   String(""),
				"year":    Integer(""),
				"url":     String(""),
				"authors": Array(String(""), ""),
			}, "title"),
			Handler: handleCreatePublicationCard,
		},
		{
			Name:        ToolPersistData,
			Description: "Save structured data such as the candidate dossier.",
			Mode:        ModeImmediate,
			Parameters: Object(map[string]*Schema{
				"data_type": String("Record type, e.g. candidate_dossier"),
				"data":      Object(nil),
			}, "data_type", "data"),
			Handler: handlePersistData,
		},
		{
			Name:        ToolListArtifacts,
			Description: "List artifacts collected in this session.",
			Mode:        ModeImmediate,
			Parameters: Object(map[string]*Schema{
				"record_type": String("Only list this record type"),
			}),
			Handler: handleListArtifacts,
		},
		{
			Name:        ToolSetObjectiveStatus,
			Description: "Update the status of an objective in the current phase.",
			Mode:        ModeImmediate,
			Parameters: Object(map[string]*Schema{
				"objective_id": String(""),
				"status": Enum("",
					string(interview.ObjectivePending), string(interview.ObjectiveInProgress),
					string(interview.ObjectiveCompleted), string(interview.ObjectiveSkipped)),
				"notes": String(""),
			}, "objective_id", "status"),
			Handler: handleSetObjectiveStatus,
		},
		{
			Name:        ToolNextPhase,
			Description: "Move to the next interview phase. Asks the user when objectives are still open.",
			Mode:        ModePrompt,
			Parameters: Object(map[string]*Schema{
				"reason": String("Why the interview should move on"),
			}),
			Handler: handleNextPhase,
		},
	}
}

// =============================================================================
// Prompt tools
// =============================================================================

func handleGetUserUpload(_ context.Context, inv *Invocation) (*Result, error) {
	types, _ := inv.Args.Strings("allowed_types")
	prompt, _ := inv.Args.String("prompt")
	return Prompted(&interview.UploadPrompt{
		Title:         inv.Args.StringDefault("title", "Upload a document"),
		Prompt:        prompt,
		Purpose:       inv.Args.StringDefault("purpose", ""),
		AllowedTypes:  types,
		AllowMultiple: inv.Args.BoolDefault("allow_multiple", false),
	}, "Waiting for upload"), nil
}

func handleGetUserOption(_ context.Context, inv *Invocation) (*Result, error) {
	question, _ := inv.Args.String("question")
	items, _ := inv.Args.Objects("options")
	if len(items) == 0 {
		return nil, argumentErrorf("options must not be empty")
	}

	options := make([]interview.ChoiceOption, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		id, _ := item.String("id")
		if seen[id] {
			return nil, argumentErrorf("duplicate option id %q", id)
		}
		seen[id] = true
		label, _ := item.String("label")
		options = append(options, interview.ChoiceOption{
			ID:          id,
			Label:       label,
			Description: item.StringDefault("description", ""),
		})
	}

	return Prompted(&interview.ChoicePrompt{
		Question:      question,
		Options:       options,
		AllowMultiple: inv.Args.BoolDefault("allow_multiple", false),
		AllowCancel:   inv.Args.BoolDefault("allow_cancel", true),
	}, "Waiting for your choice"), nil
}

func handleSubmitForValidation(_ context.Context, inv *Invocation) (*Result, error) {
	dataType, _ := inv.Args.String("data_type")
	summary, _ := inv.Args.String("summary")
	payload, _ := inv.Args.Map("payload")

	if dataType == interview.ObjectiveSkeletonTimeline && len(payload) == 0 {
		entries := inv.Store().TimelineEntries()
		if len(entries) == 0 {
			return nil, argumentErrorf("the timeline is empty; create timeline cards first")
		}
		payload = map[string]any{"entries": entries}
	}

	return Prompted(&interview.ValidationPrompt{
		DataType: dataType,
		Summary:  summary,
		Payload:  payload,
	}, "Waiting for you to review"), nil
}

func handleGetApplicantProfile(_ context.Context, inv *Invocation) (*Result, error) {
	prefill := inv.Store().ApplicantProfile()
	if obj, ok := inv.Args.Object("prefill"); ok {
		var profile interview.ApplicantProfile
		if err := obj.Decode(&profile); err != nil {
			return nil, argumentErrorf("prefill: %v", err)
		}
		prefill = &profile
	}
	return Prompted(&interview.ProfileIntakePrompt{Prefill: prefill}, "Waiting for your profile"), nil
}

func handleConfigureEnabledSections(_ context.Context, inv *Invocation) (*Result, error) {
	proposed, _ := inv.Args.Strings("proposed")
	available, ok := inv.Args.Strings("available")
	if !ok || len(available) == 0 {
		available = slices.Clone(DefaultSections)
	}
	for _, section := range proposed {
		if !slices.Contains(available, section) {
			return nil, argumentErrorf("proposed section %q is not available", section)
		}
	}

	return Prompted(&interview.SectionTogglePrompt{
		Proposed:  proposed,
		Available: available,
		Rationale: inv.Args.StringDefault("rationale", ""),
	}, "Waiting for section choices"), nil
}

func handleSubmitKnowledgeCard(_ context.Context, inv *Invocation) (*Result, error) {
	obj, _ := inv.Args.Object("card")
	var card interview.KnowledgeCard
	if err := obj.Decode(&card); err != nil {
		return nil, argumentErrorf("card: %v", err)
	}
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if err := card.Validate(); err != nil {
		return nil, argumentErrorf("%v", err)
	}
	if card.PlanItemID != "" {
		known := slices.ContainsFunc(inv.Store().Plan(), func(item interview.PlanItem) bool {
			return item.ID == card.PlanItemID
		})
		if !known {
			return nil, argumentErrorf("plan item %q is not in the knowledge card plan", card.PlanItemID)
		}
	}

	staged := card
	return Prompted(
		&interview.KnowledgeCardReviewPrompt{Card: &card},
		"Waiting for card review",
		&commbus.KnowledgeCardSubmissionPending{Card: &staged},
	), nil
}

func handleNextPhase(ctx context.Context, inv *Invocation) (*Result, error) {
	phases := inv.Kernel.Phases()
	from := inv.Store().Phase()
	to, ok := from.Next()
	if !ok {
		return nil, errors.New("the interview is already complete")
	}
	reason := inv.Args.StringDefault("reason", "")

	if phases.CanAdvance() {
		_, err := phases.AdvanceToNext(ctx, reason, false)
		if err == nil {
			return Immediate(
				interview.NewToolOutput(interview.ToolStatusPhaseAdvanced,
					fmt.Sprintf("Advanced from %s to %s.", from, to),
					map[string]any{"from": string(from), "to": string(to)}),
				fmt.Sprintf("Introduce the goals of the %s phase to the user.", to),
			), nil
		}
		var transitionErr *interview.InvalidPhaseTransitionError
		if !errors.As(err, &transitionErr) {
			return nil, err
		}
		// objectives changed underneath us; fall back to asking the user
	}

	return Prompted(&interview.PhaseAdvancePrompt{
		From:    from,
		To:      to,
		Missing: phases.MissingObjectives(),
		Reason:  reason,
	}, "Waiting for phase approval"), nil
}

// =============================================================================
// Immediate tools
// =============================================================================

func handleDisplayKnowledgeCardPlan(ctx context.Context, inv *Invocation) (*Result, error) {
	objs, _ := inv.Args.Objects("items")
	if len(objs) == 0 {
		return nil, argumentErrorf("items must not be empty")
	}

	items := make([]interview.PlanItem, 0, len(objs))
	seen := make(map[string]bool, len(objs))
	for _, obj := range objs {
		id, _ := obj.String("id")
		if seen[id] {
			return nil, argumentErrorf("duplicate plan item id %q", id)
		}
		seen[id] = true
		title, _ := obj.String("title")
		items = append(items, interview.PlanItem{
			ID:     id,
			Title:  title,
			Status: interview.PlanItemStatus(obj.StringDefault("status", string(interview.PlanItemPending))),
		})
	}

	inv.Store().SetPlan(ctx, items)
	return Immediate(interview.NewToolOutput(interview.ToolStatusCompleted,
		fmt.Sprintf("Knowledge card plan displayed with %d items.", len(items)),
		map[string]any{"item_count": len(items)}), ""), nil
}

func timelineEntryFromArgs(args interview.Arguments, base interview.TimelineEntry) interview.TimelineEntry {
	set := func(key string, field *string) {
		if v, ok := args.String(key); ok {
			*field = v
		}
	}
	set("id", &base.ID)
	set("title", &base.Title)
	set("organization", &base.Organization)
	set("location", &base.Location)
	set("start", &base.Start)
	set("end", &base.End)
	set("summary", &base.Summary)
	return base
}

func handleCreateTimelineCard(ctx context.Context, inv *Invocation) (*Result, error) {
	entry := timelineEntryFromArgs(inv.Args, interview.TimelineEntry{})
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := inv.Store().CreateTimelineEntry(ctx, &entry); err != nil {
		return nil, argumentErrorf("%v", err)
	}
	return Immediate(interview.NewToolOutput(interview.ToolStatusCompleted,
		fmt.Sprintf("Timeline card %q created.", entry.Title),
		map[string]any{"id": entry.ID}), ""), nil
}

func handleUpdateTimelineCard(ctx context.Context, inv *Invocation) (*Result, error) {
	id, _ := inv.Args.String("id")
	entries := inv.Store().TimelineEntries()
	idx := slices.IndexFunc(entries, func(e *interview.TimelineEntry) bool { return e.ID == id })
	if idx < 0 {
		return nil, argumentErrorf("no timeline card with id %q", id)
	}
	current := entries[idx]

	entry := timelineEntryFromArgs(inv.Args, *current)
	if err := inv.Store().UpdateTimelineEntry(ctx, &entry); err != nil {
		return nil, argumentErrorf("%v", err)
	}
	return Immediate(interview.NewToolOutput(interview.ToolStatusCompleted,
		fmt.Sprintf("Timeline card %q updated.", entry.Title),
		map[string]any{"id": entry.ID}), ""), nil
}

func handleDeleteTimelineCard(ctx context.Context, inv *Invocation) (*Result, error) {
	id, _ := inv.Args.String("id")
	if err := inv.Store().DeleteTimelineEntry(ctx, id); err != nil {
		return nil, argumentErrorf("%v", err)
	}
	return Immediate(interview.NewToolOutput(interview.ToolStatusCompleted,
		"Timeline card deleted.", map[string]any{"id": id}), ""), nil
}

func handleCreatePublicationCard(ctx context.Context, inv *Invocation) (*Result, error) {
	title, _ := inv.Args.String("title")
	year, _ := inv.Args.Int("year")
	authors, _ := inv.Args.Strings("authors")
	card := &interview.PublicationCard{
		ID:      uuid.NewString(),
		Title:   title,
		Venue:   inv.Args.StringDefault("venue", ""),
		Year:    year,
		URL:     inv.Args.StringDefault("url", ""),
		Authors: authors,
	}

	record, err := inv.Store().AddArtifact(ctx, card)
	if record == nil {
		return nil, argumentErrorf("%v", err)
	}
	if err := inv.Kernel.Bus().Publish(ctx, &commbus.PublicationCardAdded{Card: card}); err != nil {
		inv.Kernel.Logger().Warn("publish_failed", "event_type", commbus.TypePublicationCardAdded, "error", err.Error())
	}
	return Immediate(savedOutput(fmt.Sprintf("Publication %q added.", title), record, err), ""), nil
}

func handlePersistData(ctx context.Context, inv *Invocation) (*Result, error) {
	dataType, _ := inv.Args.String("data_type")
	data, _ := inv.Args.Map("data")

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, argumentErrorf("data: %v", err)
	}
	content, err := interview.DecodeArtifactContent(dataType, raw)
	if err != nil {
		return nil, argumentErrorf("%v", err)
	}

	var record *interview.ArtifactRecord
	if profile, ok := content.(*interview.ApplicantProfile); ok {
		record, err = inv.Store().StoreApplicantProfile(ctx, profile)
	} else {
		record, err = inv.Store().AddArtifact(ctx, content)
	}
	if record == nil {
		return nil, argumentErrorf("%v", err)
	}
	return Immediate(savedOutput(fmt.Sprintf("Saved %s.", dataType), record, err), ""), nil
}

// savedOutput reports a stored record. A persistence failure still completes
// the call because the record is kept for the session.
func savedOutput(message string, record *interview.ArtifactRecord, persistErr error) *interview.ToolOutput {
	aux := map[string]any{
		"record_id": record.ID,
		"persisted": persistErr == nil,
	}
	if persistErr != nil {
		message += " It could not be saved permanently yet."
	}
	return interview.NewToolOutput(interview.ToolStatusCompleted, message, aux)
}

func handleListArtifacts(_ context.Context, inv *Invocation) (*Result, error) {
	recordType := inv.Args.StringDefault("record_type", "")
	records := inv.Store().Artifacts(recordType)

	listed := make([]map[string]any, 0, len(records))
	for _, r := range records {
		listed = append(listed, map[string]any{
			"id":          r.ID,
			"record_type": r.RecordType(),
			"persisted":   r.IsPersisted(),
			"created_at":  r.CreatedAt,
		})
	}
	return Immediate(interview.NewToolOutput(interview.ToolStatusCompleted,
		fmt.Sprintf("Found %d artifacts.", len(listed)),
		map[string]any{"count": len(listed), "artifacts": listed}), ""), nil
}

func handleSetObjectiveStatus(ctx context.Context, inv *Invocation) (*Result, error) {
	id, _ := inv.Args.String("objective_id")
	raw, _ := inv.Args.String("status")
	status, err := interview.ParseObjectiveStatus(raw)
	if err != nil {
		return nil, argumentErrorf("%v", err)
	}

	changed, err := inv.Store().SetObjectiveStatus(ctx, id, status, ObjectiveSourceModel, inv.Args.StringDefault("notes", ""))
	switch {
	case errors.Is(err, interview.ErrUnknownObjective):
		return nil, argumentErrorf("objective %q is not part of the %s phase", id, inv.Store().Phase())
	case err != nil:
		return nil, err
	}

	message := fmt.Sprintf("Objective %s is now %s.", id, status)
	if !changed {
		message = fmt.Sprintf("Objective %s was already %s.", id, status)
	}
	return Immediate(interview.NewToolOutput(interview.ToolStatusCompleted, message,
		map[string]any{"changed": changed}), ""), nil
}
