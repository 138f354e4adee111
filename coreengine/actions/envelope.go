package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
)

// Kind names a user action carried in an Envelope.
type Kind string

const (
	// KindSubmitUpload answers an upload prompt with files.
	KindSubmitUpload Kind = "submit_upload"
	// KindCancelUpload dismisses an upload prompt.
	KindCancelUpload Kind = "cancel_upload"
	// KindSubmitChoice answers a choice prompt.
	KindSubmitChoice Kind = "submit_choice"
	// KindCancelChoice dismisses a choice prompt.
	KindCancelChoice Kind = "cancel_choice"
	// KindSubmitValidation answers a validation prompt.
	KindSubmitValidation Kind = "submit_validation"
	// KindSubmitProfile answers the applicant profile form.
	KindSubmitProfile Kind = "submit_profile"
	// KindSubmitSections answers the section toggle.
	KindSubmitSections Kind = "submit_sections"
	// KindApproveKnowledgeCard approves the staged knowledge card.
	KindApproveKnowledgeCard Kind = "approve_knowledge_card"
	// KindRejectKnowledgeCard sends the staged knowledge card back.
	KindRejectKnowledgeCard Kind = "reject_knowledge_card"
	// KindApprovePhaseAdvance approves leaving the phase early.
	KindApprovePhaseAdvance Kind = "approve_phase_advance"
	// KindDenyPhaseAdvance keeps the interview in its phase.
	KindDenyPhaseAdvance Kind = "deny_phase_advance"
	// KindFinishTimeline marks timeline editing as done.
	KindFinishTimeline Kind = "finish_timeline"
	// KindSkipPhase forces the next phase.
	KindSkipPhase Kind = "skip_phase"
	// KindDocumentProcessed reports finished text extraction.
	KindDocumentProcessed Kind = "document_processed"
)

// Envelope is the transport form of a user action.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	CallID  string          `json:"call_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type choicePayload struct {
	Selected []string `json:"selected"`
}

type uploadPayload struct {
	Files []UploadedFile `json:"files"`
}

type sectionsPayload struct {
	Enabled []string `json:"enabled"`
}

type feedbackPayload struct {
	Feedback string `json:"feedback"`
}

// Apply decodes an envelope and runs the matching action.
func (t *Translator) Apply(ctx context.Context, env Envelope) error {
	switch env.Kind {
	case KindSubmitUpload:
		var p uploadPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		return t.SubmitUpload(ctx, env.CallID, p.Files)
	case KindCancelUpload:
		return t.CancelUpload(ctx, env.CallID)
	case KindSubmitChoice:
		var p choicePayload
		if err := decode(env, &p); err != nil {
			return err
		}
		return t.SubmitChoice(ctx, env.CallID, p.Selected)
	case KindCancelChoice:
		return t.CancelChoice(ctx, env.CallID)
	case KindSubmitValidation:
		var p ValidationDecision
		if err := decode(env, &p); err != nil {
			return err
		}
		return t.SubmitValidation(ctx, env.CallID, p)
	case KindSubmitProfile:
		var p interview.ApplicantProfile
		if err := decode(env, &p); err != nil {
			return err
		}
		return t.SubmitApplicantProfile(ctx, env.CallID, &p)
	case KindSubmitSections:
		var p sectionsPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		return t.SubmitSections(ctx, env.CallID, p.Enabled)
	case KindApproveKnowledgeCard:
		return t.ApproveKnowledgeCard(ctx, env.CallID)
	case KindRejectKnowledgeCard:
		var p feedbackPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		return t.RejectKnowledgeCard(ctx, env.CallID, p.Feedback)
	case KindApprovePhaseAdvance:
		return t.ApprovePhaseAdvance(ctx, env.CallID)
	case KindDenyPhaseAdvance:
		var p feedbackPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		return t.DenyPhaseAdvance(ctx, env.CallID, p.Feedback)
	case KindFinishTimeline:
		return t.FinishTimelineEditing(ctx)
	case KindSkipPhase:
		_, err := t.SkipToNextPhase(ctx)
		return err
	case KindDocumentProcessed:
		var p interview.DocumentExcerpt
		if err := decode(env, &p); err != nil {
			return err
		}
		return t.NotifyDocumentProcessed(ctx, &p)
	}
	return fmt.Errorf("unknown action %q", env.Kind)
}

// decode unmarshals the payload. An empty payload leaves dst zeroed.
func decode(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("invalid %s payload: %w", env.Kind, err)
	}
	return nil
}
