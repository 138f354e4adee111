package interview

// WaitingState tells UI projections what kind of human input is outstanding.
type WaitingState string

const (
	WaitingNone          WaitingState = ""
	WaitingUpload        WaitingState = "upload"
	WaitingSelection     WaitingState = "selection"
	WaitingValidation    WaitingState = "validation"
	WaitingIntake        WaitingState = "intake"
	WaitingSections      WaitingState = "section_toggle"
	WaitingKnowledgeCard WaitingState = "knowledge_card"
	WaitingPhaseApproval WaitingState = "phase_approval"
)

// Prompt is the closed set of on-screen prompts a tool call can open.
type Prompt interface {
	// Waiting returns the waiting state the prompt puts the session in.
	Waiting() WaitingState
}

// UploadPrompt asks the user for one or more files.
type UploadPrompt struct {
	Title         string   `json:"title"`
	Prompt        string   `json:"prompt"`
	Purpose       string   `json:"purpose,omitempty"`
	AllowedTypes  []string `json:"allowed_types,omitempty"`
	AllowMultiple bool     `json:"allow_multiple"`
}

func (*UploadPrompt) Waiting() WaitingState { return WaitingUpload }

// ChoiceOption is one selectable option.
type ChoiceOption struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// ChoicePrompt asks the user to pick among options.
type ChoicePrompt struct {
	Question      string         `json:"question"`
	Options       []ChoiceOption `json:"options"`
	AllowMultiple bool           `json:"allow_multiple"`
	AllowCancel   bool           `json:"allow_cancel"`
}

func (*ChoicePrompt) Waiting() WaitingState { return WaitingSelection }

// HasOption reports whether id is one of the offered options.
func (p *ChoicePrompt) HasOption(id string) bool {
	for _, opt := range p.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// ValidationPrompt asks the user to confirm or edit collected data.
type ValidationPrompt struct {
	DataType string         `json:"data_type"`
	Summary  string         `json:"summary"`
	Payload  map[string]any `json:"payload,omitempty"`
}

func (*ValidationPrompt) Waiting() WaitingState { return WaitingValidation }

// ProfileIntakePrompt opens the applicant profile form.
type ProfileIntakePrompt struct {
	Prefill *ApplicantProfile `json:"prefill,omitempty"`
}

func (*ProfileIntakePrompt) Waiting() WaitingState { return WaitingIntake }

// SectionTogglePrompt asks which resume sections to enable.
type SectionTogglePrompt struct {
	Proposed  []string `json:"proposed"`
	Available []string `json:"available"`
	Rationale string   `json:"rationale,omitempty"`
}

func (*SectionTogglePrompt) Waiting() WaitingState { return WaitingSections }

// KnowledgeCardReviewPrompt shows a drafted knowledge card for approval.
type KnowledgeCardReviewPrompt struct {
	Card *KnowledgeCard `json:"card"`
}

func (*KnowledgeCardReviewPrompt) Waiting() WaitingState { return WaitingKnowledgeCard }

// PhaseAdvancePrompt asks the user to approve leaving a phase early.
type PhaseAdvancePrompt struct {
	From    Phase    `json:"from"`
	To      Phase    `json:"to"`
	Missing []string `json:"missing"`
	Reason  string   `json:"reason,omitempty"`
}

func (*PhaseAdvancePrompt) Waiting() WaitingState { return WaitingPhaseApproval }
