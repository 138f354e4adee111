package interview

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// PHASE TESTS
// =============================================================================

func TestPhaseOrdering(t *testing.T) {
	phases := AllPhases()
	require.Len(t, phases, 5)
	for i, p := range phases {
		assert.Equal(t, i, p.Ordinal(), "ordinal of %s", p)
	}

	assert.True(t, PhaseCoreFacts.Before(PhaseDeepDive))
	assert.False(t, PhaseDeepDive.Before(PhaseCoreFacts))
	assert.False(t, PhaseDeepDive.Before(PhaseDeepDive))
	assert.False(t, Phase("bogus").Before(PhaseComplete))
	assert.Equal(t, -1, Phase("bogus").Ordinal())
}

func TestPhaseNext(t *testing.T) {
	tests := []struct {
		from   Phase
		want   Phase
		wantOK bool
	}{
		{PhaseCoreFacts, PhaseDeepDive, true},
		{PhaseDeepDive, PhaseEvidenceCollection, true},
		{PhaseEvidenceCollection, PhaseStrategicSynthesis, true},
		{PhaseStrategicSynthesis, PhaseComplete, true},
		{PhaseComplete, PhaseComplete, false},
		{Phase("bogus"), Phase("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			got, ok := tt.from.Next()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("deep_dive")
	require.NoError(t, err)
	assert.Equal(t, PhaseDeepDive, p)
	assert.True(t, PhaseComplete.IsTerminal())

	_, err = ParsePhase("phase_two")
	assert.Error(t, err)
}

func TestObjectiveStatusSatisfied(t *testing.T) {
	assert.True(t, ObjectiveCompleted.IsSatisfied())
	assert.True(t, ObjectiveSkipped.IsSatisfied())
	assert.False(t, ObjectivePending.IsSatisfied())
	assert.False(t, ObjectiveInProgress.IsSatisfied())

	_, err := ParseObjectiveStatus("done")
	assert.Error(t, err)
}

func TestObjectiveCloneIsolation(t *testing.T) {
	o := &Objective{ID: "a", DependsOn: []string{"b"}}
	c := o.Clone()
	c.DependsOn[0] = "z"
	assert.Equal(t, "b", o.DependsOn[0])
}

func TestArtifactRecordCloneIsDeep(t *testing.T) {
	tests := []struct {
		name    string
		content ArtifactContent
		mutate  func(ArtifactContent)
	}{
		{
			name:    "knowledge card",
			content: &KnowledgeCard{ID: "kc", Title: "Acme", Skills: []string{"Go"}},
			mutate: func(c ArtifactContent) {
				k := c.(*KnowledgeCard)
				k.Title = "changed"
				k.Skills[0] = "changed"
			},
		},
		{
			name:    "profile",
			content: &ApplicantProfile{Name: "Sam", Links: []string{"https://example.com"}},
			mutate:  func(c ArtifactContent) { c.(*ApplicantProfile).Links[0] = "changed" },
		},
		{
			name:    "publication",
			content: &PublicationCard{Title: "Paper", Authors: []string{"Sam"}},
			mutate:  func(c ArtifactContent) { c.(*PublicationCard).Authors[0] = "changed" },
		},
		{
			name: "generic document",
			content: &GenericDocument{Type: "candidate_dossier", Fields: map[string]any{
				"notes": map[string]any{"tags": []any{"a"}},
			}},
			mutate: func(c ArtifactContent) {
				notes := c.(*GenericDocument).Fields["notes"].(map[string]any)
				notes["tags"].([]any)[0] = "changed"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := &ArtifactRecord{ID: "r1", Content: tt.content}
			want, err := EncodeArtifactContent(original.Content)
			require.NoError(t, err)

			clone := original.Clone()
			tt.mutate(clone.Content)

			got, err := EncodeArtifactContent(original.Content)
			require.NoError(t, err)
			assert.JSONEq(t, string(want), string(got))
		})
	}
}

// =============================================================================
// ARGUMENT TESTS
// =============================================================================

func TestArgumentsGetters(t *testing.T) {
	args, err := ParseArguments([]byte(`{
		"title": "Upload resume",
		"count": 3,
		"multi": true,
		"types": ["pdf", 4, "docx"],
		"card": {"id": "kc-1"},
		"items": [{"id": "a"}, "skip", {"id": "b"}]
	}`))
	require.NoError(t, err)

	s, ok := args.String("title")
	assert.True(t, ok)
	assert.Equal(t, "Upload resume", s)
	assert.Equal(t, "fallback", args.StringDefault("missing", "fallback"))

	n, ok := args.Int("count")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = args.Int("title")
	assert.False(t, ok)

	assert.True(t, args.BoolDefault("multi", false))
	assert.False(t, args.BoolDefault("missing", false))

	types, ok := args.Strings("types")
	assert.True(t, ok)
	assert.Equal(t, []string{"pdf", "docx"}, types)

	card, ok := args.Object("card")
	require.True(t, ok)
	assert.Equal(t, "kc-1", card.StringDefault("id", ""))

	items, ok := args.Objects("items")
	require.True(t, ok)
	assert.Len(t, items, 2)

	assert.True(t, args.Has("card"))
	assert.False(t, args.Has("nope"))
}

func TestParseArgumentsEmptyAndInvalid(t *testing.T) {
	args, err := ParseArguments(nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = ParseArguments([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestArgumentsDecode(t *testing.T) {
	args := Arguments{"id": "kc-9", "title": "Platform lead", "skills": []any{"go"}}
	var card KnowledgeCard
	require.NoError(t, args.Decode(&card))
	assert.Equal(t, "kc-9", card.ID)
	assert.Equal(t, []string{"go"}, card.Skills)
}

// =============================================================================
// ARTIFACT TESTS
// =============================================================================

func TestArtifactContentRoundTrip(t *testing.T) {
	card := &KnowledgeCard{ID: "kc-1", Title: "Staff engineer", Skills: []string{"go", "sql"}}
	data, err := EncodeArtifactContent(card)
	require.NoError(t, err)

	decoded, err := DecodeArtifactContent(RecordTypeKnowledgeCard, data)
	require.NoError(t, err)
	assert.Equal(t, card, decoded)
}

func TestDecodeUnknownRecordTypeIsGeneric(t *testing.T) {
	decoded, err := DecodeArtifactContent("candidate_dossier", []byte(`{"summary":"x"}`))
	require.NoError(t, err)

	doc, ok := decoded.(*GenericDocument)
	require.True(t, ok)
	assert.Equal(t, "candidate_dossier", doc.RecordType())
	assert.Equal(t, "x", doc.Fields["summary"])
}

func TestArtifactValidation(t *testing.T) {
	tests := []struct {
		name    string
		content ArtifactContent
		wantErr bool
	}{
		{"excerpt ok", &DocumentExcerpt{Filename: "cv.pdf"}, false},
		{"excerpt missing filename", &DocumentExcerpt{}, true},
		{"profile ok", &ApplicantProfile{Name: "Ada"}, false},
		{"profile missing name", &ApplicantProfile{}, true},
		{"card missing title", &KnowledgeCard{ID: "kc"}, true},
		{"timeline ok", &TimelineEntry{ID: "t1", Title: "Engineer"}, false},
		{"publication missing title", &PublicationCard{}, true},
		{"generic missing fields", &GenericDocument{Type: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.content.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// =============================================================================
// TOOL OUTPUT TESTS
// =============================================================================

func TestToolOutputValidate(t *testing.T) {
	assert.NoError(t, NewToolOutput(ToolStatusCompleted, "ok", nil).Validate())

	var nilOut *ToolOutput
	var malformed *MalformedToolOutputError
	assert.True(t, errors.As(nilOut.Validate(), &malformed))

	err := (&ToolOutput{Status: "maybe", Message: "x"}).Validate()
	require.True(t, errors.As(err, &malformed))
	assert.Contains(t, malformed.Reason, "maybe")

	assert.Error(t, (&ToolOutput{Status: ToolStatusCompleted}).Validate())
}

func TestRejectedOutputDefaultsMessage(t *testing.T) {
	out := RejectedOutput("")
	assert.Equal(t, ToolStatusRejected, out.Status)
	assert.NotEmpty(t, out.Message)
	assert.NoError(t, out.Validate())
}

func TestPersistenceErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := NewPersistenceError(RecordTypeKnowledgeCard, cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "knowledge_card")
}

func TestPromptWaitingStates(t *testing.T) {
	tests := []struct {
		prompt Prompt
		want   WaitingState
	}{
		{&UploadPrompt{}, WaitingUpload},
		{&ChoicePrompt{}, WaitingSelection},
		{&ValidationPrompt{}, WaitingValidation},
		{&ProfileIntakePrompt{}, WaitingIntake},
		{&SectionTogglePrompt{}, WaitingSections},
		{&KnowledgeCardReviewPrompt{}, WaitingKnowledgeCard},
		{&PhaseAdvancePrompt{}, WaitingPhaseApproval},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.prompt.Waiting())
	}

	choice := &ChoicePrompt{Options: []ChoiceOption{{ID: "a"}, {ID: "b"}}}
	assert.True(t, choice.HasOption("b"))
	assert.False(t, choice.HasOption("c"))
}
