package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
)

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func okHandler(message string) Handler {
	return func(context.Context, *Invocation) (*Result, error) {
		return Immediate(interview.NewToolOutput(interview.ToolStatusCompleted, message, nil), ""), nil
	}
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	assert.NotNil(t, registry)
	assert.Empty(t, registry.List())
}

func TestRegisterTool(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(&Definition{
		Name:        "test_tool",
		Description: "A test tool",
		Handler:     okHandler("ok"),
	})

	require.NoError(t, err)
	assert.True(t, registry.Has("test_tool"))
	def, ok := registry.Get("test_tool")
	require.True(t, ok)
	assert.Equal(t, ModeImmediate, def.Mode, "mode defaults to immediate")
}

func TestRegisterToolValidation(t *testing.T) {
	tests := []struct {
		name    string
		def     *Definition
		wantErr string
	}{
		{"nil definition", nil, "name is required"},
		{"missing name", &Definition{Handler: okHandler("ok")}, "name is required"},
		{"missing handler", &Definition{Name: "no_handler"}, "handler is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.def)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegisterOverwrites(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&Definition{Name: "tool", Description: "v1", Handler: okHandler("v1")}))
	require.NoError(t, registry.Register(&Definition{Name: "tool", Description: "v2", Handler: okHandler("v2")}))

	def, _ := registry.Get("tool")
	assert.Equal(t, "v2", def.Description)
	assert.Len(t, registry.List(), 1)
}

func TestListIsSorted(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, registry.Register(&Definition{Name: name, Handler: okHandler(name)}))
	}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, registry.List())
}

func TestSpecs(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&Definition{
		Name:        "with_params",
		Description: "has parameters",
		Parameters:  Object(map[string]*Schema{"q": String("query")}, "q"),
		Handler:     okHandler("ok"),
	}))
	require.NoError(t, registry.Register(&Definition{Name: "bare", Handler: okHandler("ok")}))

	specs := registry.Specs([]string{"with_params", "missing", "bare"})

	require.Len(t, specs, 2)
	assert.Equal(t, "with_params", specs[0].Name)
	assert.Equal(t, []string{"q"}, specs[0].Parameters.Required)
	assert.Equal(t, "object", specs[1].Parameters.Type, "a tool without parameters takes an empty object")
}

func TestBuiltinRegistry(t *testing.T) {
	registry := NewBuiltinRegistry()

	for _, name := range []string{
		ToolGetUserUpload, ToolGetUserOption, ToolSubmitForValidation, ToolGetApplicantProfile,
		ToolConfigureEnabledSections, ToolDisplayKnowledgeCardPlan, ToolSubmitKnowledgeCard,
		ToolCreateTimelineCard, ToolUpdateTimelineCard, ToolDeleteTimelineCard,
		ToolCreatePublicationCard, ToolPersistData, ToolListArtifacts,
		ToolSetObjectiveStatus, ToolNextPhase,
	} {
		assert.True(t, registry.Has(name), name)
	}
	assert.Len(t, registry.List(), 15)
}
