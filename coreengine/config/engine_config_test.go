package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEngineConfig(t *testing.T) {
	c := DefaultEngineConfig()

	require.NoError(t, c.Validate())
	assert.Equal(t, 10*time.Second, c.PersistTimeoutDuration())
	assert.Equal(t, 30*time.Second, c.RestoreTimeoutDuration())
	assert.True(t, c.StrictToolGating)
	assert.True(t, c.SupersedeOnChat)
	assert.Empty(t, c.PhaseScriptPath)
}

func TestEngineConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EngineConfig)
	}{
		{"zero persist timeout", func(c *EngineConfig) { c.PersistTimeout = 0 }},
		{"negative restore timeout", func(c *EngineConfig) { c.RestoreTimeout = -1 }},
		{"unknown log level", func(c *EngineConfig) { c.LogLevel = "chatty" }},
		{"empty failure message", func(c *EngineConfig) { c.ProcessingFailedMessage = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultEngineConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestEngineConfigFromMap(t *testing.T) {
	c := EngineConfigFromMap(map[string]any{
		"persist_timeout":    float64(3),
		"restore_timeout":    7,
		"strict_tool_gating": false,
		"supersede_on_chat":  false,
		"log_level":          "DEBUG",
		"phase_script_path":  "/etc/interview/phases.yaml",
		"unknown_key":        "ignored",
	})

	assert.Equal(t, 3, c.PersistTimeout)
	assert.Equal(t, 7, c.RestoreTimeout)
	assert.False(t, c.StrictToolGating)
	assert.False(t, c.SupersedeOnChat)
	assert.True(t, c.AutoPersistKnowledgeCards)
	assert.Equal(t, "/etc/interview/phases.yaml", c.PhaseScriptPath)
	assert.NoError(t, c.Validate())
}

func TestEngineConfigToMapRoundTrip(t *testing.T) {
	original := DefaultEngineConfig()
	original.PersistTimeout = 42
	original.PhaseScriptPath = "phases.yaml"

	restored := EngineConfigFromMap(original.ToMap())
	assert.Equal(t, original, restored)

	_, hasPath := DefaultEngineConfig().ToMap()["phase_script_path"]
	assert.False(t, hasPath)
}
