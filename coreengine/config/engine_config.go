// Package config provides interview engine configuration.
//
// This package contains only configuration that shapes orchestration:
//   - Timeouts
//   - Workflow toggles
//   - The phase script (objectives, base tools, unlock rules per phase)
//
// Infrastructure configuration (listen addresses, database paths, tracing
// endpoints) belongs to the command that hosts the engine.
//
// There is no global config instance. Callers build an EngineConfig and pass
// it to the constructors that need it.
package config

import (
	"fmt"
	"strings"
	"time"
)

// EngineConfig holds interview orchestration configuration.
type EngineConfig struct {
	// Timeouts (seconds)
	PersistTimeout int `json:"persist_timeout" yaml:"persist_timeout" mapstructure:"persist_timeout"`
	RestoreTimeout int `json:"restore_timeout" yaml:"restore_timeout" mapstructure:"restore_timeout"`

	// Workflow
	EnforceObjectiveDependencies bool `json:"enforce_objective_dependencies" yaml:"enforce_objective_dependencies" mapstructure:"enforce_objective_dependencies"`
	// StrictToolGating rejects tools outside the allowed set instead of logging them.
	StrictToolGating bool `json:"strict_tool_gating" yaml:"strict_tool_gating" mapstructure:"strict_tool_gating"`
	// SupersedeOnChat dismisses an open prompt when the user types in chat.
	SupersedeOnChat bool `json:"supersede_on_chat" yaml:"supersede_on_chat" mapstructure:"supersede_on_chat"`
	// AutoPersistKnowledgeCards persists approved cards without a model round trip.
	AutoPersistKnowledgeCards bool `json:"auto_persist_knowledge_cards" yaml:"auto_persist_knowledge_cards" mapstructure:"auto_persist_knowledge_cards"`

	// User-visible status text
	ProcessingFailedMessage string `json:"processing_failed_message" yaml:"processing_failed_message" mapstructure:"processing_failed_message"`

	// Phase script file. Empty uses the built-in script.
	PhaseScriptPath string `json:"phase_script_path,omitempty" yaml:"phase_script_path,omitempty" mapstructure:"phase_script_path"`

	// Logging
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
}

// DefaultEngineConfig returns an EngineConfig with default values.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		PersistTimeout: 10,
		RestoreTimeout: 30,

		EnforceObjectiveDependencies: true,
		StrictToolGating:             true,
		SupersedeOnChat:              true,
		AutoPersistKnowledgeCards:    true,

		ProcessingFailedMessage: "Processing failed, please retry",

		LogLevel: "info",
	}
}

// Validate checks value ranges.
func (c *EngineConfig) Validate() error {
	if c.PersistTimeout <= 0 {
		return fmt.Errorf("persist_timeout must be positive, got %d", c.PersistTimeout)
	}
	if c.RestoreTimeout <= 0 {
		return fmt.Errorf("restore_timeout must be positive, got %d", c.RestoreTimeout)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.ProcessingFailedMessage == "" {
		return fmt.Errorf("processing_failed_message is required")
	}
	return nil
}

// PersistTimeoutDuration returns the persistence timeout.
func (c *EngineConfig) PersistTimeoutDuration() time.Duration {
	return time.Duration(c.PersistTimeout) * time.Second
}

// RestoreTimeoutDuration returns the restore timeout.
func (c *EngineConfig) RestoreTimeoutDuration() time.Duration {
	return time.Duration(c.RestoreTimeout) * time.Second
}

// EngineConfigFromMap creates EngineConfig from a map.
// Unknown keys are ignored. Numbers may arrive as int or float64.
func EngineConfigFromMap(config map[string]any) *EngineConfig {
	c := DefaultEngineConfig()

	if v, ok := intValue(config["persist_timeout"]); ok {
		c.PersistTimeout = v
	}
	if v, ok := intValue(config["restore_timeout"]); ok {
		c.RestoreTimeout = v
	}
	if v, ok := config["enforce_objective_dependencies"].(bool); ok {
		c.EnforceObjectiveDependencies = v
	}
	if v, ok := config["strict_tool_gating"].(bool); ok {
		c.StrictToolGating = v
	}
	if v, ok := config["supersede_on_chat"].(bool); ok {
		c.SupersedeOnChat = v
	}
	if v, ok := config["auto_persist_knowledge_cards"].(bool); ok {
		c.AutoPersistKnowledgeCards = v
	}
	if v, ok := config["processing_failed_message"].(string); ok {
		c.ProcessingFailedMessage = v
	}
	if v, ok := config["phase_script_path"].(string); ok {
		c.PhaseScriptPath = v
	}
	if v, ok := config["log_level"].(string); ok {
		c.LogLevel = v
	}

	return c
}

// ToMap converts config to a map.
func (c *EngineConfig) ToMap() map[string]any {
	result := map[string]any{
		"persist_timeout":                c.PersistTimeout,
		"restore_timeout":                c.RestoreTimeout,
		"enforce_objective_dependencies": c.EnforceObjectiveDependencies,
		"strict_tool_gating":             c.StrictToolGating,
		"supersede_on_chat":              c.SupersedeOnChat,
		"auto_persist_knowledge_cards":   c.AutoPersistKnowledgeCards,
		"processing_failed_message":      c.ProcessingFailedMessage,
		"log_level":                      c.LogLevel,
	}
	if c.PhaseScriptPath != "" {
		result["phase_script_path"] = c.PhaseScriptPath
	}
	return result
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
