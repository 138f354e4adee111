// Package tools routes model tool calls to their handlers.
//
// A handler either answers immediately or opens an on-screen prompt whose
// answer arrives later through the continuation manager. The Router decides
// which tools the model may call in the current phase and turns every
// failure into a rejected tool output so the conversation keeps moving.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jeeves-cluster-organization/interviewcore/commbus"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
	"github.com/jeeves-cluster-organization/interviewcore/coreengine/kernel"
)

// Mode describes how a tool answers.
type Mode string

const (
	// ModeImmediate tools always answer inline.
	ModeImmediate Mode = "immediate"
	// ModePrompt tools may open a prompt and defer the answer.
	ModePrompt Mode = "prompt"
)

// Invocation is what a handler receives for one call.
type Invocation struct {
	CallID   string
	ToolName string
	Args     interview.Arguments
	Kernel   *kernel.Kernel
}

// Store is shorthand for the session store.
func (inv *Invocation) Store() *kernel.SessionStore {
	return inv.Kernel.Store()
}

// Result is a handler outcome. Exactly one of Output and Prompt is set.
type Result struct {
	Output      *interview.ToolOutput
	Instruction string

	Prompt     interview.Prompt
	StatusHint string
	// Events are published once the prompt owns the pending slot.
	Events []commbus.Event
}

// Immediate answers the call inline.
func Immediate(output *interview.ToolOutput, instruction string) *Result {
	return &Result{Output: output, Instruction: instruction}
}

// Prompted defers the answer to the user.
func Prompted(prompt interview.Prompt, statusHint string, events ...commbus.Event) *Result {
	return &Result{Prompt: prompt, StatusHint: statusHint, Events: events}
}

// Handler executes a tool.
type Handler func(ctx context.Context, inv *Invocation) (*Result, error)

// ArgumentError reports arguments that passed the schema but still make no sense.
type ArgumentError struct {
	Reason string
}

func (e *ArgumentError) Error() string {
	return "invalid arguments: " + e.Reason
}

func argumentErrorf(format string, args ...any) error {
	return &ArgumentError{Reason: fmt.Sprintf(format, args...)}
}

// Definition defines a tool's metadata and handler.
type Definition struct {
	Name        string
	Description string
	Mode        Mode
	Parameters  *Schema
	Handler     Handler
}

// Spec returns the model-facing description.
func (d *Definition) Spec() Spec {
	params := d.Parameters
	if params == nil {
		params = Object(nil)
	}
	return Spec{Name: d.Name, Description: d.Description, Parameters: params}
}

// Registry holds tool definitions by name.
type Registry struct {
	tools map[string]*Definition
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Definition),
	}
}

// Register registers a tool, replacing any definition with the same name.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return errors.New("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler is required for '%s'", def.Name)
	}
	if def.Mode == "" {
		def.Mode = ModeImmediate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[def.Name] = def
	return nil
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Has checks if a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the model-facing specs of the named tools. Unknown names are skipped.
func (r *Registry) Specs(names []string) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		if def, ok := r.tools[name]; ok {
			specs = append(specs, def.Spec())
		}
	}
	return specs
}
