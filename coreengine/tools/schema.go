package tools

import (
	"fmt"
	"math"
	"slices"

	"github.com/jeeves-cluster-organization/interviewcore/coreengine/interview"
)

// Schema is the JSON Schema subset tool parameters are declared with.
// It is sent to the model as-is and used to check arguments before a
// handler runs.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// Spec is the model-facing description of one tool.
type Spec struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters"`
}

// Object builds an object schema.
func Object(properties map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Properties: properties, Required: required}
}

// String builds a string schema.
func String(description string) *Schema {
	return &Schema{Type: "string", Description: description}
}

// Enum builds a string schema restricted to values.
func Enum(description string, values ...string) *Schema {
	return &Schema{Type: "string", Description: description, Enum: values}
}

// Boolean builds a boolean schema.
func Boolean(description string) *Schema {
	return &Schema{Type: "boolean", Description: description}
}

// Integer builds an integer schema.
func Integer(description string) *Schema {
	return &Schema{Type: "integer", Description: description}
}

// Array builds an array schema.
func Array(items *Schema, description string) *Schema {
	return &Schema{Type: "array", Items: items, Description: description}
}

// Validate checks args against the schema. A nil schema accepts anything.
func (s *Schema) Validate(args interview.Arguments) error {
	if s == nil {
		return nil
	}
	return s.validate("arguments", map[string]any(args))
}

func (s *Schema) validate(path string, value any) error {
	switch s.Type {
	case "object":
		m, ok := asObject(value)
		if !ok {
			return fmt.Errorf("%s must be an object", path)
		}
		for _, key := range s.Required {
			if v, present := m[key]; !present || v == nil {
				return fmt.Errorf("%s is required", join(path, key))
			}
		}
		for key, prop := range s.Properties {
			v, present := m[key]
			if !present || v == nil {
				continue
			}
			if err := prop.validate(join(path, key), v); err != nil {
				return err
			}
		}
	case "string":
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s must be a string", path)
		}
		if len(s.Enum) > 0 && !slices.Contains(s.Enum, str) {
			return fmt.Errorf("%s must be one of %v", path, s.Enum)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s must be a boolean", path)
		}
	case "integer":
		if !isInteger(value) {
			return fmt.Errorf("%s must be an integer", path)
		}
	case "array":
		items, ok := asArray(value)
		if !ok {
			return fmt.Errorf("%s must be an array", path)
		}
		if s.Items == nil {
			return nil
		}
		for i, item := range items {
			if err := s.Items.validate(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
	}
	return nil
}

func join(path, key string) string {
	if path == "arguments" {
		return key
	}
	return path + "." + key
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case interview.Arguments:
		return m, true
	}
	return nil, false
}

func asArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case []any:
		return a, true
	case []string:
		result := make([]any, len(a))
		for i, s := range a {
			result[i] = s
		}
		return result, true
	case []map[string]any:
		result := make([]any, len(a))
		for i, m := range a {
			result[i] = m
		}
		return result, true
	}
	return nil, false
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int32, int64:
		return true
	case float64:
		return n == math.Trunc(n)
	}
	return false
}
