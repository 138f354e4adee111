package interview

import (
	"encoding/json"
	"fmt"
)

// Arguments is the decoded JSON argument object of a tool call.
// Getters use the comma-ok idiom so a malformed argument never panics;
// numbers arrive as float64 from JSON and are converted where needed.
type Arguments map[string]any

// ParseArguments decodes a raw JSON object. Empty input yields empty arguments.
func ParseArguments(raw []byte) (Arguments, error) {
	args := Arguments{}
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// Has reports whether key is present and non-nil.
func (a Arguments) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// String returns the string at key.
func (a Arguments) String(key string) (string, bool) {
	s, ok := a[key].(string)
	return s, ok
}

// StringDefault returns the string at key or def.
func (a Arguments) StringDefault(key, def string) string {
	if s, ok := a.String(key); ok && s != "" {
		return s
	}
	return def
}

// Int returns the integer at key. JSON numbers (float64) are truncated.
func (a Arguments) Int(key string) (int, bool) {
	switch v := a[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	default:
		return 0, false
	}
}

// Bool returns the bool at key.
func (a Arguments) Bool(key string) (bool, bool) {
	b, ok := a[key].(bool)
	return b, ok
}

// BoolDefault returns the bool at key or def.
func (a Arguments) BoolDefault(key string, def bool) bool {
	if b, ok := a.Bool(key); ok {
		return b
	}
	return def
}

// Map returns the nested object at key.
func (a Arguments) Map(key string) (map[string]any, bool) {
	m, ok := a[key].(map[string]any)
	return m, ok
}

// Object returns the nested object at key as Arguments.
func (a Arguments) Object(key string) (Arguments, bool) {
	m, ok := a.Map(key)
	if !ok {
		return nil, false
	}
	return Arguments(m), true
}

// Strings returns a list of strings at key. Non-string elements are skipped.
// A []string value (from Go callers) is accepted as-is.
func (a Arguments) Strings(key string) ([]string, bool) {
	switch v := a[key].(type) {
	case []string:
		return v, true
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result, true
	default:
		return nil, false
	}
}

// Objects returns a list of nested objects at key. Non-object elements are skipped.
func (a Arguments) Objects(key string) ([]Arguments, bool) {
	items, ok := a[key].([]any)
	if !ok {
		return nil, false
	}
	result := make([]Arguments, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			result = append(result, Arguments(m))
		}
	}
	return result, true
}

// Decode re-marshals the arguments into a typed struct.
func (a Arguments) Decode(target any) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
