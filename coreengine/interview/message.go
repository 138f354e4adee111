package interview

import (
	"time"
)

// MessageRole identifies the author of a transcript message.
type MessageRole string

const (
	RoleUser       MessageRole = "user"
	RoleAssistant  MessageRole = "assistant"
	RoleDeveloper  MessageRole = "developer"
	RoleToolResult MessageRole = "tool_result"
)

// Message is one transcript entry.
//
// Messages are append-only. The single exception is an assistant message that
// is still streaming (InProgress); it may be updated in place until finalized.
type Message struct {
	ID   string      `json:"id"`
	Role MessageRole `json:"role"`
	Text string      `json:"text"`

	// IsSystemGenerated marks text synthesized by the engine rather than typed by a human.
	IsSystemGenerated bool `json:"is_system_generated"`

	// ToolChoice forces the model to call the named tool on its next turn.
	ToolChoice string `json:"tool_choice,omitempty"`

	// ToolCallID links a tool_result message to the call it answers.
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`

	InProgress bool      `json:"in_progress,omitempty"`
	Failed     bool      `json:"failed,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Clone returns a copy of the message. Payload maps are copied shallowly.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Payload != nil {
		c.Payload = make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}
