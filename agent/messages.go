package agent

import "fmt"

// Message represents a chat message in the conversation.
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set when Role == "tool"
	Name       string     `json:"name,omitempty"`         // tool name when Role == "tool"
}

// ToolCall represents the model's request to invoke a tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult holds the outcome of a tool call as seen by the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Output     string `json:"output"`
	Error      string `json:"error,omitempty"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ValidRole returns true if r is a known message role.
func ValidRole(r string) bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// --- Constructors ---

// Human creates a user message.
func Human(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// System creates a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// AI creates an assistant message with optional tool calls.
func AI(content string, toolCalls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolMsg creates a tool result message.
func ToolMsg(toolCallID, name, output string) Message {
	return Message{Role: RoleTool, Content: output, ToolCallID: toolCallID, Name: name}
}

// Messages is an ordered message list.
type Messages []Message

// Last returns the last message, or a zero Message if empty.
func (m Messages) Last() Message {
	if len(m) == 0 {
		return Message{}
	}
	return m[len(m)-1]
}

// LastAssistantContent returns the content of the last assistant message.
func (m Messages) LastAssistantContent() string {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i].Role == RoleAssistant {
			return m[i].Content
		}
	}
	return ""
}

// ValidateUserInput checks that messages are acceptable as turn input.
// Only "user" and "system" roles are allowed — "assistant" and "tool" are
// internal roles created by the turn loop.
func (m Messages) ValidateUserInput() error {
	if len(m) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, msg := range m {
		if msg.Role != RoleUser && msg.Role != RoleSystem {
			return fmt.Errorf("message[%d]: role %q not allowed (must be \"user\" or \"system\")", i, msg.Role)
		}
		if msg.Content == "" {
			return fmt.Errorf("message[%d]: content must not be empty", i)
		}
	}
	return nil
}
