package agent

// Event names on the outbound turn stream.
const (
	EventModelStart    = "on_chat_model_start"
	EventModelStream   = "on_chat_model_stream"
	EventModelEnd      = "on_chat_model_end"
	EventToolStart     = "on_tool_start"
	EventToolEnd       = "on_tool_end"
	EventStateSnapshot = "state_snapshot"
	EventClientTool    = "client_tool_call"
	EventDone          = "done"
	EventError         = "error"
)

// StreamEvent is sent from the turn coordinator to stream consumers
// (SSE handler, websocket feed).
type StreamEvent struct {
	Event     string `json:"event"`                // see Event* constants
	Name      string `json:"name,omitempty"`       // tool or model name
	RunID     string `json:"run_id,omitempty"`     // tool call id
	Data      any    `json:"data,omitempty"`
	SessionID string `json:"session_id,omitempty"` // set on "done"
}
