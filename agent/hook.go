package agent

import (
	"context"
	"encoding/json"
	"log"
)

// ToolCallFunc is the "next" function in the tool call chain.
type ToolCallFunc func(ctx context.Context, call ToolCall) (*ToolResult, error)

// Hook is turn middleware. ModifyRequest runs before each model call;
// WrapToolCall wraps each managed tool execution (onion ring).
type Hook interface {
	Name() string
	ModifyRequest(ctx context.Context, sessionID string, msgs []Message) ([]Message, error)
	WrapToolCall(ctx context.Context, call ToolCall, next ToolCallFunc) (*ToolResult, error)
}

// BaseHook provides no-op defaults. Embed it and override what you need.
type BaseHook struct{}

func (BaseHook) Name() string { return "base" }

func (BaseHook) ModifyRequest(ctx context.Context, sessionID string, msgs []Message) ([]Message, error) {
	return msgs, nil
}

func (BaseHook) WrapToolCall(ctx context.Context, call ToolCall, next ToolCallFunc) (*ToolResult, error) {
	return next(ctx, call)
}

// GroundingHook re-reads the session's SharedState before every model call
// and injects it as a system message. The model must never reply from a
// value captured earlier in the turn: each iteration sees the store's
// latest committed snapshot, including mutations from this same turn.
type GroundingHook struct {
	BaseHook
	store *StateStore
}

// NewGroundingHook creates a grounding hook over the store.
func NewGroundingHook(store *StateStore) *GroundingHook {
	return &GroundingHook{store: store}
}

func (h *GroundingHook) Name() string { return "grounding" }

func (h *GroundingHook) ModifyRequest(ctx context.Context, sessionID string, msgs []Message) ([]Message, error) {
	state := h.store.Get(sessionID)
	data, err := json.Marshal(state)
	if err != nil {
		return msgs, err
	}

	grounded := make([]Message, 0, len(msgs)+1)
	grounded = append(grounded, System(
		"CURRENT SHARED STATE (ground truth, replaces any earlier snapshot):\n"+string(data)))
	grounded = append(grounded, msgs...)
	return grounded, nil
}

// LogHook logs each managed tool call and its outcome.
type LogHook struct {
	BaseHook
}

func (LogHook) Name() string { return "log" }

func (LogHook) WrapToolCall(ctx context.Context, call ToolCall, next ToolCallFunc) (*ToolResult, error) {
	result, err := next(ctx, call)
	switch {
	case err != nil:
		log.Printf("tool %s (%s): error: %v", call.Name, call.ID, err)
	case result != nil && result.Error != "":
		log.Printf("tool %s (%s): failed: %s", call.Name, call.ID, result.Error)
	default:
		log.Printf("tool %s (%s): ok", call.Name, call.ID)
	}
	return result, err
}
