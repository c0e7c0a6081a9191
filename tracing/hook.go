package tracing

import (
	"context"

	"canvas_server/agent"
)

// Hook implements agent.Hook. It records a model_call event before each
// model call and wraps every managed tool call in a timed span. Turns
// without a trace in context pass through untouched.
type Hook struct {
	agent.BaseHook
}

// NewHook creates a tracing hook.
func NewHook() *Hook {
	return &Hook{}
}

func (h *Hook) Name() string { return "tracing" }

func (h *Hook) ModifyRequest(ctx context.Context, sessionID string, msgs []agent.Message) ([]agent.Message, error) {
	if tr := FromContext(ctx); tr != nil {
		tr.RecordEvent("model_call", map[string]any{"message_count": len(msgs)})
	}
	return msgs, nil
}

func (h *Hook) WrapToolCall(ctx context.Context, call agent.ToolCall, next agent.ToolCallFunc) (*agent.ToolResult, error) {
	tr := FromContext(ctx)
	if tr == nil {
		return next(ctx, call)
	}

	s := tr.StartSpan("tool.call")
	s.Set("tool_name", call.Name)
	s.Set("tool_call_id", call.ID)
	s.Set("tool_args", call.Args)
	result, err := next(ctx, call)
	if err != nil {
		s.Set("error", err.Error())
	} else if result != nil {
		s.Set("output_length", len(result.Output))
		if len(result.Output) <= 500 {
			s.Set("output", result.Output)
		} else {
			s.Set("output", result.Output[:500]+"...(truncated)")
		}
		if result.Error != "" {
			s.Set("tool_error", result.Error)
		}
	}
	s.End()
	return result, err
}
