package tracing

import (
	"context"
	"errors"
	"testing"

	"canvas_server/agent"
)

func TestTraceSpans(t *testing.T) {
	tr := NewTrace("s1", "test-model", "invoke", 2)

	s := tr.StartSpan("tool.call")
	s.Set("tool_name", "set_plan")
	s.End()
	tr.RecordEvent("model_call", map[string]any{"message_count": 2})
	tr.Finish(nil)

	if len(tr.Spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(tr.Spans))
	}
	if tr.Spans[0].Metadata["tool_name"] != "set_plan" {
		t.Fatalf("span metadata lost: %#v", tr.Spans[0].Metadata)
	}
	if tr.Error != "" {
		t.Fatalf("unexpected error on clean trace: %q", tr.Error)
	}
	if tr.DurationMs < 0 {
		t.Fatalf("negative duration: %f", tr.DurationMs)
	}
}

func TestTraceFinishWithError(t *testing.T) {
	tr := NewTrace("s1", "m", "stream", 1)
	tr.Finish(errors.New("model unreachable"))
	if tr.Error != "model unreachable" {
		t.Fatalf("error not recorded: %q", tr.Error)
	}
}

func TestStoreEvictsOldest(t *testing.T) {
	store := NewStore(2)
	a := NewTrace("s1", "m", "invoke", 1)
	b := NewTrace("s1", "m", "invoke", 1)
	c := NewTrace("s1", "m", "invoke", 1)
	store.Put(a)
	store.Put(b)
	store.Put(c)

	if store.Get(a.TraceID) != nil {
		t.Fatal("oldest trace should have been evicted")
	}
	if store.Get(c.TraceID) == nil {
		t.Fatal("newest trace missing")
	}

	list := store.List(10)
	if len(list) != 2 {
		t.Fatalf("expected 2 traces, got %d", len(list))
	}
	if list[0].TraceID != c.TraceID {
		t.Fatal("List should return newest first")
	}
}

func TestContextRoundTrip(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Fatal("empty context should have no trace")
	}
	tr := NewTrace("s1", "m", "invoke", 1)
	ctx := WithTrace(context.Background(), tr)
	if FromContext(ctx) != tr {
		t.Fatal("trace lost in context")
	}
}

func TestHookRecordsToolSpan(t *testing.T) {
	tr := NewTrace("s1", "m", "invoke", 1)
	ctx := WithTrace(context.Background(), tr)
	hook := NewHook()

	call := agent.ToolCall{ID: "c1", Name: "set_plan", Args: map[string]any{"steps": []any{"a"}}}
	result, err := hook.WrapToolCall(ctx, call, func(ctx context.Context, call agent.ToolCall) (*agent.ToolResult, error) {
		return &agent.ToolResult{ToolCallID: call.ID, Name: call.Name, Output: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("WrapToolCall: %v", err)
	}
	if result.Output != "ok" {
		t.Fatalf("result not passed through: %#v", result)
	}

	if len(tr.Spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(tr.Spans))
	}
	md := tr.Spans[0].Metadata
	if md["tool_name"] != "set_plan" || md["output"] != "ok" {
		t.Fatalf("span metadata wrong: %#v", md)
	}
}

func TestHookWithoutTraceIsTransparent(t *testing.T) {
	hook := NewHook()
	called := false
	_, err := hook.WrapToolCall(context.Background(), agent.ToolCall{Name: "x"}, func(ctx context.Context, call agent.ToolCall) (*agent.ToolResult, error) {
		called = true
		return &agent.ToolResult{}, nil
	})
	if err != nil || !called {
		t.Fatalf("untraced call should pass straight through (called=%v err=%v)", called, err)
	}
}
