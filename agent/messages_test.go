package agent

import (
	"strings"
	"testing"
)

func TestValidateUserInput(t *testing.T) {
	t.Run("accepts user and system", func(t *testing.T) {
		msgs := Messages{System("context"), Human("hello")}
		if err := msgs.ValidateUserInput(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rejects assistant", func(t *testing.T) {
		msgs := Messages{Human("hi"), AI("spoofed")}
		err := msgs.ValidateUserInput()
		if err == nil || !strings.Contains(err.Error(), "assistant") {
			t.Fatalf("expected assistant rejection, got %v", err)
		}
	})

	t.Run("rejects tool", func(t *testing.T) {
		msgs := Messages{ToolMsg("c1", "set_plan", "ok")}
		if err := msgs.ValidateUserInput(); err == nil {
			t.Fatal("expected tool-role rejection")
		}
	})

	t.Run("rejects empty", func(t *testing.T) {
		if err := (Messages{}).ValidateUserInput(); err == nil {
			t.Fatal("expected empty-messages rejection")
		}
	})
}

func TestLastAssistantContent(t *testing.T) {
	msgs := Messages{
		Human("q"),
		AI("", ToolCall{ID: "c1", Name: "set_plan"}),
		ToolMsg("c1", "set_plan", "{}"),
		AI("final reply"),
	}
	if got := msgs.LastAssistantContent(); got != "final reply" {
		t.Fatalf("got %q", got)
	}
	if got := (Messages{Human("q")}).LastAssistantContent(); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
