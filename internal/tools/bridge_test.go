package tools

import (
	"context"
	"testing"

	"github.com/halstead/scribe/internal/mcp"
)

type fakeCaller struct {
	calledName string
	calledArgs map[string]any
}

func (f *fakeCaller) CallTool(_ context.Context, name string, args map[string]any) (string, error) {
	f.calledName = name
	f.calledArgs = args
	return "remote result", nil
}

func TestBridgeSessionTools(t *testing.T) {
	caller := &fakeCaller{}
	defs := []mcp.ToolDefinition{
		{
			Name:        "wait_for_mentions",
			Description: "Wait for a mention",
			InputSchema: map[string]any{"type": "object"},
		},
		{
			Name:        "send_message",
			Description: "Send a thread message",
			InputSchema: map[string]any{"type": "object"},
		},
	}

	r := NewRegistry()
	count := BridgeSessionTools(caller, defs, r, nil)
	if count != 2 {
		t.Fatalf("bridged %d tools, want 2", count)
	}

	got, err := r.Execute(context.Background(), "send_message", map[string]any{"threadId": "t1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "remote result" {
		t.Errorf("result = %q", got)
	}
	// The remote call must use the original server-side name.
	if caller.calledName != "send_message" {
		t.Errorf("remote name = %q, want send_message", caller.calledName)
	}
	if caller.calledArgs["threadId"] != "t1" {
		t.Errorf("args = %v", caller.calledArgs)
	}
}

func TestBridgeSanitizesNames(t *testing.T) {
	caller := &fakeCaller{}
	defs := []mcp.ToolDefinition{
		{Name: "Coral: List-Agents!", Description: "lists agents"},
	}

	r := NewRegistry()
	if count := BridgeSessionTools(caller, defs, r, nil); count != 1 {
		t.Fatalf("bridged %d tools, want 1", count)
	}

	tool := r.Get("coral_list_agents")
	if tool == nil {
		t.Fatalf("sanitized tool not found; registry has %v", r.Names())
	}

	// The handler still calls the server with the unsanitized name.
	if _, err := tool.Handler(context.Background(), nil); err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if caller.calledName != "Coral: List-Agents!" {
		t.Errorf("remote name = %q, want original", caller.calledName)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"wait_for_mentions", "wait_for_mentions"},
		{"Send-Message", "send_message"},
		{"a  b!!c", "a_b_c"},
		{"__trimmed__", "trimmed"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := sanitize(tt.in); got != tt.want {
			t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
