package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

// mockTransport is a test double for the Transport interface.
type mockTransport struct {
	mu        sync.Mutex
	responses map[string]*Response // method -> canned response
	sent      []Request            // captured requests
	notifs    []Notification       // captured notifications
	closed    bool
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		responses: make(map[string]*Response),
	}
}

func (m *mockTransport) addResponse(method string, result any) {
	data, _ := json.Marshal(result)
	m.responses[method] = &Response{
		JSONRPC: jsonrpcVersion,
		Result:  json.RawMessage(data),
	}
}

func (m *mockTransport) addError(method string, code int, msg string) {
	m.responses[method] = &Response{
		JSONRPC: jsonrpcVersion,
		Error:   &RPCError{Code: code, Message: msg},
	}
}

func (m *mockTransport) Send(_ context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, *req)
	resp, ok := m.responses[req.Method]
	if !ok {
		return nil, fmt.Errorf("unexpected method: %s", req.Method)
	}
	out := *resp
	out.ID = req.ID
	return &out, nil
}

func (m *mockTransport) Notify(_ context.Context, notif *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifs = append(m.notifs, *notif)
	return nil
}

func (m *mockTransport) Close() error {
	m.closed = true
	return nil
}

func initResult() initializeResult {
	r := initializeResult{ProtocolVersion: protocolVersion}
	r.ServerInfo.Name = "coral-test"
	r.ServerInfo.Version = "1.0.0"
	return r
}

func TestClient_Initialize(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())

	client := NewClient("coral", mt, nil)
	if err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if len(mt.sent) != 1 {
		t.Fatalf("sent %d requests, want 1", len(mt.sent))
	}
	if mt.sent[0].Method != "initialize" {
		t.Errorf("method = %q, want %q", mt.sent[0].Method, "initialize")
	}

	// The handshake ends with the initialized notification.
	if len(mt.notifs) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(mt.notifs))
	}
	if mt.notifs[0].Method != "notifications/initialized" {
		t.Errorf("notification method = %q, want %q", mt.notifs[0].Method, "notifications/initialized")
	}

	client.mu.RLock()
	defer client.mu.RUnlock()
	if client.serverName != "coral-test" {
		t.Errorf("serverName = %q, want %q", client.serverName, "coral-test")
	}
}

func TestClient_ListToolsCaches(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addResponse("tools/list", toolsListResult{
		Tools: []ToolDefinition{
			{
				Name:        "wait_for_mentions",
				Description: "Wait until another agent mentions you",
				InputSchema: map[string]any{"type": "object"},
			},
			{
				Name:        "send_message",
				Description: "Send a message to a thread",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"threadId": map[string]any{"type": "string"},
					},
				},
			},
		},
	})

	client := NewClient("coral", mt, nil)
	if err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}
	if tools[0].Name != "wait_for_mentions" {
		t.Errorf("tools[0].Name = %q, want %q", tools[0].Name, "wait_for_mentions")
	}

	// Second call returns the cached list without another request.
	if _, err := client.ListTools(context.Background()); err != nil {
		t.Fatalf("ListTools (cached): %v", err)
	}
	if len(mt.sent) != 2 {
		t.Errorf("sent %d requests, want 2 (init + one tools/list)", len(mt.sent))
	}
}

func TestClient_CallToolText(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addResponse("tools/call", callToolResult{
		Content: []ContentBlock{
			{Type: "text", Text: "message delivered"},
		},
	})

	client := NewClient("coral", mt, nil)
	if err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	result, err := client.CallTool(context.Background(), "send_message", map[string]any{
		"threadId": "thread-1",
		"content":  "hello",
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result != "message delivered" {
		t.Errorf("result = %q, want %q", result, "message delivered")
	}
}

func TestClient_CallToolMixedContent(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addResponse("tools/call", callToolResult{
		Content: []ContentBlock{
			{Type: "text", Text: "line 1"},
			{Type: "image"},
			{Type: "text", Text: "line 2"},
		},
	})

	client := NewClient("coral", mt, nil)
	if err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	result, err := client.CallTool(context.Background(), "mixed", nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	// Non-text blocks carry nothing usable and are dropped.
	want := "line 1\nline 2"
	if result != want {
		t.Errorf("result = %q, want %q", result, want)
	}
}

func TestClient_CallToolIsError(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addResponse("tools/call", callToolResult{
		Content: []ContentBlock{
			{Type: "text", Text: "thread not found"},
		},
		IsError: true,
	})

	client := NewClient("coral", mt, nil)
	if err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err := client.CallTool(context.Background(), "send_message", nil)
	if err == nil {
		t.Fatal("CallTool: want error for isError result, got nil")
	}
}

func TestClient_RPCErrorSurfaces(t *testing.T) {
	mt := newMockTransport()
	mt.addError("initialize", -32603, "Internal error")

	client := NewClient("coral", mt, nil)
	err := client.Initialize(context.Background())
	if err == nil {
		t.Fatal("Initialize: want error, got nil")
	}
}

func TestClient_RequestIDsIncrement(t *testing.T) {
	mt := newMockTransport()
	mt.addResponse("initialize", initResult())
	mt.addResponse("ping", map[string]any{})

	client := NewClient("coral", mt, nil)
	if err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	seen := make(map[int64]bool)
	for _, req := range mt.sent {
		if seen[req.ID] {
			t.Errorf("duplicate request ID %d", req.ID)
		}
		seen[req.ID] = true
	}
}

func TestClient_Close(t *testing.T) {
	mt := newMockTransport()
	client := NewClient("coral", mt, nil)
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !mt.closed {
		t.Error("transport not closed")
	}
}
