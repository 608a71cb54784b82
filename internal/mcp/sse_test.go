package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// sseTestServer emulates a minimal SSE MCP server: the GET stream
// announces a message endpoint, POSTs are answered either inline or by
// pushing the response onto the stream.
type sseTestServer struct {
	t       *testing.T
	inline  bool // answer POSTs in the POST body instead of the stream
	dropAll bool // accept POSTs but never answer

	mu     sync.Mutex
	events chan string

	srv *httptest.Server
}

func newSSETestServer(t *testing.T) *sseTestServer {
	s := &sseTestServer{
		t:      t,
		events: make(chan string, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sse", s.handleStream)
	mux.HandleFunc("POST /messages", s.handleMessage)
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *sseTestServer) url() string { return s.srv.URL + "/sse?agentId=test" }

func (s *sseTestServer) closeStream() { close(s.events) }

func (s *sseTestServer) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)

	fmt.Fprintf(w, "event: endpoint\ndata: /messages?sessionId=abc\n\n")
	flusher.Flush()

	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			fmt.Fprint(w, ev)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *sseTestServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("sessionId") != "abc" {
		s.t.Errorf("POST missing sessionId from endpoint event: %s", r.URL)
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.ID == 0 {
		// Notifications carry no ID; just acknowledge.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp := Response{
		JSONRPC: jsonrpcVersion,
		ID:      req.ID,
		Result:  json.RawMessage(fmt.Sprintf(`{"echo":%q}`, req.Method)),
	}
	data, _ := json.Marshal(resp)

	switch {
	case s.dropAll:
		w.WriteHeader(http.StatusAccepted)
	case s.inline:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	default:
		s.events <- fmt.Sprintf("event: message\ndata: %s\n\n", data)
		w.WriteHeader(http.StatusAccepted)
	}
}

func newTestTransport(s *sseTestServer) *SSETransport {
	return NewSSETransport(SSEConfig{
		URL:            s.url(),
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
	})
}

func TestSSETransport_SendViaStream(t *testing.T) {
	server := newSSETestServer(t)
	tr := newTestTransport(server)
	defer tr.Close()

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	resp, err := tr.Send(context.Background(), NewRequest(1, "ping", nil))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.ID != 1 {
		t.Errorf("response ID = %d, want 1", resp.ID)
	}
	var result struct {
		Echo string `json:"echo"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Echo != "ping" {
		t.Errorf("echo = %q, want %q", result.Echo, "ping")
	}
}

func TestSSETransport_InlineResponse(t *testing.T) {
	server := newSSETestServer(t)
	server.inline = true
	tr := newTestTransport(server)
	defer tr.Close()

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	resp, err := tr.Send(context.Background(), NewRequest(9, "initialize", map[string]any{}))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.ID != 9 {
		t.Errorf("response ID = %d, want 9", resp.ID)
	}
}

func TestSSETransport_Notify(t *testing.T) {
	server := newSSETestServer(t)
	tr := newTestTransport(server)
	defer tr.Close()

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := tr.Notify(context.Background(), NewNotification("notifications/initialized", nil)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}

func TestSSETransport_SendBeforeConnect(t *testing.T) {
	server := newSSETestServer(t)
	tr := newTestTransport(server)
	defer tr.Close()

	if _, err := tr.Send(context.Background(), NewRequest(1, "ping", nil)); err == nil {
		t.Fatal("Send before Connect: want error, got nil")
	}
}

func TestSSETransport_StreamClosedFailsPending(t *testing.T) {
	server := newSSETestServer(t)
	server.dropAll = true
	tr := newTestTransport(server)
	defer tr.Close()

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// End the stream while a request is waiting for its response.
	go func() {
		time.Sleep(50 * time.Millisecond)
		server.closeStream()
	}()

	_, err := tr.Send(context.Background(), NewRequest(2, "ping", nil))
	if err == nil {
		t.Fatal("Send: want error after stream close, got nil")
	}
}

func TestSSETransport_SendContextCancelled(t *testing.T) {
	server := newSSETestServer(t)
	server.dropAll = true
	tr := newTestTransport(server)
	defer tr.Close()

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tr.Send(ctx, NewRequest(3, "ping", nil))
	if err == nil {
		t.Fatal("Send: want context error, got nil")
	}
}

func TestSSETransport_RejectsNonStreamResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "not a stream")
	}))
	defer srv.Close()

	tr := NewSSETransport(SSEConfig{URL: srv.URL, ConnectTimeout: time.Second, ReadTimeout: time.Second})
	defer tr.Close()

	if err := tr.Connect(context.Background()); err == nil {
		t.Fatal("Connect: want error for non-SSE content type, got nil")
	}
}

func TestSSETransport_ConnectErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent id already registered", http.StatusConflict)
	}))
	defer srv.Close()

	tr := NewSSETransport(SSEConfig{URL: srv.URL, ConnectTimeout: time.Second, ReadTimeout: time.Second})
	defer tr.Close()

	if err := tr.Connect(context.Background()); err == nil {
		t.Fatal("Connect: want error for HTTP 409, got nil")
	}
}
