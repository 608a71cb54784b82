package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/halstead/scribe/internal/httpkit"
)

// SSEConfig configures an SSE MCP transport.
type SSEConfig struct {
	// URL is the server's SSE endpoint, including any identity query
	// parameters.
	URL string

	// Headers are additional HTTP headers sent with every request.
	Headers map[string]string

	// ConnectTimeout bounds stream establishment: the GET must succeed
	// and the server must announce its message endpoint within this
	// window. Zero means 600s.
	ConnectTimeout time.Duration

	// ReadTimeout is the stream inactivity limit. If no event (not even
	// a keep-alive comment) arrives for this long, the stream is
	// considered dead. Zero means 600s. Mention waits idle for minutes
	// at a time; keep this generous.
	ReadTimeout time.Duration

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

const defaultSSETimeout = 600 * time.Second

// SSETransport communicates with an MCP server over Server-Sent Events.
// A long-lived GET stream carries server-to-client messages; the server's
// first event ("endpoint") names the URL that client requests are POSTed
// to. Responses are correlated with requests by JSON-RPC ID.
type SSETransport struct {
	url            string
	headers        map[string]string
	connectTimeout time.Duration
	readTimeout    time.Duration
	logger         *slog.Logger

	streamClient *http.Client // no overall timeout; the stream lives for the session
	postClient   *http.Client

	mu       sync.Mutex
	endpoint string
	pending  map[int64]chan *Response
	closed   bool

	endpointReady chan struct{} // closed once the endpoint event arrives
	done          chan struct{} // closed when the stream reader exits
	streamErr     error         // reason the reader exited; guarded by mu

	cancelStream context.CancelFunc
}

// NewSSETransport creates an SSE transport for the given config. The
// stream is not opened until Connect is called.
func NewSSETransport(cfg SSEConfig) *SSETransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultSSETimeout
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultSSETimeout
	}

	return &SSETransport{
		url:            cfg.URL,
		headers:        cfg.Headers,
		connectTimeout: connectTimeout,
		readTimeout:    readTimeout,
		logger:         logger,
		streamClient:   httpkit.NewClient(httpkit.WithTimeout(0), httpkit.WithLogger(logger)),
		postClient:     httpkit.NewClient(httpkit.WithLogger(logger)),
		pending:        make(map[int64]chan *Response),
		endpointReady:  make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Connect opens the event stream and blocks until the server announces
// its message endpoint (or the connect timeout expires). It must be
// called once, before Send or Notify.
func (t *SSETransport) Connect(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())
	t.cancelStream = cancel

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.url, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.streamClient.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("open SSE stream %s: %w", t.url, err)
	}
	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 1<<20)
		cancel()
		return fmt.Errorf("SSE server returned %d: %s", resp.StatusCode, errBody)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		httpkit.DrainAndClose(resp.Body, 1<<20)
		cancel()
		return fmt.Errorf("SSE server returned content type %q", ct)
	}

	go t.readStream(streamCtx, resp)

	select {
	case <-t.endpointReady:
		return nil
	case <-t.done:
		cancel()
		return fmt.Errorf("SSE stream closed before endpoint event: %w", t.exitErr())
	case <-time.After(t.connectTimeout):
		cancel()
		return fmt.Errorf("timed out waiting for SSE endpoint event after %s", t.connectTimeout)
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// readStream consumes the event stream until it ends, dispatching
// endpoint and message events. The inactivity watchdog tears down the
// stream when nothing arrives for readTimeout.
func (t *SSETransport) readStream(ctx context.Context, resp *http.Response) {
	defer resp.Body.Close()
	defer close(t.done)

	watchdog := time.AfterFunc(t.readTimeout, func() {
		t.logger.Warn("SSE stream inactive, closing", "timeout", t.readTimeout)
		t.cancelStream()
	})
	defer watchdog.Stop()

	var eventName string
	var data strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 10<<20)

	for scanner.Scan() {
		watchdog.Reset(t.readTimeout)
		line := scanner.Text()

		switch {
		case line == "":
			if data.Len() > 0 {
				t.dispatch(eventName, data.String())
			}
			eventName = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// Keep-alive comment; the watchdog reset above is its
			// only effect.
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		// id: and retry: fields are not used by this client.
	}

	err := scanner.Err()
	if err == nil {
		err = fmt.Errorf("SSE stream ended")
	}
	if ctx.Err() != nil {
		err = ctx.Err()
	}

	t.mu.Lock()
	t.streamErr = err
	// Unblock all waiters; the stream cannot deliver their responses.
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.mu.Unlock()

	t.logger.Debug("SSE stream reader exited", "error", err)
}

// dispatch handles a single complete SSE event.
func (t *SSETransport) dispatch(event, data string) {
	switch event {
	case "endpoint":
		endpoint, err := t.resolveEndpoint(data)
		if err != nil {
			t.logger.Error("bad SSE endpoint event", "data", data, "error", err)
			return
		}
		t.mu.Lock()
		first := t.endpoint == ""
		t.endpoint = endpoint
		t.mu.Unlock()
		if first {
			t.logger.Debug("SSE message endpoint announced", "endpoint", endpoint)
			close(t.endpointReady)
		}
	case "message", "":
		var resp Response
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			t.logger.Debug("unparseable SSE message", "error", err)
			return
		}
		if resp.Result == nil && resp.Error == nil {
			// Server-initiated request or notification; this client
			// issues none of the capabilities that solicit them.
			return
		}
		t.mu.Lock()
		ch, ok := t.pending[resp.ID]
		if ok {
			delete(t.pending, resp.ID)
		}
		t.mu.Unlock()
		if ok {
			ch <- &resp
		} else {
			t.logger.Debug("SSE response with no pending request", "id", resp.ID)
		}
	default:
		t.logger.Debug("ignoring SSE event", "event", event)
	}
}

// resolveEndpoint turns the endpoint event payload (absolute URL or
// path relative to the stream URL) into an absolute URL.
func (t *SSETransport) resolveEndpoint(raw string) (string, error) {
	base, err := url.Parse(t.url)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// Send POSTs a JSON-RPC request to the message endpoint and waits for
// the correlated response to arrive on the event stream. Some servers
// answer simple requests directly in the POST body; both paths are
// accepted.
func (t *SSETransport) Send(ctx context.Context, req *Request) (*Response, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport closed")
	}
	endpoint := t.endpoint
	if endpoint == "" {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport not connected")
	}
	ch := make(chan *Response, 1)
	t.pending[req.ID] = ch
	t.mu.Unlock()

	cleanup := func() {
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
	}

	body, inline, err := t.post(ctx, endpoint, req)
	if err != nil {
		cleanup()
		return nil, err
	}
	if inline {
		cleanup()
		var resp Response
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal inline response: %w", err)
		}
		return &resp, nil
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("SSE stream closed while waiting for response: %w", t.exitErr())
		}
		return resp, nil
	case <-t.done:
		cleanup()
		return nil, fmt.Errorf("SSE stream closed while waiting for response: %w", t.exitErr())
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	}
}

// Notify POSTs a JSON-RPC notification to the message endpoint.
func (t *SSETransport) Notify(ctx context.Context, notif *Notification) error {
	t.mu.Lock()
	endpoint := t.endpoint
	t.mu.Unlock()
	if endpoint == "" {
		return fmt.Errorf("transport not connected")
	}
	_, _, err := t.post(ctx, endpoint, notif)
	return err
}

// post sends one JSON payload to the message endpoint. It returns the
// response body and whether that body is an inline JSON-RPC response
// (as opposed to a bare acknowledgement).
func (t *SSETransport) post(ctx context.Context, endpoint string, payload any) ([]byte, bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := t.postClient.Do(httpReq)
	if err != nil {
		return nil, false, fmt.Errorf("POST to %s: %w", endpoint, err)
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	switch httpResp.StatusCode {
	case http.StatusOK:
		if strings.HasPrefix(httpResp.Header.Get("Content-Type"), "application/json") {
			body := httpkit.ReadErrorBody(httpResp.Body, 10<<20)
			if json.Valid([]byte(body)) {
				return []byte(body), true, nil
			}
		}
		return nil, false, nil
	case http.StatusAccepted, http.StatusNoContent:
		return nil, false, nil
	default:
		errBody := httpkit.ReadErrorBody(httpResp.Body, 1<<20)
		return nil, false, fmt.Errorf("MCP server returned %d: %s", httpResp.StatusCode, errBody)
	}
}

// exitErr returns the reason the stream reader exited.
func (t *SSETransport) exitErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.streamErr != nil {
		return t.streamErr
	}
	return fmt.Errorf("stream closed")
}

// Close tears down the event stream. Pending requests fail immediately.
func (t *SSETransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if t.cancelStream != nil {
		t.cancelStream()
	}
	return nil
}
