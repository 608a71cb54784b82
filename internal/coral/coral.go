// Package coral manages the session against the Coral MCP server: URL
// construction, SSE connection, tool discovery, and typed wrappers over
// the server's mention and messaging tools.
package coral

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/halstead/scribe/internal/config"
	"github.com/halstead/scribe/internal/mcp"
)

// Remote tool names defined by the Coral server.
const (
	toolWaitForMentions = "wait_for_mentions"
	toolSendMessage     = "send_message"
)

// defaultWaitTimeout is how long one wait_for_mentions call may idle
// when no configured read timeout is available.
const defaultWaitTimeout = 600 * time.Second

// ServerURL builds the session URL from the base SSE endpoint and the
// agent identity. Identity parameters are query-encoded, so distinct
// (baseURL, agentID) pairs never collide.
func ServerURL(baseURL, agentID, description string) string {
	params := url.Values{}
	params.Set("agentId", agentID)
	params.Set("agentDescription", description)
	return baseURL + "?" + params.Encode()
}

// Session is an established tool-calling session with a Coral server.
type Session struct {
	client      mcpClient
	transport   *mcp.SSETransport
	logger      *slog.Logger
	tools       []mcp.ToolDefinition
	waitTimeout time.Duration
}

// mcpClient is the slice of mcp.Client the session uses. Narrowed to an
// interface so tests can substitute a scripted client.
type mcpClient interface {
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) ([]mcp.ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Connect establishes the session: builds the URL, opens the SSE
// stream, performs the MCP handshake, and enumerates the server's
// tools. There is no local fallback tool set — a connection failure
// here is fatal for the process.
func Connect(ctx context.Context, cfg config.CoralConfig, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	serverURL := ServerURL(cfg.SSEURL, cfg.AgentID, cfg.AgentDescription)
	logger.Info("connecting to Coral server", "url", serverURL)

	transport := mcp.NewSSETransport(mcp.SSEConfig{
		URL:            serverURL,
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutSec) * time.Second,
		ReadTimeout:    time.Duration(cfg.ReadTimeoutSec) * time.Second,
		Logger:         logger,
	})

	if err := transport.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to Coral server: %w", err)
	}

	client := mcp.NewClient("coral", transport, logger)
	if err := client.Initialize(ctx); err != nil {
		transport.Close()
		return nil, fmt.Errorf("initialize Coral session: %w", err)
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("list Coral tools: %w", err)
	}

	logger.Info("Coral session established", "agent_id", cfg.AgentID, "tools", len(tools))

	waitTimeout := time.Duration(cfg.ReadTimeoutSec) * time.Second
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}

	return &Session{
		client:      client,
		transport:   transport,
		logger:      logger,
		tools:       tools,
		waitTimeout: waitTimeout,
	}, nil
}

// NewSession wraps an already-initialized MCP client. Used by tests.
func NewSession(client mcpClient, tools []mcp.ToolDefinition, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{client: client, logger: logger, tools: tools, waitTimeout: defaultWaitTimeout}
}

// SetWaitTimeout overrides how long one mention wait may idle.
func (s *Session) SetWaitTimeout(d time.Duration) {
	if d > 0 {
		s.waitTimeout = d
	}
}

// Tools returns the remotely-defined tool descriptors discovered at
// connect time.
func (s *Session) Tools() []mcp.ToolDefinition {
	return s.tools
}

// CallTool invokes an arbitrary remote tool by name.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	return s.client.CallTool(ctx, name, args)
}

// WaitForMentions blocks until another agent mentions us on a thread,
// or the wait window expires. This is an idle-wait, not a stall: the
// call routinely sits for minutes inside the server's own long poll.
// The window matches the SSE read timeout so server and client agree
// on how long one wait may last.
//
// An expired window returns (nil, nil): the server answers it with a
// plain status line rather than a mention, and an empty window is a
// normal idle iteration, not a failure.
func (s *Session) WaitForMentions(ctx context.Context) (*Mention, error) {
	raw, err := s.client.CallTool(ctx, toolWaitForMentions, map[string]any{
		"timeoutMs": s.waitTimeout.Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("wait for mentions: %w", err)
	}

	mention := ParseMention(raw)
	if mention == nil || mention.ThreadID == "" {
		// Covers both an empty result and the server's plain status
		// line ("No new messages received within the timeout period").
		s.logger.Debug("no mentions within wait window", "response", truncate(raw, 200))
		return nil, nil
	}

	s.logger.Info("mention received",
		"thread_id", mention.ThreadID,
		"sender_id", mention.SenderID,
		"content_len", len(mention.Content),
	)
	return mention, nil
}

// SendMessage posts content back on the given thread, mentioning the
// listed agents. Delivery is only as verified as the remote tool's own
// report; there is no second confirmation channel.
func (s *Session) SendMessage(ctx context.Context, threadID, content string, mentions []string) error {
	args := map[string]any{
		"threadId": threadID,
		"content":  content,
		"mentions": mentions,
	}
	if _, err := s.client.CallTool(ctx, toolSendMessage, args); err != nil {
		return fmt.Errorf("send message to thread %s: %w", threadID, err)
	}
	s.logger.Info("message sent", "thread_id", threadID, "content_len", len(content))
	return nil
}

// Ping checks whether the Coral server is responsive.
func (s *Session) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close tears down the session.
func (s *Session) Close() error {
	return s.client.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
