package mem0

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"
)

// Result is the typed outcome of a gateway operation. The reasoning
// layer that consumes tool output has no structured error channel, so
// failures travel inside the result text rather than as Go errors —
// Record and Recall never propagate an error across this boundary.
type Result struct {
	OK   bool
	Text string // success payload, rendered for the reasoning layer
	Err  string // failure description when !OK
}

// String renders the result the way the reasoning layer sees it.
func (r Result) String() string {
	if r.OK {
		return r.Text
	}
	return r.Err
}

// memoryStore is the slice of Client the gateway uses. Narrowed to an
// interface so tests can substitute a failing client.
type memoryStore interface {
	Add(ctx context.Context, messages []Message, userID string) error
	Search(ctx context.Context, query, userID string) (string, error)
}

// Gateway proxies the two memory operations to Mem0 under a fixed
// logical user identity. Both operations are synchronous, stateless per
// call, and best-effort.
type Gateway struct {
	store  memoryStore
	userID string
	logger *slog.Logger
}

// NewGateway creates a memory gateway bound to the given user identity.
func NewGateway(store memoryStore, userID string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{store: store, userID: userID, logger: logger}
}

// Record stores a user request as a single-message transcript. The
// success text echoes a short prefix of the request so the reasoning
// layer can confirm what was stored.
func (g *Gateway) Record(ctx context.Context, request string) Result {
	messages := []Message{{Role: "user", Content: request}}

	if err := g.store.Add(ctx, messages, g.userID); err != nil {
		g.logger.Warn("memory record failed", "error", err)
		return Result{Err: fmt.Sprintf("error storing request in memory: %v", err)}
	}

	return Result{
		OK:   true,
		Text: fmt.Sprintf("stored user request in memory: %s", prefix(request, 50)),
	}
}

// Recall runs a semantic search for prior context relevant to the query.
func (g *Gateway) Recall(ctx context.Context, query string) Result {
	matches, err := g.store.Search(ctx, query, g.userID)
	if err != nil {
		g.logger.Warn("memory recall failed", "error", err)
		return Result{Err: fmt.Sprintf("error searching memories: %v", err)}
	}

	return Result{
		OK:   true,
		Text: fmt.Sprintf("relevant memories found for this query: %s", matches),
	}
}

// prefix returns at most n bytes of s, marking truncation. The cut
// backs up to a rune boundary so the echo stays valid UTF-8 even when
// the limit lands inside a multi-byte character.
func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
