// Package agent implements the mention-driven task runner: one cycle
// per inbound mention, from idle-wait through memory store/recall and
// post generation to the threaded reply.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/halstead/scribe/internal/coral"
	"github.com/halstead/scribe/internal/journal"
	"github.com/halstead/scribe/internal/llm"
	"github.com/halstead/scribe/internal/mem0"
	"github.com/halstead/scribe/internal/posts"
	"github.com/halstead/scribe/internal/prompts"
	"github.com/halstead/scribe/internal/tools"
)

// maxGenerationAttempts bounds the self-correction loop: the model gets
// the correction prompt this many times before the cycle fails.
const maxGenerationAttempts = 3

// maxToolIterations bounds how many tool-call rounds the model may take
// within one generation before it must produce the post set.
const maxToolIterations = 4

// Session is the slice of the Coral session the runner uses. A nil
// mention with a nil error means the wait window expired idle.
type Session interface {
	WaitForMentions(ctx context.Context) (*coral.Mention, error)
	SendMessage(ctx context.Context, threadID, content string, mentions []string) error
}

// MemoryGateway is the slice of the mem0 gateway the runner uses.
type MemoryGateway interface {
	Record(ctx context.Context, request string) mem0.Result
	Recall(ctx context.Context, query string) mem0.Result
}

// cycleJournal records completed cycles. Satisfied by journal.Store.
type cycleJournal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Runner executes mention cycles. One cycle runs to completion before
// the next begins; the runner owns cycle boundaries, so the supervisor
// needs no partial-cycle cleanup on shutdown.
type Runner struct {
	logger   *slog.Logger
	session  Session
	memory   MemoryGateway
	llm      llm.Client
	model    string
	registry *tools.Registry

	journal cycleJournal
}

// NewRunner creates a task runner.
func NewRunner(logger *slog.Logger, session Session, memory MemoryGateway, client llm.Client, model string, registry *tools.Registry) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger:   logger,
		session:  session,
		memory:   memory,
		llm:      client,
		model:    model,
		registry: registry,
	}
}

// SetJournal enables best-effort cycle journaling.
func (r *Runner) SetJournal(j cycleJournal) {
	r.journal = j
}

// RunCycle executes one full mention cycle:
//
//  1. Block until a mention arrives. No other stimulus proceeds.
//  2. Capture thread and sender identifiers for correlation.
//  3. Record the raw request in memory.
//  4. Recall context relevant to the request.
//  5. Generate exactly five posts, self-correcting malformed output.
//  6. Send the formatted set back on the captured thread.
//
// Memory failures are non-fatal: their result strings flow into the
// generation prompt where the model can see and react to them. Any
// other failure escapes as an error for the supervisor to absorb.
func (r *Runner) RunCycle(ctx context.Context) error {
	started := time.Now()

	mention, err := r.session.WaitForMentions(ctx)
	if err != nil {
		return fmt.Errorf("wait for mention: %w", err)
	}
	if mention == nil {
		// The wait window expired with nothing to do. Not a failure;
		// the supervisor paces and the next cycle waits again.
		r.logger.Debug("no mention this cycle")
		return nil
	}
	if mention.ThreadID == "" {
		return fmt.Errorf("mention carried no thread id; cannot reply")
	}

	logger := r.logger.With("thread_id", mention.ThreadID, "sender_id", mention.SenderID)
	logger.Info("processing mention", "request_len", len(mention.Content))

	recorded := r.memory.Record(ctx, mention.Content)
	logger.Debug("request recorded", "ok", recorded.OK)

	recalled := r.memory.Recall(ctx, mention.Content)
	logger.Debug("memories recalled", "ok", recalled.OK)

	set, err := r.generate(ctx, mention.Content, recalled.String())

	entry := journal.Entry{
		ThreadID:  mention.ThreadID,
		SenderID:  mention.SenderID,
		Request:   mention.Content,
		StartedAt: started,
	}

	if err != nil {
		r.writeJournal(ctx, entry, err)
		return fmt.Errorf("generate posts: %w", err)
	}
	entry.PostCount = len(set)

	message := posts.FormatMessage(set)
	if err := r.session.SendMessage(ctx, mention.ThreadID, message, []string{mention.SenderID}); err != nil {
		r.writeJournal(ctx, entry, err)
		return err
	}
	entry.Sent = true

	r.writeJournal(ctx, entry, nil)
	logger.Info("cycle complete", "posts", len(set), "elapsed", time.Since(started).Truncate(time.Millisecond))
	return nil
}

// generate asks the model for the post set, executing any tool calls it
// makes along the way and feeding contract violations back as
// correction prompts. Returns the validated set or the last violation.
func (r *Runner) generate(ctx context.Context, request, memories string) ([]posts.Post, error) {
	messages := []llm.Message{
		{Role: "system", Content: prompts.SystemPrompt},
		{Role: "user", Content: prompts.GenerationPrompt(request, memories)},
	}

	var toolDefs []map[string]any
	if r.registry != nil {
		toolDefs = r.registry.List()
	}

	var lastErr error
	for attempt := 1; attempt <= maxGenerationAttempts; attempt++ {
		content, newMessages, err := r.complete(ctx, messages, toolDefs)
		if err != nil {
			return nil, err
		}
		messages = newMessages

		set, parseErr := posts.Parse(content)
		if parseErr == nil {
			return set, nil
		}

		lastErr = parseErr
		r.logger.Warn("post set rejected, requesting correction",
			"attempt", attempt,
			"reason", parseErr,
		)
		messages = append(messages, llm.Message{
			Role:    "user",
			Content: prompts.CorrectionPrompt(parseErr.Error()),
		})
	}

	return nil, fmt.Errorf("no valid post set after %d attempts: %w", maxGenerationAttempts, lastErr)
}

// complete runs one model exchange, resolving tool calls until the
// model produces plain content or the iteration bound is hit. Returns
// the final content and the accumulated message history.
func (r *Runner) complete(ctx context.Context, messages []llm.Message, toolDefs []map[string]any) (string, []llm.Message, error) {
	for i := 0; i < maxToolIterations; i++ {
		resp, err := r.llm.Chat(ctx, r.model, messages, toolDefs)
		if err != nil {
			return "", messages, fmt.Errorf("chat: %w", err)
		}

		messages = append(messages, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			return resp.Message.Content, messages, nil
		}

		for _, tc := range resp.Message.ToolCalls {
			result := r.executeToolCall(ctx, tc)
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	return "", messages, fmt.Errorf("model did not produce content within %d tool iterations", maxToolIterations)
}

// executeToolCall runs one tool call, reporting failures as result text
// so the model can adapt rather than aborting the cycle.
func (r *Runner) executeToolCall(ctx context.Context, tc llm.ToolCall) string {
	name := tc.Function.Name
	r.logger.Debug("executing tool call", "tool", name)

	if r.registry == nil {
		return fmt.Sprintf("tool %s is not available", name)
	}

	result, err := r.registry.Execute(ctx, name, tc.Function.Arguments)
	if err != nil {
		var unavailable *tools.ErrToolUnavailable
		if errors.As(err, &unavailable) {
			return fmt.Sprintf("tool %s is not available", name)
		}
		r.logger.Warn("tool call failed", "tool", name, "error", err)
		return fmt.Sprintf("tool %s failed: %v", name, err)
	}
	return result
}

// writeJournal records the cycle outcome, best-effort.
func (r *Runner) writeJournal(ctx context.Context, entry journal.Entry, cycleErr error) {
	if r.journal == nil {
		return
	}
	if cycleErr != nil {
		entry.Error = cycleErr.Error()
	}
	entry.EndedAt = time.Now()
	if err := r.journal.Record(ctx, entry); err != nil {
		r.logger.Warn("journal write failed", "error", err)
	}
}
