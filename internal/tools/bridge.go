package tools

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/halstead/scribe/internal/mcp"
)

// sanitizeRe matches characters that are not lowercase alphanumeric or underscore.
var sanitizeRe = regexp.MustCompile(`[^a-z0-9_]`)

// ToolCaller invokes a remote tool by name. Satisfied by coral.Session.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// BridgeSessionTools registers the remote session's tool descriptors on
// the registry so they appear to the LLM alongside the local memory
// tools. Remote names are kept as-is when they are already clean tool
// identifiers; anything else is sanitized.
//
// Returns the number of tools registered.
func BridgeSessionTools(caller ToolCaller, defs []mcp.ToolDefinition, r *Registry, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	count := 0
	for _, td := range defs {
		name := sanitize(td.Name)
		if name == "" {
			logger.Warn("skipping remote tool with unusable name", "name", td.Name)
			continue
		}

		remoteName := td.Name
		r.Register(&Tool{
			Name:        name,
			Description: td.Description,
			Parameters:  td.InputSchema,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return caller.CallTool(ctx, remoteName, args)
			},
		})
		count++

		logger.Debug("bridged session tool", "remote_name", remoteName, "name", name)
	}

	return count
}

// sanitize converts a name to lowercase and replaces non-alphanumeric
// characters (except underscore) with underscores. Consecutive
// underscores are collapsed and leading/trailing underscores are trimmed.
func sanitize(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "-", "_")
	s = sanitizeRe.ReplaceAllString(s, "_")

	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}

	return strings.Trim(s, "_")
}
