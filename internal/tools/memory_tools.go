package tools

import (
	"context"
	"log/slog"

	"github.com/halstead/scribe/internal/mem0"
)

// Locally-exposed memory tool names. These sit alongside the remotely
// supplied Coral tools in the registry.
const (
	StoreUserRequestTool = "store_user_request_in_mem0"
	SearchMemoriesTool   = "search_mem0_memories"
)

// memoryGateway is the slice of the mem0 gateway the tools use.
type memoryGateway interface {
	Record(ctx context.Context, request string) mem0.Result
	Recall(ctx context.Context, query string) mem0.Result
}

// RegisterMemoryTools adds the Mem0 store and search tools to the
// registry. Handlers always return (string, nil): the parent reasoning
// loop has no structured error channel for tool failures, so failure is
// reported inside the result text where the model can see it and react.
func RegisterMemoryTools(r *Registry, gw memoryGateway, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	r.Register(&Tool{
		Name:        StoreUserRequestTool,
		Description: "Store the user's request in Mem0 for future reference and learning.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_request": map[string]any{
					"type":        "string",
					"description": "The user's request or message to store",
				},
			},
			"required": []string{"user_request"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			request, _ := args["user_request"].(string)
			result := gw.Record(ctx, request)
			if !result.OK {
				logger.Warn("store tool reporting failure to model", "detail", result.Err)
			}
			return result.String(), nil
		},
	})

	r.Register(&Tool{
		Name:        SearchMemoriesTool,
		Description: "Search Mem0 for memories relevant to a query.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query to find relevant memories",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			result := gw.Recall(ctx, query)
			if !result.OK {
				logger.Warn("search tool reporting failure to model", "detail", result.Err)
			}
			return result.String(), nil
		},
	})
}
