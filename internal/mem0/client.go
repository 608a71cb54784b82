// Package mem0 is the gateway to the hosted Mem0 memory service. The
// low-level client speaks the Mem0 REST API; the Gateway on top of it
// presents the two memory operations the task runner uses and converts
// every failure into a readable result string instead of an error.
package mem0

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/halstead/scribe/internal/config"
	"github.com/halstead/scribe/internal/httpkit"
)

// Message is one transcript entry submitted to Mem0.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is a client for the Mem0 REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Mem0 API client.
func NewClient(cfg config.Mem0Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		logger:  logger.With("service", "mem0"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

type addRequest struct {
	Messages []Message `json:"messages"`
	UserID   string    `json:"user_id"`
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
}

// Add stores a transcript under the given user identity.
func (c *Client) Add(ctx context.Context, messages []Message, userID string) error {
	_, err := c.post(ctx, "/v1/memories/", addRequest{Messages: messages, UserID: userID})
	return err
}

// Search runs a semantic query against the given user identity and
// returns the matches as an opaque JSON blob. Ranking and storage
// internals are the service's concern, not ours.
func (c *Client) Search(ctx context.Context, query, userID string) (string, error) {
	body, err := c.post(ctx, "/v1/memories/search/", searchRequest{Query: query, UserID: userID})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mem0 request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(resp.Body, 1<<20)
		return nil, fmt.Errorf("mem0 API error %d: %s", resp.StatusCode, errBody)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
