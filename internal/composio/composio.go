// Package composio provides a client for executing Composio-hosted tools.
//
// Fact-checking agents use it to reach external capabilities (web search,
// LinkedIn lookups) through a single tool-execution endpoint instead of
// integrating each provider API directly.
package composio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const (
	// DefaultBaseURL is the Composio backend used unless overridden.
	DefaultBaseURL = "https://backend.composio.dev"

	// DefaultEntityID identifies the connected account executing tools.
	DefaultEntityID = "default"

	defaultTimeout = 30 * time.Second
)

// Client executes Composio tool actions over HTTP.
type Client struct {
	apiKey     string
	baseURL    string
	entityID   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the API key explicitly instead of reading COMPOSIO_API_KEY.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithBaseURL overrides the Composio backend URL, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithEntityID sets the Composio entity the actions execute as.
func WithEntityID(id string) Option {
	return func(c *Client) { c.entityID = id }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a Composio client. The API key comes from the
// COMPOSIO_API_KEY environment variable unless WithAPIKey is given.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		apiKey:     os.Getenv("COMPOSIO_API_KEY"),
		baseURL:    DefaultBaseURL,
		entityID:   DefaultEntityID,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("COMPOSIO_API_KEY not set")
	}
	return c, nil
}

// executeRequest is the JSON body of a tool-execution call.
type executeRequest struct {
	AppName  string         `json:"appName"`
	EntityID string         `json:"entityId"`
	Input    map[string]any `json:"input"`
}

// executeResponse is the envelope Composio returns for every execution.
type executeResponse struct {
	Successful bool           `json:"successful"`
	Data       map[string]any `json:"data"`
	Error      string         `json:"error"`
}

// ExecuteAction runs a named action of a Composio app and returns the
// action's data payload. A response with successful=false becomes an error.
func (c *Client) ExecuteAction(ctx context.Context, app, action string, params map[string]any) (map[string]any, error) {
	if app == "" || action == "" {
		return nil, fmt.Errorf("app and action are required")
	}

	body, err := json.Marshal(executeRequest{
		AppName:  app,
		EntityID: c.entityID,
		Input:    params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode action input: %w", err)
	}

	url := fmt.Sprintf("%s/api/v2/actions/%s/execute", c.baseURL, action)
	slog.Debug("composio.ExecuteAction: executing action", "app", app, "action", action)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute action %s/%s: %w", app, action, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("composio.ExecuteAction: non-OK status", "app", app, "action", action, "status", resp.StatusCode)
		return nil, fmt.Errorf("action %s/%s returned status %d: %s", app, action, resp.StatusCode, truncate(string(respBody), 200))
	}

	var envelope executeResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !envelope.Successful {
		if envelope.Error == "" {
			envelope.Error = "action reported failure without detail"
		}
		return nil, fmt.Errorf("action %s/%s failed: %s", app, action, envelope.Error)
	}

	slog.Debug("composio.ExecuteAction: action succeeded", "app", app, "action", action)
	return envelope.Data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
