package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/boovines/Nudge/internal/models"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-haiku-latest"
	anthropicVersion        = "2023-06-01"
	anthropicTimeout        = 60 * time.Second
)

// ErrNoContentReturned indicates the Messages API answered without any text
// blocks to read a reply from.
var ErrNoContentReturned = errors.New("no content returned")

// AnthropicClient generates replies through the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	model      string
	maxTokens  int64
	baseURL    string
	httpClient *http.Client
}

// AnthropicOption configures an AnthropicClient.
type AnthropicOption func(*AnthropicClient)

// WithAnthropicAPIKey overrides the ANTHROPIC_API_KEY environment variable.
func WithAnthropicAPIKey(apiKey string) AnthropicOption {
	return func(c *AnthropicClient) { c.apiKey = apiKey }
}

// WithAnthropicModel overrides the completion model.
func WithAnthropicModel(model string) AnthropicOption {
	return func(c *AnthropicClient) { c.model = model }
}

// WithAnthropicMaxTokens overrides the reply token budget.
func WithAnthropicMaxTokens(maxTokens int64) AnthropicOption {
	return func(c *AnthropicClient) { c.maxTokens = maxTokens }
}

// WithAnthropicBaseURL overrides the API endpoint, mainly for tests.
func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(c *AnthropicClient) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithAnthropicHTTPClient overrides the HTTP client.
func WithAnthropicHTTPClient(httpClient *http.Client) AnthropicOption {
	return func(c *AnthropicClient) { c.httpClient = httpClient }
}

// NewAnthropicClient creates an Anthropic-backed client. The API key is
// taken from WithAnthropicAPIKey or the ANTHROPIC_API_KEY environment
// variable, the model from WithAnthropicModel or ANTHROPIC_MODEL.
func NewAnthropicClient(opts ...AnthropicOption) (*AnthropicClient, error) {
	slog.Debug("genai.NewAnthropicClient: creating Anthropic client")
	c := &AnthropicClient{
		model:      defaultAnthropicModel,
		maxTokens:  defaultMaxTokens,
		baseURL:    defaultAnthropicBaseURL,
		httpClient: &http.Client{Timeout: anthropicTimeout},
	}
	if m := os.Getenv("ANTHROPIC_MODEL"); m != "" {
		c.model = m
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		c.apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	slog.Debug("genai.NewAnthropicClient: client ready", "model", c.model)
	return c, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int64              `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// GeneratePromptWithContext generates a reply for one system/user pair.
func (c *AnthropicClient) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, systemPrompt, []anthropicMessage{
		{Role: "user", Content: userPrompt},
	})
}

// GenerateWithTurns generates a reply for a full conversation. The Messages
// API has no system role inside the message list, so every system turn
// (persona plus injected context notes) is folded into the system parameter
// in order and only user/assistant turns travel as messages.
func (c *AnthropicClient) GenerateWithTurns(ctx context.Context, turns []models.Turn) (string, error) {
	var systemParts []string
	messages := make([]anthropicMessage, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case models.RoleSystem:
			systemParts = append(systemParts, turn.Content)
		case models.RoleAssistant:
			messages = append(messages, anthropicMessage{Role: "assistant", Content: turn.Content})
		default:
			messages = append(messages, anthropicMessage{Role: "user", Content: turn.Content})
		}
	}
	return c.generate(ctx, strings.Join(systemParts, "\n\n"), messages)
}

func (c *AnthropicClient) generate(ctx context.Context, systemPrompt string, messages []anthropicMessage) (string, error) {
	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages:  messages,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	slog.Debug("AnthropicClient.generate: calling messages API", "model", c.model, "messages", len(messages))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Anthropic API: %w", err)
	}
	defer resp.Body.Close()

	var parsed anthropicResponse
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if jsonErr := json.Unmarshal(raw, &parsed); jsonErr == nil && parsed.Error != nil {
			return "", fmt.Errorf("Anthropic API returned status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("Anthropic API returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	var reply strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	if reply.Len() == 0 {
		return "", ErrNoContentReturned
	}
	out := strings.TrimSpace(reply.String())
	slog.Debug("AnthropicClient.generate: reply received", "length", len(out))
	return out, nil
}
