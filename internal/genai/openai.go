package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/boovines/Nudge/internal/models"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 150
)

// ErrNoChoicesReturned indicates the completions API answered without any
// choices to read a reply from.
var ErrNoChoicesReturned = errors.New("no completion choices returned")

// chatService is the slice of the OpenAI SDK the client depends on. Tests
// substitute it to avoid network calls.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openaiChatService adapts the SDK's completion service to chatService.
type openaiChatService struct {
	completions openai.ChatCompletionService
}

func (s openaiChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Client generates replies through the OpenAI chat completions API.
type Client struct {
	chat        chatService
	apiKey      string
	model       openai.ChatModel
	temperature float64
	maxTokens   int64
	debugMode   bool
	stateDir    string
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey overrides the OPENAI_API_KEY environment variable.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) { c.apiKey = apiKey }
}

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = openai.ChatModel(model) }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(temperature float64) Option {
	return func(c *Client) { c.temperature = temperature }
}

// WithMaxTokens overrides the reply token budget.
func WithMaxTokens(maxTokens int64) Option {
	return func(c *Client) { c.maxTokens = maxTokens }
}

// WithDebugMode enables request/response capture under the state directory.
func WithDebugMode(debug bool) Option {
	return func(c *Client) { c.debugMode = debug }
}

// WithStateDir sets the directory debug captures are written under.
func WithStateDir(dir string) Option {
	return func(c *Client) { c.stateDir = dir }
}

// NewClient creates an OpenAI-backed client. The API key is taken from
// WithAPIKey or the OPENAI_API_KEY environment variable, the model from
// WithModel or OPENAI_MODEL.
func NewClient(opts ...Option) (*Client, error) {
	slog.Debug("genai.NewClient: creating OpenAI client")
	c := &Client{
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	if m := os.Getenv("OPENAI_MODEL"); m != "" {
		c.model = openai.ChatModel(m)
	} else {
		c.model = openai.ChatModelGPT4oMini
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		c.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	api := openai.NewClient(option.WithAPIKey(c.apiKey))
	c.chat = openaiChatService{completions: api.Chat.Completions}
	slog.Debug("genai.NewClient: client ready", "model", c.model, "debugMode", c.debugMode)
	return c, nil
}

// GeneratePrompt generates a reply for one system/user pair with a
// background context.
func (c *Client) GeneratePrompt(systemPrompt, userPrompt string) (string, error) {
	return c.GeneratePromptWithContext(context.Background(), systemPrompt, userPrompt)
}

// GeneratePromptWithContext generates a reply for one system/user pair.
func (c *Client) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, "GeneratePromptWithContext", []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	})
}

// GenerateWithTurns generates a reply for a full conversation. System turns
// are passed through inline, which keeps injected context notes in the order
// the orchestrator placed them.
func (c *Client) GenerateWithTurns(ctx context.Context, turns []models.Turn) (string, error) {
	return c.generate(ctx, "GenerateWithTurns", toOpenAIMessages(turns))
}

func (c *Client) generate(ctx context.Context, method string, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       c.model,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	}
	slog.Debug("Client.generate: calling completions API", "method", method, "model", c.model, "messages", len(messages))
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	c.logDebug(method, params, resp)
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("Client.generate: reply received", "method", method, "length", len(reply))
	return reply, nil
}

func toOpenAIMessages(turns []models.Turn) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case models.RoleSystem:
			messages = append(messages, openai.SystemMessage(turn.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	return messages
}

// debugEntry is the on-disk shape of one captured API exchange.
type debugEntry struct {
	Timestamp string `json:"timestamp"`
	Method    string `json:"method"`
	Model     string `json:"model"`
	Params    any    `json:"params"`
	Response  any    `json:"response"`
}

// logDebug writes the exchange to <stateDir>/debug when debug mode is on.
// Failures are logged and swallowed so capture never breaks a reply.
func (c *Client) logDebug(method string, params, response any) {
	if !c.debugMode {
		return
	}
	dir := c.stateDir
	if dir == "" {
		dir = os.TempDir()
	}
	debugDir := filepath.Join(dir, "debug")
	if err := os.MkdirAll(debugDir, 0755); err != nil {
		slog.Warn("Client.logDebug: failed to create debug directory", "dir", debugDir, "error", err)
		return
	}
	entry := debugEntry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Method:    method,
		Model:     string(c.model),
		Params:    params,
		Response:  response,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("Client.logDebug: failed to marshal debug entry", "error", err)
		return
	}
	name := fmt.Sprintf("genai_debug_%d.json", time.Now().UnixNano())
	path := filepath.Join(debugDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		slog.Warn("Client.logDebug: failed to write debug entry", "path", path, "error", err)
		return
	}
	slog.Debug("Client.logDebug: wrote debug entry", "path", path)
}
