package genai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"

	"github.com/boovines/Nudge/internal/models"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp      openai.ChatCompletion
	err       error
	gotParams openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.gotParams = params
	return m.resp, m.err
}

func completionWith(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestGeneratePrompt_Success(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: completionWith("Hello World")}}
	out, err := client.GeneratePrompt("system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
}

func TestGeneratePrompt_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.GeneratePrompt("sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGeneratePrompt_NoChoices(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}}
	_, err := client.GeneratePrompt("sys", "usr")
	if err != ErrNoChoicesReturned {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestGeneratePrompt_TrimsWhitespace(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: completionWith("  padded reply \n")}}
	out, err := client.GeneratePrompt("sys", "usr")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "padded reply" {
		t.Errorf("expected trimmed reply, got %q", out)
	}
}

func TestGenerateWithTurns_RoleMapping(t *testing.T) {
	mock := &mockChatService{resp: completionWith("reply")}
	client := &Client{
		chat:        mock,
		model:       "test-model",
		temperature: 0.7,
		maxTokens:   150,
	}
	turns := []models.Turn{
		{Role: models.RoleSystem, Content: "persona", Timestamp: time.Now()},
		{Role: models.RoleUser, Content: "hi there", Timestamp: time.Now()},
		{Role: models.RoleAssistant, Content: "welcome", Timestamp: time.Now()},
		{Role: models.RoleSystem, Content: "context note", Timestamp: time.Now()},
	}
	out, err := client.GenerateWithTurns(context.Background(), turns)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "reply" {
		t.Errorf("expected 'reply', got %q", out)
	}
	params := mock.gotParams
	if string(params.Model) != "test-model" {
		t.Errorf("expected model test-model, got %s", params.Model)
	}
	if got := params.Temperature.Value; got != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", got)
	}
	if got := params.MaxTokens.Value; got != 150 {
		t.Errorf("expected max tokens 150, got %v", got)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected first message to be a system message")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected second message to be a user message")
	}
	if params.Messages[2].OfAssistant == nil {
		t.Error("expected third message to be an assistant message")
	}
	if params.Messages[3].OfSystem == nil {
		t.Error("expected trailing context note to stay a system message")
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Error("expected client instance, got nil")
	}
}

func TestNewClient_Defaults(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "")
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cli.model != openai.ChatModelGPT4oMini {
		t.Errorf("expected default model %s, got %s", openai.ChatModelGPT4oMini, cli.model)
	}
	if cli.temperature != 0.7 {
		t.Errorf("expected default temperature 0.7, got %v", cli.temperature)
	}
	if cli.maxTokens != 150 {
		t.Errorf("expected default max tokens 150, got %v", cli.maxTokens)
	}
}

func TestNewClient_ModelFromEnv(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(cli.model) != "gpt-4o" {
		t.Errorf("expected model gpt-4o from env, got %s", cli.model)
	}
}

func TestNew_PrefersOpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")
	cli, err := New()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, ok := cli.(*Client); !ok {
		t.Errorf("expected OpenAI-backed client, got %T", cli)
	}
}

func TestNew_FallsBackToAnthropic(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")
	cli, err := New()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, ok := cli.(*AnthropicClient); !ok {
		t.Errorf("expected Anthropic-backed client, got %T", cli)
	}
}

func TestNew_NoKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := New()
	if err == nil {
		t.Error("expected error when no provider key is set, got nil")
	}
}
