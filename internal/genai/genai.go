// Package genai provides the conversation-model capability behind the
// bouncer's replies.
//
// Two providers are supported: OpenAI chat completions and the Anthropic
// Messages API. Both satisfy ClientInterface and the concrete provider is
// chosen once at construction; callers never branch on provider shape.
package genai

import (
	"context"
	"fmt"
	"os"

	"github.com/boovines/Nudge/internal/models"
)

// ClientInterface is the single contract the orchestrator talks to.
type ClientInterface interface {
	// GeneratePromptWithContext generates a reply for one system/user pair.
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// GenerateWithTurns generates a reply for a full conversation. Turns may
	// include system entries (persona plus injected context notes); each
	// provider maps them to its own wire shape.
	GenerateWithTurns(ctx context.Context, turns []models.Turn) (string, error)
}

// New selects a provider from the environment: OpenAI when OPENAI_API_KEY
// is set, otherwise Anthropic when ANTHROPIC_API_KEY is set.
func New() (ClientInterface, error) {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return NewClient()
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return NewAnthropicClient()
	}
	return nil, fmt.Errorf("no model API key found, set OPENAI_API_KEY or ANTHROPIC_API_KEY")
}
