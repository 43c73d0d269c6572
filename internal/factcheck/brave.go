package factcheck

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/boovines/Nudge/internal/models"
)

// toolExecutor is the slice of the Composio client the agents need.
type toolExecutor interface {
	ExecuteAction(ctx context.Context, app, action string, params map[string]any) (map[string]any, error)
}

const braveAppName = "brave"

// BraveAgent verifies claims with Brave web search executed through Composio.
type BraveAgent struct {
	exec toolExecutor
}

// NewBraveAgent wraps a tool executor as a search capability.
func NewBraveAgent(exec toolExecutor) *BraveAgent {
	return &BraveAgent{exec: exec}
}

// FactCheck verifies a claim by biasing the search toward verification
// sources.
func (a *BraveAgent) FactCheck(ctx context.Context, claim string) models.FactCheckResult {
	return a.Search(ctx, claim+" verification facts")
}

// Search runs a web search and folds the top results into a short summary
// suitable for injection into the model context.
func (a *BraveAgent) Search(ctx context.Context, query string) models.FactCheckResult {
	data, err := a.exec.ExecuteAction(ctx, braveAppName, "search", map[string]any{"query": query})
	if err != nil {
		slog.Warn("BraveAgent.Search: search failed", "error", err)
		return models.FactCheckResult{
			Success:   false,
			AgentType: models.AgentTypeSearch,
			Summary:   fmt.Sprintf("Failed to search Brave: %s", err),
			Error:     err.Error(),
		}
	}

	return models.FactCheckResult{
		Success:   true,
		AgentType: models.AgentTypeSearch,
		Summary:   formatSearchResults(data),
		Source:    "Brave search",
	}
}

// formatSearchResults renders up to three results as numbered title,
// clipped snippet, and source URL.
func formatSearchResults(data map[string]any) string {
	results, _ := data["results"].([]any)
	if len(results) == 0 {
		return "No results found."
	}

	var b strings.Builder
	for i, raw := range results {
		if i == 3 {
			break
		}
		item, _ := raw.(map[string]any)
		title := stringField(item, "title")
		if title == "" {
			title = "Untitled"
		}
		snippet := stringField(item, "snippet")
		if snippet == "" {
			snippet = stringField(item, "description")
		}
		url := stringField(item, "url")

		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		if snippet != "" {
			fmt.Fprintf(&b, "   %s...\n", clip(snippet, 150))
		}
		if url != "" {
			fmt.Fprintf(&b, "   Source: %s\n", url)
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// clip truncates to n runes without splitting a multibyte character.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
