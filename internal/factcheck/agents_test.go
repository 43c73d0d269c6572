package factcheck

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// mockExecutor implements toolExecutor and records the last call.
type mockExecutor struct {
	app    string
	action string
	params map[string]any
	data   map[string]any
	err    error
}

func (m *mockExecutor) ExecuteAction(ctx context.Context, app, action string, params map[string]any) (map[string]any, error) {
	m.app = app
	m.action = action
	m.params = params
	return m.data, m.err
}

func TestBraveAgentFactCheck(t *testing.T) {
	exec := &mockExecutor{data: map[string]any{
		"results": []any{
			map[string]any{"title": "Acme Corp", "snippet": "Acme makes everything", "url": "https://acme.example"},
			map[string]any{"title": "Acme review", "description": "A fallback description"},
		},
	}}
	agent := NewBraveAgent(exec)

	result := agent.FactCheck(context.Background(), "acme corp")
	if !result.Success {
		t.Fatalf("unexpected failure: %+v", result)
	}
	if exec.app != "brave" || exec.action != "search" {
		t.Errorf("called %s/%s, want brave/search", exec.app, exec.action)
	}
	if exec.params["query"] != "acme corp verification facts" {
		t.Errorf("query = %v, want claim with verification suffix", exec.params["query"])
	}
	if !strings.Contains(result.Summary, "1. Acme Corp") {
		t.Errorf("summary missing numbered title: %q", result.Summary)
	}
	if !strings.Contains(result.Summary, "Source: https://acme.example") {
		t.Errorf("summary missing source URL: %q", result.Summary)
	}
	if !strings.Contains(result.Summary, "2. Acme review") {
		t.Errorf("summary missing second result: %q", result.Summary)
	}
	if !strings.Contains(result.Summary, "A fallback description") {
		t.Errorf("summary should fall back to description field: %q", result.Summary)
	}
}

func TestBraveAgentNoResults(t *testing.T) {
	exec := &mockExecutor{data: map[string]any{"results": []any{}}}
	agent := NewBraveAgent(exec)

	result := agent.Search(context.Background(), "anything")
	if !result.Success {
		t.Fatalf("unexpected failure: %+v", result)
	}
	if result.Summary != "No results found." {
		t.Errorf("Summary = %q, want no-results text", result.Summary)
	}
}

func TestBraveAgentTopThreeOnly(t *testing.T) {
	exec := &mockExecutor{data: map[string]any{
		"results": []any{
			map[string]any{"title": "one"},
			map[string]any{"title": "two"},
			map[string]any{"title": "three"},
			map[string]any{"title": "four"},
		},
	}}
	agent := NewBraveAgent(exec)

	result := agent.Search(context.Background(), "q")
	if strings.Contains(result.Summary, "four") {
		t.Errorf("summary should keep only the top three results: %q", result.Summary)
	}
	if !strings.Contains(result.Summary, "3. three") {
		t.Errorf("summary missing third result: %q", result.Summary)
	}
}

func TestBraveAgentTransportFailure(t *testing.T) {
	exec := &mockExecutor{err: errors.New("connection refused")}
	agent := NewBraveAgent(exec)

	result := agent.FactCheck(context.Background(), "claim")
	if result.Success {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(result.Summary, "Failed to search Brave") {
		t.Errorf("Summary = %q, want failure explanation", result.Summary)
	}
	if !strings.Contains(result.Error, "connection refused") {
		t.Errorf("Error = %q, want transport error detail", result.Error)
	}
}

func TestLinkedInLookupPerson(t *testing.T) {
	exec := &mockExecutor{data: map[string]any{
		"profile": map[string]any{
			"name":     "Jane Doe",
			"headline": "Senior Stylist",
			"company":  "Glow Salon",
			"location": "Toronto",
		},
	}}
	agent := NewLinkedInAgent(exec)

	result := agent.LookupPerson(context.Background(), "jane doe", "glow salon")
	if !result.Success {
		t.Fatalf("unexpected failure: %+v", result)
	}
	if exec.app != "linkedin" || exec.action != "search_person" {
		t.Errorf("called %s/%s, want linkedin/search_person", exec.app, exec.action)
	}
	if exec.params["company"] != "glow salon" {
		t.Errorf("params = %v, want company included", exec.params)
	}
	for _, want := range []string{"Name: Jane Doe", "Title: Senior Stylist", "Company: Glow Salon", "Location: Toronto"} {
		if !strings.Contains(result.Summary, want) {
			t.Errorf("summary missing %q: %q", want, result.Summary)
		}
	}
}

func TestLinkedInLookupPersonWithoutCompany(t *testing.T) {
	exec := &mockExecutor{data: map[string]any{"profile": map[string]any{"name": "Jane"}}}
	agent := NewLinkedInAgent(exec)

	agent.LookupPerson(context.Background(), "jane", "")
	if _, ok := exec.params["company"]; ok {
		t.Errorf("empty company should be omitted from params: %v", exec.params)
	}
}

func TestLinkedInLookupPersonNoProfile(t *testing.T) {
	exec := &mockExecutor{data: map[string]any{}}
	agent := NewLinkedInAgent(exec)

	result := agent.LookupPerson(context.Background(), "nobody", "")
	if result.Summary != "No profile found." {
		t.Errorf("Summary = %q, want no-profile text", result.Summary)
	}
}

func TestLinkedInLookupCompany(t *testing.T) {
	exec := &mockExecutor{data: map[string]any{
		"company": map[string]any{
			"name":     "Glow Salon",
			"industry": "Beauty",
			"size":     "11-50",
		},
	}}
	agent := NewLinkedInAgent(exec)

	result := agent.LookupCompany(context.Background(), "glow salon")
	if !result.Success {
		t.Fatalf("unexpected failure: %+v", result)
	}
	if exec.action != "search_company" {
		t.Errorf("action = %q, want search_company", exec.action)
	}
	for _, want := range []string{"Company: Glow Salon", "Industry: Beauty", "Size: 11-50"} {
		if !strings.Contains(result.Summary, want) {
			t.Errorf("summary missing %q: %q", want, result.Summary)
		}
	}
}

func TestLinkedInLookupCompanyFailure(t *testing.T) {
	exec := &mockExecutor{err: errors.New("timeout")}
	agent := NewLinkedInAgent(exec)

	result := agent.LookupCompany(context.Background(), "glow salon")
	if result.Success {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(result.Summary, "Failed to lookup LinkedIn company") {
		t.Errorf("Summary = %q, want failure explanation", result.Summary)
	}
}
