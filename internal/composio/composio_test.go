package composio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("COMPOSIO_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	t.Setenv("COMPOSIO_API_KEY", "")
	client, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if client == nil {
		t.Error("expected client instance, got nil")
	}
}

func TestExecuteAction_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/api/v2/actions/search/execute" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Errorf("expected API key header, got %q", got)
		}

		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.AppName != "brave" {
			t.Errorf("expected app brave, got %q", req.AppName)
		}
		if req.Input["query"] != "acme corp" {
			t.Errorf("unexpected input: %v", req.Input)
		}

		json.NewEncoder(w).Encode(executeResponse{
			Successful: true,
			Data:       map[string]any{"results": []any{map[string]any{"title": "Acme"}}},
		})
	}))
	defer server.Close()

	client, err := NewClient(WithAPIKey("test-key"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	data, err := client.ExecuteAction(context.Background(), "brave", "search", map[string]any{"query": "acme corp"})
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	if _, ok := data["results"]; !ok {
		t.Errorf("expected results in data, got %v", data)
	}
}

func TestExecuteAction_ReportedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(executeResponse{Successful: false, Error: "rate limited"})
	}))
	defer server.Close()

	client, err := NewClient(WithAPIKey("test-key"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.ExecuteAction(context.Background(), "brave", "search", nil)
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected rate limited error, got %v", err)
	}
}

func TestExecuteAction_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(WithAPIKey("test-key"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.ExecuteAction(context.Background(), "linkedin", "search_person", map[string]any{"name": "jo"})
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("expected status 500 error, got %v", err)
	}
}

func TestExecuteAction_MissingAppOrAction(t *testing.T) {
	client, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.ExecuteAction(context.Background(), "", "search", nil); err == nil {
		t.Error("expected error for empty app")
	}
	if _, err := client.ExecuteAction(context.Background(), "brave", "", nil); err == nil {
		t.Error("expected error for empty action")
	}
}
