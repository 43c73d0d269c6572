// Package testutil provides common test utilities and helpers for Nudge tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/boovines/Nudge/internal/api"
	"github.com/boovines/Nudge/internal/bouncer"
	"github.com/boovines/Nudge/internal/config"
	"github.com/boovines/Nudge/internal/discount"
	"github.com/boovines/Nudge/internal/factcheck"
	"github.com/boovines/Nudge/internal/models"
	"github.com/boovines/Nudge/internal/pricing"
	"github.com/boovines/Nudge/internal/store"
	"github.com/boovines/Nudge/internal/traits"
)

// TestingT is the subset of *testing.T the helpers need. Tests for the
// helpers themselves substitute a mock to observe failures.
type TestingT interface {
	Helper()
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// ScriptedModel is a conversation-model fake that returns canned replies in
// order, repeating the last one when the script runs out. Safe for
// concurrent sessions.
type ScriptedModel struct {
	mu      sync.Mutex
	replies []string
	Err     error
	Calls   int
}

// NewScriptedModel creates a model fake that replays the given replies.
func NewScriptedModel(replies ...string) *ScriptedModel {
	if len(replies) == 0 {
		replies = []string{"Sure thing."}
	}
	return &ScriptedModel{replies: replies}
}

func (m *ScriptedModel) next() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reply := m.replies[min(m.Calls, len(m.replies)-1)]
	m.Calls++
	return reply, m.Err
}

// GeneratePromptWithContext returns the next scripted reply.
func (m *ScriptedModel) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.next()
}

// GenerateWithTurns returns the next scripted reply.
func (m *ScriptedModel) GenerateWithTurns(ctx context.Context, turns []models.Turn) (string, error) {
	return m.next()
}

// NewTestServer creates a test API server with in-memory dependencies: the
// default merchant config, a scripted model, simulated discount codes, and
// no fact-check capabilities.
func NewTestServer(replies ...string) (*api.Server, *store.InMemoryStore) {
	merchant := config.Default()
	engine := pricing.NewEngine(merchant)
	scorer := traits.NewScorer(merchant)
	discounts := discount.NewService(engine, scorer, nil)
	router := factcheck.NewRouter(nil, nil)
	st := store.NewInMemoryStore()
	agent := bouncer.New(merchant, NewScriptedModel(replies...), router, scorer, discounts, st)
	return api.NewServer(agent, st), st
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TestingT, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response envelope and validates the status field.
func AssertJSONResponse(t TestingT, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with an optional JSON body for testing.
func CreateHTTPRequest(t TestingT, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// CreateJSONRequest creates an HTTP request with a raw JSON string body.
func CreateJSONRequest(t TestingT, method, url, jsonBody string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(jsonBody))
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertTurnCount validates the stored transcript length for a session.
func AssertTurnCount(t TestingT, st store.Store, sessionID string, expected int, context string) {
	t.Helper()
	turns, err := st.GetConversationHistory(sessionID)
	if err != nil {
		t.Fatalf("%s: failed to get conversation history: %v", context, err)
	}
	if len(turns) != expected {
		t.Errorf("%s: expected %d turns, got %d", context, expected, len(turns))
	}
}

// SeedTestSession stores a short transcript and one offer record so audit
// read paths have data to return.
func SeedTestSession(t TestingT, st store.Store, sessionID string) {
	t.Helper()

	turns := []models.Turn{
		{Role: models.RoleUser, Content: "Do you do discounts?"},
		{Role: models.RoleAssistant, Content: "For the right customer, maybe."},
	}
	for _, turn := range turns {
		if err := st.SaveConversationTurn(sessionID, turn); err != nil {
			t.Fatalf("failed to seed conversation turn: %v", err)
		}
	}

	rec := models.OfferRecord{
		SessionID:    sessionID,
		Counter:      1,
		DiscountPct:  8,
		DiscountCode: "TESTCODE",
		Simulated:    true,
	}
	if err := st.SaveOfferRecord(rec); err != nil {
		t.Fatalf("failed to seed offer record: %v", err)
	}
}

// MustMarshalJSON marshals an object to JSON and fails the test on error.
func MustMarshalJSON(t TestingT, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails the test on error.
func MustUnmarshalJSON(t TestingT, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
