package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/boovines/Nudge/internal/store"
)

func TestNewTestServer(t *testing.T) {
	server, st := NewTestServer("canned reply")
	if server == nil {
		t.Fatal("NewTestServer returned nil server")
	}
	if st == nil {
		t.Fatal("NewTestServer returned nil store")
	}
}

func TestScriptedModelReplaysAndRepeats(t *testing.T) {
	model := NewScriptedModel("first", "second")

	for i, want := range []string{"first", "second", "second"} {
		got, err := model.GeneratePromptWithContext(context.Background(), "sys", "user")
		if err != nil {
			t.Fatalf("call %d returned error: %v", i, err)
		}
		if got != want {
			t.Errorf("call %d: expected %q, got %q", i, want, got)
		}
	}
	if model.Calls != 3 {
		t.Errorf("Expected 3 recorded calls, got %d", model.Calls)
	}
}

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{name: "matching status codes", expected: 200, actual: 200, shouldFail: false},
		{name: "different status codes", expected: 200, actual: 404, shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}

			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")

			if tt.shouldFail && !mockT.failed {
				t.Error("Expected test to fail but it passed")
			}
			if !tt.shouldFail && mockT.failed {
				t.Error("Expected test to pass but it failed")
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	tests := []struct {
		name           string
		jsonBody       string
		expectedStatus string
		shouldFail     bool
	}{
		{
			name:           "valid JSON with matching status",
			jsonBody:       `{"status":"ok","result":"test"}`,
			expectedStatus: "ok",
			shouldFail:     false,
		},
		{
			name:           "valid JSON with different status",
			jsonBody:       `{"status":"error","result":"test"}`,
			expectedStatus: "ok",
			shouldFail:     true,
		},
		{
			name:           "invalid JSON",
			jsonBody:       `{"status":}`,
			expectedStatus: "ok",
			shouldFail:     true,
		},
		{
			name:           "missing status field",
			jsonBody:       `{"result":"test"}`,
			expectedStatus: "ok",
			shouldFail:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			rr := httptest.NewRecorder()
			rr.Body.WriteString(tt.jsonBody)

			defer func() {
				if r := recover(); r != nil {
					// Fatalf panics in the mock; expected for invalid JSON.
					if !tt.shouldFail {
						t.Errorf("Unexpected panic: %v", r)
					}
				}
			}()

			response := AssertJSONResponse(mockT, rr, tt.expectedStatus)

			if tt.shouldFail && !mockT.failed {
				t.Error("Expected test to fail but it passed")
			}
			if !tt.shouldFail && mockT.failed {
				t.Errorf("Expected test to pass but it failed: %s", mockT.errorMsg)
			}
			if !tt.shouldFail && response == nil {
				t.Error("Expected response map to be returned")
			}
		})
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		body   interface{}
	}{
		{name: "GET request with no body", method: "GET", url: "/test", body: nil},
		{name: "POST request with JSON body", method: "POST", url: "/test", body: map[string]string{"key": "value"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateHTTPRequest(t, tt.method, tt.url, tt.body)

			if req == nil {
				t.Fatal("Expected request to be created, got nil")
			}
			if req.Method != tt.method {
				t.Errorf("Expected method %s, got %s", tt.method, req.Method)
			}
			if req.URL.Path != tt.url {
				t.Errorf("Expected URL %s, got %s", tt.url, req.URL.Path)
			}
		})
	}
}

func TestCreateJSONRequest(t *testing.T) {
	req := CreateJSONRequest(t, "POST", "/api/chat", `{"message":"hi","session_id":"s1"}`)

	if req.Method != "POST" {
		t.Errorf("Expected method POST, got %s", req.Method)
	}
	if req.URL.Path != "/api/chat" {
		t.Errorf("Expected URL /api/chat, got %s", req.URL.Path)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
}

func TestAssertTurnCount(t *testing.T) {
	st := store.NewInMemoryStore()

	mockT := &mockTestingT{}
	AssertTurnCount(mockT, st, "session-1", 0, "empty store")
	if mockT.failed {
		t.Errorf("Expected test to pass for empty store, but got: %s", mockT.errorMsg)
	}

	SeedTestSession(t, st, "session-1")

	mockT = &mockTestingT{}
	AssertTurnCount(mockT, st, "session-1", 2, "seeded session")
	if mockT.failed {
		t.Errorf("Expected test to pass for seeded session, but got: %s", mockT.errorMsg)
	}

	mockT = &mockTestingT{}
	AssertTurnCount(mockT, st, "session-1", 5, "wrong count")
	if !mockT.failed {
		t.Error("Expected test to fail for wrong count")
	}
}

func TestSeedTestSession(t *testing.T) {
	st := store.NewInMemoryStore()

	SeedTestSession(t, st, "session-1")

	turns, err := st.GetConversationHistory("session-1")
	if err != nil {
		t.Fatalf("Failed to get conversation history: %v", err)
	}
	if len(turns) != 2 {
		t.Errorf("Expected 2 turns, got %d", len(turns))
	}

	records, err := st.GetOfferRecords("session-1")
	if err != nil {
		t.Fatalf("Failed to get offer records: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 offer record, got %d", len(records))
	}
	if records[0].DiscountCode != "TESTCODE" {
		t.Errorf("Expected seeded discount code, got %q", records[0].DiscountCode)
	}
}

func TestMustMarshalJSON(t *testing.T) {
	testData := map[string]interface{}{
		"key1": "value1",
		"key2": 123,
	}

	result := MustMarshalJSON(t, testData)
	if len(result) == 0 {
		t.Error("Expected non-empty JSON data")
	}
}

func TestMustUnmarshalJSON(t *testing.T) {
	jsonData := []byte(`{"key":"value","number":123}`)
	var target map[string]interface{}

	MustUnmarshalJSON(t, jsonData, &target)

	if target["key"] != "value" {
		t.Errorf("Expected key to be 'value', got %v", target["key"])
	}
	if target["number"].(float64) != 123 {
		t.Errorf("Expected number to be 123, got %v", target["number"])
	}
}

// mockTestingT implements TestingT for testing our test helpers
type mockTestingT struct {
	failed   bool
	errorMsg string
	helper   bool
}

func (m *mockTestingT) Helper() {
	m.helper = true
}

func (m *mockTestingT) Errorf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Error(args ...interface{}) {
	m.failed = true
	if len(args) > 0 {
		m.errorMsg = fmt.Sprintf("%v", args[0])
	}
}

func (m *mockTestingT) Fatalf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
	panic("test failed")
}

func (m *mockTestingT) Fatal(args ...interface{}) {
	m.failed = true
	if len(args) > 0 {
		m.errorMsg = fmt.Sprintf("%v", args[0])
	}
	panic("test failed")
}
