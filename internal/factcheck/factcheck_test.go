package factcheck

import (
	"context"
	"testing"

	"github.com/boovines/Nudge/internal/models"
)

// mockSearchAgent records fact-check calls.
type mockSearchAgent struct {
	claim  string
	result models.FactCheckResult
}

func (m *mockSearchAgent) FactCheck(ctx context.Context, claim string) models.FactCheckResult {
	m.claim = claim
	return m.result
}

// mockDirectoryAgent records which lookup was chosen.
type mockDirectoryAgent struct {
	method  string
	name    string
	company string
	result  models.FactCheckResult
}

func (m *mockDirectoryAgent) LookupPerson(ctx context.Context, name, company string) models.FactCheckResult {
	m.method = "person"
	m.name = name
	m.company = company
	return m.result
}

func (m *mockDirectoryAgent) LookupCompany(ctx context.Context, company string) models.FactCheckResult {
	m.method = "company"
	m.company = company
	return m.result
}

func TestDetectDirectoryLookup(t *testing.T) {
	router := NewRouter(nil, nil)

	detection := router.Detect("I work at Acme Corp")
	if !detection.Needed {
		t.Fatal("expected detection for employment claim")
	}
	if detection.AgentType != models.AgentTypeDirectoryLookup {
		t.Errorf("AgentType = %s, want directory-lookup", detection.AgentType)
	}
	if detection.Confidence != 0.7 {
		t.Errorf("Confidence = %v, want 0.7", detection.Confidence)
	}
	if detection.Query != "acme corp" {
		t.Errorf("Query = %q, want %q", detection.Query, "acme corp")
	}
	if detection.ExtractedInfo["company"] != "acme corp" {
		t.Errorf("ExtractedInfo = %v, want company acme corp", detection.ExtractedInfo)
	}
}

func TestDetectExplicitLookupRequest(t *testing.T) {
	router := NewRouter(nil, nil)

	detection := router.Detect("Can you look up Jane Doe on LinkedIn")
	if !detection.Needed || detection.AgentType != models.AgentTypeDirectoryLookup {
		t.Fatalf("expected directory detection, got %+v", detection)
	}
	if detection.Query != "jane doe" {
		t.Errorf("Query = %q, want %q", detection.Query, "jane doe")
	}
}

func TestDetectSearchClaim(t *testing.T) {
	router := NewRouter(nil, nil)

	message := "According to Forbes, this brand is huge"
	detection := router.Detect(message)
	if !detection.Needed {
		t.Fatal("expected detection for sourced claim")
	}
	if detection.AgentType != models.AgentTypeSearch {
		t.Errorf("AgentType = %s, want search", detection.AgentType)
	}
	if detection.Confidence != 0.6 {
		t.Errorf("Confidence = %v, want 0.6", detection.Confidence)
	}
	if detection.Query != message {
		t.Errorf("Query = %q, want full original message", detection.Query)
	}
}

func TestDetectGenericAssertion(t *testing.T) {
	router := NewRouter(nil, nil)

	detection := router.Detect("My products have parabens")
	if !detection.Needed || detection.AgentType != models.AgentTypeSearch {
		t.Fatalf("expected generic search detection, got %+v", detection)
	}
	if detection.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5", detection.Confidence)
	}
}

func TestDetectProfessionWithoutCompany(t *testing.T) {
	router := NewRouter(nil, nil)

	// "i'm a ..." with no "at <company>" falls through to the generic
	// family rather than the directory family.
	detection := router.Detect("I'm a makeup artist")
	if !detection.Needed {
		t.Fatal("expected detection")
	}
	if detection.AgentType != models.AgentTypeSearch {
		t.Errorf("AgentType = %s, want search", detection.AgentType)
	}
	if detection.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5", detection.Confidence)
	}
}

func TestDetectDirectoryOutranksSearch(t *testing.T) {
	router := NewRouter(nil, nil)

	// Matches both "i work at" and "(.+) (is|are) (.+)"; the directory
	// family is evaluated first.
	detection := router.Detect("I work at Glow Labs and our serums are popular")
	if detection.AgentType != models.AgentTypeDirectoryLookup {
		t.Errorf("AgentType = %s, want directory-lookup", detection.AgentType)
	}
	if detection.Confidence != 0.7 {
		t.Errorf("Confidence = %v, want 0.7", detection.Confidence)
	}
}

func TestDetectNoMatch(t *testing.T) {
	router := NewRouter(nil, nil)

	detection := router.Detect("hello there")
	if detection.Needed {
		t.Errorf("expected no detection, got %+v", detection)
	}
	if detection.AgentType != models.AgentTypeNone {
		t.Errorf("AgentType = %s, want none", detection.AgentType)
	}
}

func TestExtractEntities(t *testing.T) {
	router := NewRouter(nil, nil)

	tests := []struct {
		name    string
		message string
		company string
		title   string
	}{
		{"company only", "I work at Acme Corp", "acme corp", ""},
		{"company clipped at comma", "I work at Acme Corp, and I love it", "acme corp", ""},
		{"title and company", "I'm a stylist at Glow Salon.", "glow salon", "stylist"},
		{"nothing", "just browsing", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := router.ExtractEntities(tt.message)
			if info["company"] != tt.company {
				t.Errorf("company = %q, want %q", info["company"], tt.company)
			}
			if info["title"] != tt.title {
				t.Errorf("title = %q, want %q", info["title"], tt.title)
			}
		})
	}
}

func TestShouldAskConsent(t *testing.T) {
	search := &mockSearchAgent{}
	directory := &mockDirectoryAgent{}

	tests := []struct {
		name      string
		router    *Router
		detection models.FactCheckDetection
		want      bool
	}{
		{
			"search configured",
			NewRouter(search, nil),
			models.FactCheckDetection{Needed: true, AgentType: models.AgentTypeSearch, Confidence: 0.6},
			true,
		},
		{
			"search unconfigured",
			NewRouter(nil, directory),
			models.FactCheckDetection{Needed: true, AgentType: models.AgentTypeSearch, Confidence: 0.6},
			false,
		},
		{
			"directory configured",
			NewRouter(nil, directory),
			models.FactCheckDetection{Needed: true, AgentType: models.AgentTypeDirectoryLookup, Confidence: 0.7},
			true,
		},
		{
			"directory unconfigured",
			NewRouter(search, nil),
			models.FactCheckDetection{Needed: true, AgentType: models.AgentTypeDirectoryLookup, Confidence: 0.7},
			false,
		},
		{
			"not needed",
			NewRouter(search, directory),
			models.FactCheckDetection{Needed: false},
			false,
		},
		{
			"below confidence threshold",
			NewRouter(search, directory),
			models.FactCheckDetection{Needed: true, AgentType: models.AgentTypeSearch, Confidence: 0.4},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.router.ShouldAskConsent(tt.detection); got != tt.want {
				t.Errorf("ShouldAskConsent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDispatchSearch(t *testing.T) {
	search := &mockSearchAgent{result: models.FactCheckResult{Success: true, Summary: "verified"}}
	router := NewRouter(search, nil)

	result := router.Dispatch(context.Background(), models.FactCheckDetection{
		Needed:    true,
		AgentType: models.AgentTypeSearch,
		Query:     "this serum cures acne",
	})
	if !result.Success {
		t.Fatalf("unexpected failure: %+v", result)
	}
	if search.claim != "this serum cures acne" {
		t.Errorf("claim = %q, want original query", search.claim)
	}
}

func TestDispatchDirectoryParameterShaping(t *testing.T) {
	tests := []struct {
		name        string
		info        map[string]string
		query       string
		wantMethod  string
		wantName    string
		wantCompany string
	}{
		{"name and company", map[string]string{"name": "jane", "company": "acme"}, "q", "person", "jane", "acme"},
		{"company only", map[string]string{"company": "acme"}, "q", "company", "", "acme"},
		{"name only", map[string]string{"name": "jane"}, "q", "person", "jane", ""},
		{"nothing extracted", nil, "fallback query", "person", "fallback query", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			directory := &mockDirectoryAgent{result: models.FactCheckResult{Success: true}}
			router := NewRouter(nil, directory)

			router.Dispatch(context.Background(), models.FactCheckDetection{
				Needed:        true,
				AgentType:     models.AgentTypeDirectoryLookup,
				Query:         tt.query,
				ExtractedInfo: tt.info,
			})

			if directory.method != tt.wantMethod {
				t.Errorf("method = %q, want %q", directory.method, tt.wantMethod)
			}
			if directory.name != tt.wantName {
				t.Errorf("name = %q, want %q", directory.name, tt.wantName)
			}
			if directory.company != tt.wantCompany {
				t.Errorf("company = %q, want %q", directory.company, tt.wantCompany)
			}
		})
	}
}

func TestDispatchUnconfiguredCapability(t *testing.T) {
	router := NewRouter(nil, nil)

	result := router.Dispatch(context.Background(), models.FactCheckDetection{
		Needed:    true,
		AgentType: models.AgentTypeSearch,
		Query:     "anything",
	})
	if result.Success {
		t.Fatal("expected failure for unconfigured capability")
	}
	if result.Error == "" {
		t.Error("expected explanatory error")
	}
	if result.AgentType != models.AgentTypeSearch {
		t.Errorf("AgentType = %s, want search", result.AgentType)
	}
}
