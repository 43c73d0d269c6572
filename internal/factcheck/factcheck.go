// Package factcheck detects claims in customer messages that warrant
// external verification and routes them to the configured capability.
//
// Detection is a pure pattern classifier; dispatching talks to real
// capabilities (web search, professional directory) and therefore only
// happens after the customer has explicitly consented.
package factcheck

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/boovines/Nudge/internal/models"
)

// SearchAgent verifies free-text claims against the public web.
type SearchAgent interface {
	FactCheck(ctx context.Context, claim string) models.FactCheckResult
}

// DirectoryAgent verifies people and companies against a professional
// directory.
type DirectoryAgent interface {
	LookupPerson(ctx context.Context, name, company string) models.FactCheckResult
	LookupCompany(ctx context.Context, company string) models.FactCheckResult
}

// Router classifies messages and dispatches consented fact checks. A nil
// agent means that capability is not configured; detections still occur but
// consent is never requested for an unavailable capability.
type Router struct {
	search    SearchAgent
	directory DirectoryAgent
}

// NewRouter builds a router over the available capabilities. Either agent
// may be nil.
func NewRouter(search SearchAgent, directory DirectoryAgent) *Router {
	return &Router{search: search, directory: directory}
}

// Detect classifies a message against the ordered rule families. The first
// matching pattern wins and fixes the confidence for the whole detection.
// Directory matches carry the first capture group as query and any entities
// ExtractEntities found; search matches carry the full original message.
func (r *Router) Detect(message string) models.FactCheckDetection {
	lower := strings.ToLower(message)

	for _, ru := range directoryRules {
		m := ru.pattern.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		query := lower
		if len(m) > 1 {
			query = m[1]
		}
		detection := models.FactCheckDetection{
			Needed:     true,
			AgentType:  ru.agent,
			Query:      query,
			Confidence: ru.confidence,
		}
		if info := r.ExtractEntities(message); len(info) > 0 {
			detection.ExtractedInfo = info
		}
		slog.Debug("factcheck.Detect: directory claim detected", "query", query, "confidence", ru.confidence)
		return detection
	}

	for _, ru := range searchRules {
		if ru.pattern.MatchString(lower) {
			slog.Debug("factcheck.Detect: verification claim detected", "confidence", ru.confidence)
			return models.FactCheckDetection{
				Needed:     true,
				AgentType:  ru.agent,
				Query:      message,
				Confidence: ru.confidence,
			}
		}
	}

	for _, ru := range genericRules {
		if ru.pattern.MatchString(lower) {
			slog.Debug("factcheck.Detect: generic assertion detected", "confidence", ru.confidence)
			return models.FactCheckDetection{
				Needed:     true,
				AgentType:  ru.agent,
				Query:      message,
				Confidence: ru.confidence,
			}
		}
	}

	return models.FactCheckDetection{Needed: false, AgentType: models.AgentTypeNone}
}

// ExtractEntities pulls company and title substrings out of a message for
// directory lookups. Keys present only when something matched.
func (r *Router) ExtractEntities(message string) map[string]string {
	lower := strings.ToLower(message)
	info := make(map[string]string)

	if m := companyPattern.FindStringSubmatch(lower); m != nil {
		info["company"] = strings.TrimSpace(m[1])
	}
	if m := titleCompanyPattern.FindStringSubmatch(lower); m != nil {
		info["title"] = strings.TrimSpace(m[1])
		info["company"] = strings.TrimSpace(m[2])
	}

	return info
}

// ShouldAskConsent reports whether the bouncer should ask the customer
// before dispatching. Requires a real detection, at least moderate
// confidence, and a configured capability for the detected agent type.
func (r *Router) ShouldAskConsent(detection models.FactCheckDetection) bool {
	if !detection.Needed {
		return false
	}
	switch detection.AgentType {
	case models.AgentTypeSearch:
		if r.search == nil {
			return false
		}
	case models.AgentTypeDirectoryLookup:
		if r.directory == nil {
			return false
		}
	default:
		return false
	}
	return detection.Confidence >= 0.5
}

// Dispatch executes a consented detection against its capability. It never
// returns an error; capability failures and unconfigured agents come back
// as failure results so the conversation can continue.
func (r *Router) Dispatch(ctx context.Context, detection models.FactCheckDetection) models.FactCheckResult {
	switch detection.AgentType {
	case models.AgentTypeSearch:
		if r.search == nil {
			return unavailableResult(detection.AgentType)
		}
		slog.Info("factcheck.Dispatch: running web verification", "query", detection.Query)
		return r.search.FactCheck(ctx, detection.Query)

	case models.AgentTypeDirectoryLookup:
		if r.directory == nil {
			return unavailableResult(detection.AgentType)
		}
		name := detection.ExtractedInfo["name"]
		company := detection.ExtractedInfo["company"]
		slog.Info("factcheck.Dispatch: running directory lookup", "name", name, "company", company)
		switch {
		case company != "" && name != "":
			return r.directory.LookupPerson(ctx, name, company)
		case company != "":
			return r.directory.LookupCompany(ctx, company)
		case name != "":
			return r.directory.LookupPerson(ctx, name, "")
		default:
			return r.directory.LookupPerson(ctx, detection.Query, "")
		}

	default:
		return unavailableResult(detection.AgentType)
	}
}

func unavailableResult(agent models.AgentType) models.FactCheckResult {
	return models.FactCheckResult{
		Success:   false,
		AgentType: agent,
		Error:     fmt.Sprintf("agent type %q not available or not configured", agent),
	}
}
