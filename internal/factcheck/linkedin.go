package factcheck

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/boovines/Nudge/internal/models"
)

const linkedinAppName = "linkedin"

// LinkedInAgent verifies people and companies through Composio's LinkedIn
// app.
type LinkedInAgent struct {
	exec toolExecutor
}

// NewLinkedInAgent wraps a tool executor as a directory capability.
func NewLinkedInAgent(exec toolExecutor) *LinkedInAgent {
	return &LinkedInAgent{exec: exec}
}

// LookupPerson searches for a person, optionally narrowed by company.
func (a *LinkedInAgent) LookupPerson(ctx context.Context, name, company string) models.FactCheckResult {
	params := map[string]any{"name": name}
	if company != "" {
		params["company"] = company
	}

	data, err := a.exec.ExecuteAction(ctx, linkedinAppName, "search_person", params)
	if err != nil {
		slog.Warn("LinkedInAgent.LookupPerson: lookup failed", "error", err, "name", name)
		return models.FactCheckResult{
			Success:   false,
			AgentType: models.AgentTypeDirectoryLookup,
			Summary:   fmt.Sprintf("Failed to lookup LinkedIn profile: %s", err),
			Error:     err.Error(),
		}
	}

	return models.FactCheckResult{
		Success:   true,
		AgentType: models.AgentTypeDirectoryLookup,
		Summary:   formatProfile(data),
		Source:    "LinkedIn",
	}
}

// LookupCompany searches for a company page.
func (a *LinkedInAgent) LookupCompany(ctx context.Context, company string) models.FactCheckResult {
	data, err := a.exec.ExecuteAction(ctx, linkedinAppName, "search_company", map[string]any{"company": company})
	if err != nil {
		slog.Warn("LinkedInAgent.LookupCompany: lookup failed", "error", err, "company", company)
		return models.FactCheckResult{
			Success:   false,
			AgentType: models.AgentTypeDirectoryLookup,
			Summary:   fmt.Sprintf("Failed to lookup LinkedIn company: %s", err),
			Error:     err.Error(),
		}
	}

	return models.FactCheckResult{
		Success:   true,
		AgentType: models.AgentTypeDirectoryLookup,
		Summary:   formatCompany(data),
		Source:    "LinkedIn",
	}
}

func formatProfile(data map[string]any) string {
	profile, ok := data["profile"].(map[string]any)
	if !ok {
		return "No profile found."
	}

	name := stringField(profile, "name")
	if name == "" {
		name = "Unknown"
	}
	title := stringField(profile, "title")
	if title == "" {
		title = stringField(profile, "headline")
	}

	parts := []string{"Name: " + name}
	if title != "" {
		parts = append(parts, "Title: "+title)
	}
	if company := stringField(profile, "company"); company != "" {
		parts = append(parts, "Company: "+company)
	}
	if location := stringField(profile, "location"); location != "" {
		parts = append(parts, "Location: "+location)
	}

	return strings.Join(parts, "\n")
}

func formatCompany(data map[string]any) string {
	company, ok := data["company"].(map[string]any)
	if !ok {
		return "No company found."
	}

	name := stringField(company, "name")
	if name == "" {
		name = "Unknown"
	}

	parts := []string{"Company: " + name}
	if industry := stringField(company, "industry"); industry != "" {
		parts = append(parts, "Industry: "+industry)
	}
	if size := stringField(company, "size"); size != "" {
		parts = append(parts, "Size: "+size)
	}
	if description := stringField(company, "description"); description != "" {
		parts = append(parts, "Description: "+clip(description, 200)+"...")
	}

	return strings.Join(parts, "\n")
}
