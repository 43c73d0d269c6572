package models

// AgentType selects which fact-check capability a detection routes to.
type AgentType string

const (
	// AgentTypeSearch routes to the web search capability.
	AgentTypeSearch AgentType = "search"
	// AgentTypeDirectoryLookup routes to the professional directory capability.
	AgentTypeDirectoryLookup AgentType = "directory-lookup"
	// AgentTypeNone means no fact check is warranted.
	AgentTypeNone AgentType = "none"
)

// FactCheckDetection describes a claim flagged for external verification.
// ExtractedInfo carries targeted entities (name, company, title) when the
// detection routes to the directory capability.
type FactCheckDetection struct {
	Needed        bool              `json:"needed"`
	AgentType     AgentType         `json:"agent_type"`
	Query         string            `json:"query,omitempty"`
	Confidence    float64           `json:"confidence"`
	ExtractedInfo map[string]string `json:"extracted_info,omitempty"`
}

// FactCheckResult is the structured outcome of a dispatched fact check.
// Capability failures are reported here rather than as errors so a failed
// lookup can still flow into the conversation.
type FactCheckResult struct {
	Success   bool      `json:"success"`
	AgentType AgentType `json:"agent_type"`
	Summary   string    `json:"summary,omitempty"`
	Source    string    `json:"source,omitempty"`
	Error     string    `json:"error,omitempty"`
}
