package factcheck

import (
	"regexp"

	"github.com/boovines/Nudge/internal/models"
)

// rule pairs a surface pattern with the agent it routes to. Confidence is
// fixed per family rather than derived from match strength.
type rule struct {
	pattern    *regexp.Regexp
	agent      models.AgentType
	confidence float64
}

// Families are evaluated in order and the first matching pattern wins.
// Directory-lookup claims outrank verification claims because a customer
// stating who they are is the strongest signal we can act on.
var (
	directoryRules = []rule{
		{regexp.MustCompile(`i work at (.+)`), models.AgentTypeDirectoryLookup, 0.7},
		{regexp.MustCompile(`my company is (.+)`), models.AgentTypeDirectoryLookup, 0.7},
		{regexp.MustCompile(`i'm (a|an) (.+) at (.+)`), models.AgentTypeDirectoryLookup, 0.7},
		{regexp.MustCompile(`look up (.+) on linkedin`), models.AgentTypeDirectoryLookup, 0.7},
		{regexp.MustCompile(`find (.+) on linkedin`), models.AgentTypeDirectoryLookup, 0.7},
	}

	searchRules = []rule{
		{regexp.MustCompile(`(.+) (is|are) (.+)`), models.AgentTypeSearch, 0.6},
		{regexp.MustCompile(`according to (.+)`), models.AgentTypeSearch, 0.6},
		{regexp.MustCompile(`i (read|heard|saw) (.+)`), models.AgentTypeSearch, 0.6},
		{regexp.MustCompile(`(.+) (said|claims|stated) (.+)`), models.AgentTypeSearch, 0.6},
	}

	genericRules = []rule{
		{regexp.MustCompile(`i (work|am) at (.+)`), models.AgentTypeSearch, 0.5},
		{regexp.MustCompile(`i'm (a|an) (.+)`), models.AgentTypeSearch, 0.5},
		{regexp.MustCompile(`my company is (.+)`), models.AgentTypeSearch, 0.5},
		{regexp.MustCompile(`(.+) (is|are) (a|an) (.+)`), models.AgentTypeSearch, 0.5},
		{regexp.MustCompile(`according to (.+)`), models.AgentTypeSearch, 0.5},
		{regexp.MustCompile(`i (read|heard|saw) (.+)`), models.AgentTypeSearch, 0.5},
		{regexp.MustCompile(`(.+) (said|claims|stated) (.+)`), models.AgentTypeSearch, 0.5},
		{regexp.MustCompile(`(.+) (has|have) (.+)`), models.AgentTypeSearch, 0.5},
	}
)

// Targeted entity extraction for the directory path. Non-greedy up to
// sentence punctuation so "i work at acme corp, and..." yields "acme corp".
var (
	companyPattern      = regexp.MustCompile(`i work at (.+?)(?:[.,!?]|$)`)
	titleCompanyPattern = regexp.MustCompile(`i'm (?:a|an) (.+?) at (.+?)(?:[.,!?]|$)`)
)
