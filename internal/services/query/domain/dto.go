package domain

import (
	"strings"

	perr "querypilot/internal/platform/errors"
)

// QueryRequest is the inbound body of POST /v1/query
type QueryRequest struct {
	Intent         string           `json:"intent" validate:"required,max=5000"`
	Context        map[string]any   `json:"context,omitempty"`
	Security       *SecurityContext `json:"security,omitempty"`
	MaxRows        int              `json:"max_rows,omitempty" validate:"omitempty,min=1"`
	DryRun         bool             `json:"dry_run,omitempty"`
	SkipValidation bool             `json:"skip_validation,omitempty"`
}

// DefaultMaxRows caps results when the request does not set its own
const DefaultMaxRows = 10000

// intentBlacklist holds prompt-injection substrings rejected before any
// model call. Matching is case-insensitive
var intentBlacklist = []string{
	"ignore all",
	"ignore previous",
	"ignore the above",
	"ignore your instructions",
	"forget your instructions",
	"disregard",
	"system:",
	"assistant:",
	"you are now",
	"pretend you are",
}

// ValidateIntent enforces the intent length bounds and the injection
// blacklist
func ValidateIntent(intent string) error {
	trimmed := strings.TrimSpace(intent)
	if trimmed == "" {
		return perr.InvalidArgf("intent is empty")
	}
	if len(intent) > 5000 {
		return perr.InvalidArgf("intent exceeds 5000 characters")
	}
	lower := strings.ToLower(intent)
	for _, bad := range intentBlacklist {
		if strings.Contains(lower, bad) {
			return perr.InvalidArgf("intent rejected by policy")
		}
	}
	return nil
}

// HealthStatus is one backend's state in the health report
type HealthStatus struct {
	Database string `json:"database"`
	Healthy  bool   `json:"healthy"`
	Error    string `json:"error,omitempty"`
}

// HealthReport is the body of GET /v1/health
type HealthReport struct {
	Status    string         `json:"status"`
	Databases []HealthStatus `json:"databases"`
}
