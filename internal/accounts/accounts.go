// Package accounts holds tenant account configuration and the project
// key resolver the HTTP layer authenticates with.
package accounts

import (
	"time"

	perr "querypilot/internal/platform/errors"
)

// ModelMode selects whose model credential a query runs under
type ModelMode string

const (
	// ModelModePlatform uses the service's own model credential
	ModelModePlatform ModelMode = "platform"

	// ModelModeBYO uses the account's stored model key
	ModelModeBYO ModelMode = "byo"
)

// Demo account constants. The demo key is a well-known credential that
// always resolves, backed by an account created on first use
const (
	DemoKey       = "querypilot_demo_project_key"
	DemoAccountID = "demo"
	DemoName      = "Demo Workspace"
)

// Account is one tenant. Connection URLs and the BYO model key are
// stored sealed; the raw project key is never persisted, only its hash
type Account struct {
	ID          string
	Name        string
	KeyHash     string
	PostgresURL string
	MongoURL    string
	ModelMode   ModelMode
	ModelKey    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks the invariants a stored account must hold
func (a *Account) Validate() error {
	if a.ID == "" {
		return perr.InvalidArgf("account id is required")
	}
	if a.KeyHash == "" {
		return perr.InvalidArgf("account key hash is required")
	}
	switch a.ModelMode {
	case ModelModePlatform:
	case ModelModeBYO:
		if a.ModelKey == "" {
			return perr.InvalidArgf("byo model mode requires a model key")
		}
	default:
		return perr.InvalidArgf("unknown model mode %q", a.ModelMode)
	}
	return nil
}
