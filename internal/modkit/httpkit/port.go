// Package httpkit provides tiny HTTP helpers and adapters
package httpkit

import (
	"net/http"
	"strings"

	perrs "querypilot/internal/platform/errors"
)

// KeyFunc resolves a raw project key to an account id
type KeyFunc func(key string) (accountID string, err error)

// Port implements middleware.KeyResolverPort by delegating to a KeyFunc
// handy for tests and for callers that do not want the full accounts resolver
type Port struct {
	resolve KeyFunc
}

// NewPortFunc builds a Port from a simple resolver function
func NewPortFunc(fn KeyFunc) *Port {
	return &Port{resolve: fn}
}

// ResolveKey maps the project key header value to an account id
// returns unauthorized when the key is blank or the resolver rejects it
func (p *Port) ResolveKey(_ *http.Request, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", perrs.Unauthorizedf("missing project key")
	}
	if p.resolve == nil {
		return "", perrs.Unauthorizedf("invalid project key")
	}
	id, err := p.resolve(key)
	if err != nil {
		return "", perrs.Unauthorizedf("invalid project key")
	}
	return id, nil
}
