package httpkit

import (
	"net/http"
	"strings"

	perrs "querypilot/internal/platform/errors"
	pnet "querypilot/internal/platform/net"
	"querypilot/internal/platform/net/middleware"
)

// User returns the authenticated user id from the request context
func User(r *http.Request) (string, error) {
	uid := pnet.UserID(r.Context())
	if uid == "" {
		return "", perrs.Unauthorizedf("missing user identity")
	}
	return uid, nil
}

// Account returns the resolved account id from the request context
func Account(r *http.Request) (string, error) {
	aid := pnet.AccountID(r.Context())
	if aid == "" {
		return "", perrs.Unauthorizedf("missing account scope")
	}
	return aid, nil
}

// MustUser returns the authenticated user id or panics
func MustUser(r *http.Request) string {
	uid, err := User(r)
	if err != nil {
		panic(err)
	}
	return uid
}

// MustAccount returns the resolved account id or panics
func MustAccount(r *http.Request) string {
	aid, err := Account(r)
	if err != nil {
		panic(err)
	}
	return aid
}

// RawProjectKey returns the project key header before resolution
func RawProjectKey(r *http.Request) (string, error) {
	key := strings.TrimSpace(r.Header.Get(middleware.ProjectKeyHeader))
	if key == "" {
		return "", perrs.Unauthorizedf("missing project key")
	}
	return key, nil
}
