package middleware

import (
	"net/http"

	"querypilot/internal/platform/logger"
	pnet "querypilot/internal/platform/net"
)

// ProjectKeyHeader carries the opaque tenant credential on every request
const ProjectKeyHeader = "X-Project-Key"

// KeyResolverPort is the seam the accounts resolver implements.
// An empty key is passed through; the resolver decides whether that maps
// to the demo account or fails as unauthenticated
type KeyResolverPort interface {
	ResolveKey(r *http.Request, key string) (accountID string, err error)
}

// ProjectKey resolves the project key header into an account id and stores
// it on the request context. Unresolved keys end the request with 401
func ProjectKey(p KeyResolverPort, write func(w http.ResponseWriter, status int, body any)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p == nil {
				next.ServeHTTP(w, r)
				return
			}
			accountID, err := p.ResolveKey(r, r.Header.Get(ProjectKeyHeader))
			if err != nil {
				status, body := pnet.Error(err, pnet.RequestID(r.Context()))
				write(w, status, body)
				return
			}
			ctx := pnet.WithRequest(r.Context(), pnet.RequestID(r.Context()), accountID)
			ctx = logger.WithRequest(ctx, pnet.RequestID(ctx), accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
