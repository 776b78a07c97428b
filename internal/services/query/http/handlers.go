// Package http provides http transport for query orchestration
package http

import (
	stdhttp "net/http"

	"querypilot/internal/modkit/httpkit"
	"querypilot/internal/services/query/domain"
	svc "querypilot/internal/services/query/service"
)

// Register mounts the router
func Register(r httpkit.Router, s svc.Service) {
	h := &handlers{svc: s}
	httpkit.PostJSON[domain.QueryRequest](r, "/query", h.query)
	httpkit.Get(r, "/schema", h.schema)
	httpkit.Get(r, "/health", h.health)
}

type handlers struct{ svc svc.Service }

func (h *handlers) query(r *stdhttp.Request, in domain.QueryRequest) (any, error) {
	return h.svc.Query(r.Context(), in)
}

func (h *handlers) schema(r *stdhttp.Request) (any, error) {
	return h.svc.Schemas(r.Context())
}

func (h *handlers) health(r *stdhttp.Request) (any, error) {
	return h.svc.Health(r.Context())
}
