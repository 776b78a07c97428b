// Package api provides the HTTP API for the application
package api

import (
	"querypilot/internal/platform/config"
	"querypilot/internal/platform/logger"
	phttp "querypilot/internal/platform/net/http"
	"querypilot/internal/platform/net/middleware"

	"querypilot/internal/modkit"
	"querypilot/internal/modkit/httpkit"
	"querypilot/internal/modkit/module"

	querymod "querypilot/internal/services/query/module"
	qsvc "querypilot/internal/services/query/service"
)

// Options are the API options
type Options struct {
	Config         config.Conf
	Logger         logger.Logger
	Service        qsvc.Service
	Resolver       middleware.KeyResolverPort
	EnableProfiler bool
}

// Mount mounts the API service onto the given router
//
// routes land under the query module's own version prefix, so the public
// surface is /v1/query, /v1/schema and /v1/health
func Mount(r phttp.Router, opt Options) {
	// shared deps for modules
	deps := modkit.Deps{
		Log: opt.Logger,
		Cfg: opt.Config,
	}

	r.Use(httpkit.CommonStack()...)

	phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

	qm := querymod.New(deps, opt.Service,
		modkit.WithMiddlewares(httpkit.ProjectKey(opt.Resolver)),
	)

	// register the module's ports under its name for cross-module lookups
	module.Register(qm.Name(), qm.Ports())
	qm.MountRoutes(r)
}
