// @title         QueryPilot API
// @version       0.1.0
// @description   Natural language query orchestration across account databases

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"querypilot/internal/platform/cache"
	"querypilot/internal/platform/config"
	"querypilot/internal/platform/crypto"
	"querypilot/internal/platform/logger"
	phttp "querypilot/internal/platform/net/http"

	"querypilot/internal/accounts"
	"querypilot/internal/adapter/factory"
	"querypilot/internal/llm"
	"querypilot/internal/services/api"
	"querypilot/internal/services/query/planner"
	qservice "querypilot/internal/services/query/service"
)

func main() {
	// service-scoped config for HTTP etc (CORE_API_*)
	root := config.New()
	apiCfg := root.Prefix("CORE_API_")

	pgCfg := root.Prefix("SERVICE_PGSQL_")    // accounts store, optional
	redisCfg := root.Prefix("SERVICE_REDIS_") // advisory cache, optional
	modelCfg := root.Prefix("SERVICE_MODEL_") // model transport
	secCfg := root.Prefix("SERVICE_")

	// bring up logging early
	l := logger.Get()
	ctx := context.Background()

	sealer, err := crypto.NewSealer(secCfg.MustString("ENCRYPTION_KEY"))
	if err != nil {
		l.Panic().Err(err).Msg("sealer init failed")
	}

	// advisory cache; a missing Redis degrades to a noop
	cch := cache.Open(ctx, cache.Config{
		Addr:   redisCfg.MayString("ADDR", ""),
		DB:     redisCfg.MayInt("DB", 0),
		Prefix: "querypilot",
	})

	// account store: postgres when configured, in-memory otherwise
	var store accounts.Store
	if url := pgCfg.MayString("DBURL", ""); url != "" {
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			l.Panic().Err(err).Msg("accounts pool open failed")
		}
		defer pool.Close()

		pgStore := accounts.NewPGStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			l.Panic().Err(err).Msg("accounts schema migration failed")
		}
		store = pgStore
	} else {
		l.Warn().Msg("SERVICE_PGSQL_DBURL unset; accounts are in-memory only")
		store = accounts.NewMemoryStore()
	}

	fac := factory.New(sealer)

	transport, err := llm.NewGoogle(ctx, modelCfg.MustString("GEMINI_API_KEY"))
	if err != nil {
		l.Panic().Err(err).Msg("model transport init failed")
	}
	breaker := llm.NewBreaker(transport)

	preferred := modelCfg.MayString("GEMINI_MODEL", "gemini-2.0-flash-exp")
	fallback := modelCfg.MayString("GEMINI_FALLBACK_MODEL", "gemini-3-flash-preview")

	svc := qservice.New(qservice.Options{
		Accounts:  store,
		Factory:   fac,
		Planner:   planner.New(breaker, preferred, fallback),
		Validator: planner.NewValidator(breaker, preferred, fallback),
		Cache:     cch,
	})

	resolver := accounts.NewResolver(store, demoDatabases(secCfg, sealer, l)...)

	// http server (reads CORE_API_API_PORT)
	srv := phttp.NewServer(apiCfg)

	api.Mount(
		srv.Router(),
		api.Options{
			Config:         apiCfg,
			Logger:         *l,
			Service:        svc,
			Resolver:       resolver,
			EnableProfiler: apiCfg.MayBool("PROFILER", false),
		},
	)

	if apiCfg.MayBool("WARMUP", false) {
		go warmUp(ctx, fac, store, l)
	}

	// run until a signal arrives, then drain connections and adapters
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Run(runCtx) }()

	select {
	case err := <-errc:
		if err != nil {
			l.Panic().Err(err).Msg("http server stopped")
		}
	case <-runCtx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			l.Error().Err(err).Msg("http shutdown failed")
		}
		fac.Shutdown(shutCtx)
	}
}

// demoDatabases seals the configured demo connection URLs so the demo
// account created on first use can reach real backends
func demoDatabases(cfg config.Conf, sealer *crypto.Sealer, l *logger.Logger) []accounts.ResolverOption {
	pg := cfg.MayString("DEMO_POSTGRES_DBURL", "")
	mg := cfg.MayString("DEMO_MONGODB_DBURL", "")
	if pg == "" && mg == "" {
		return nil
	}

	sealedPG, sealedMG := "", ""
	var err error
	if pg != "" {
		if sealedPG, err = sealer.Seal(pg); err != nil {
			l.Panic().Err(err).Msg("sealing demo postgres url failed")
		}
	}
	if mg != "" {
		if sealedMG, err = sealer.Seal(mg); err != nil {
			l.Panic().Err(err).Msg("sealing demo mongodb url failed")
		}
	}
	return []accounts.ResolverOption{accounts.WithDemoDatabases(sealedPG, sealedMG)}
}

// warmUp pre-opens adapters for every known account so first queries
// skip the connect cost
func warmUp(ctx context.Context, fac *factory.Factory, store accounts.Store, l *logger.Logger) {
	all, err := store.List(ctx)
	if err != nil {
		l.Warn().Err(err).Msg("warmup skipped; account listing failed")
		return
	}
	accts := make([]factory.Account, 0, len(all))
	for _, a := range all {
		accts = append(accts, factory.Account{
			ID:          a.ID,
			PostgresURL: a.PostgresURL,
			MongoURL:    a.MongoURL,
		})
	}
	fac.WarmUp(ctx, accts)
}
