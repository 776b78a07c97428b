// Package service orchestrates the query pipeline: resolve the
// account, introspect schemas, synthesize a plan, validate it, execute
// across the account's databases and mask the merged result.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"querypilot/internal/accounts"
	"querypilot/internal/adapter"
	"querypilot/internal/adapter/factory"
	"querypilot/internal/platform/cache"
	perr "querypilot/internal/platform/errors"
	"querypilot/internal/platform/logger"
	pnet "querypilot/internal/platform/net"
	"querypilot/internal/services/query/domain"
)

// Service is the public service port
type Service interface{ domain.ServicePort }

// AdapterFactory is the slice of the adapter factory the service uses
type AdapterFactory interface {
	ForAccount(ctx context.Context, acct factory.Account) (map[string]adapter.Adapter, error)
	Get(ctx context.Context, acct factory.Account, name string) (adapter.Adapter, error)
	Schemas(ctx context.Context, acct factory.Account) (map[string]*adapter.Database, error)
}

// Svc implements the service port
type Svc struct {
	accounts  accounts.Store
	factory   AdapterFactory
	planner   domain.PlannerPort
	validator domain.ValidatorPort
	cache     cache.Cache
	log       *logger.Logger
}

// Options carry the service dependencies
type Options struct {
	Accounts accounts.Store
	Factory  AdapterFactory

	// Planner is required
	Planner domain.PlannerPort

	// Validator is optional; without one every plan executes unreviewed
	Validator domain.ValidatorPort

	// Cache is optional and advisory
	Cache cache.Cache
}

const schemaCacheTTL = 5 * time.Minute

// New constructs the service
func New(opt Options) *Svc {
	if opt.Accounts == nil {
		panic("query.Service requires a non nil account store")
	}
	if opt.Factory == nil {
		panic("query.Service requires a non nil adapter factory")
	}
	if opt.Planner == nil {
		panic("query.Service requires a non nil planner")
	}
	if opt.Cache == nil {
		opt.Cache = cache.Noop("querypilot")
	}
	return &Svc{
		accounts:  opt.Accounts,
		factory:   opt.Factory,
		planner:   opt.Planner,
		validator: opt.Validator,
		cache:     opt.Cache,
		log:       logger.Named("query_service"),
	}
}

// Query runs the full pipeline for one request
func (s *Svc) Query(ctx context.Context, in domain.QueryRequest) (*domain.QueryResult, error) {
	start := time.Now()
	traceID := uuid.NewString()
	ctx = logger.WithTrace(ctx, traceID)

	if err := domain.ValidateIntent(in.Intent); err != nil {
		return nil, err
	}

	acct, err := s.resolveAccount(ctx)
	if err != nil {
		return nil, err
	}
	facct := factoryAccount(acct)

	sec := s.securityContext(ctx, in, acct)
	maxRows := in.MaxRows
	if maxRows <= 0 {
		maxRows = domain.DefaultMaxRows
	}

	schemas, err := s.schemas(ctx, facct)
	if err != nil {
		return nil, err
	}

	plan, err := s.planner.Generate(ctx, in.Intent, schemas, sec, maxRows)
	if err != nil {
		return nil, err
	}

	if in.DryRun {
		return &domain.QueryResult{
			Data: []map[string]any{},
			Metadata: domain.QueryMetadata{
				Plan:      plan,
				TraceID:   traceID,
				Timestamp: time.Now().UTC(),
				DryRun:    true,
			},
		}, nil
	}

	if !in.SkipValidation && s.validator != nil {
		if err := s.validator.Validate(ctx, plan); err != nil {
			return nil, err
		}
	}

	rows, warnings, err := s.execute(ctx, facct, plan, maxRows)
	if err != nil {
		return nil, err
	}

	ApplyMasks(rows, sec.FieldMasks)

	elapsed := time.Since(start)
	s.recordUsage(ctx, acct.ID, traceID, elapsed, len(rows))

	return &domain.QueryResult{
		Data: rows,
		Metadata: domain.QueryMetadata{
			Plan:            plan,
			ExecutionTimeMS: elapsed.Milliseconds(),
			RowsReturned:    len(rows),
			TraceID:         traceID,
			Timestamp:       time.Now().UTC(),
			Warnings:        warnings,
		},
	}, nil
}

// Schemas returns the introspected schemas for the caller's account
func (s *Svc) Schemas(ctx context.Context) (map[string]*adapter.Database, error) {
	acct, err := s.resolveAccount(ctx)
	if err != nil {
		return nil, err
	}
	return s.schemas(ctx, factoryAccount(acct))
}

// Health reports per-database adapter health for the caller's account
func (s *Svc) Health(ctx context.Context) (*domain.HealthReport, error) {
	acct, err := s.resolveAccount(ctx)
	if err != nil {
		return nil, err
	}
	set, err := s.factory.ForAccount(ctx, factoryAccount(acct))
	if err != nil {
		return nil, err
	}

	report := &domain.HealthReport{Status: "ok"}
	for _, name := range []string{factory.KeyPostgres, factory.KeyMongo} {
		a, ok := set[name]
		if !ok {
			continue
		}
		status := domain.HealthStatus{Database: name, Healthy: true}
		if err := a.HealthCheck(ctx); err != nil {
			status.Healthy = false
			status.Error = err.Error()
			report.Status = "degraded"
		}
		report.Databases = append(report.Databases, status)
	}
	return report, nil
}

func (s *Svc) resolveAccount(ctx context.Context) (*accounts.Account, error) {
	accountID := pnet.AccountID(ctx)
	if accountID == "" {
		return nil, perr.Unauthorizedf("no account on request")
	}
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, perr.WrapIf(err, perr.ErrorCodeUnauthorized, "account lookup failed")
	}
	return acct, nil
}

func factoryAccount(acct *accounts.Account) factory.Account {
	return factory.Account{
		ID:          acct.ID,
		PostgresURL: acct.PostgresURL,
		MongoURL:    acct.MongoURL,
	}
}

// securityContext uses the caller-supplied context when present and
// fills a minimal default otherwise. The account id is always pinned
// server side
func (s *Svc) securityContext(ctx context.Context, in domain.QueryRequest, acct *accounts.Account) domain.SecurityContext {
	sec := domain.SecurityContext{Role: "analyst"}
	if in.Security != nil {
		sec = *in.Security
	}
	if sec.UserID == "" {
		sec.UserID = pnet.UserID(ctx)
	}
	sec.AccountID = acct.ID
	return sec
}

// schemas consults the advisory cache before introspecting
func (s *Svc) schemas(ctx context.Context, facct factory.Account) (map[string]*adapter.Database, error) {
	key := s.cache.KeyFrom("schemas", facct.ID)

	var cached map[string]*adapter.Database
	if s.cache.Get(ctx, key, &cached) && len(cached) > 0 {
		return cached, nil
	}

	schemas, err := s.factory.Schemas(ctx, facct)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, schemas, schemaCacheTTL)
	return schemas, nil
}

// recordUsage is the usage hook: one structured record per executed
// request
func (s *Svc) recordUsage(ctx context.Context, accountID, traceID string, elapsed time.Duration, rows int) {
	logger.C(ctx).Info().
		Str("account_id", accountID).
		Str("trace_id", traceID).
		Int64("execution_ms", elapsed.Milliseconds()).
		Int("rows_returned", rows).
		Msg("query usage")
}
