// Package pg implements the relational adapter on pgxpool.
package pg

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"querypilot/internal/adapter"
	perr "querypilot/internal/platform/errors"
	"querypilot/internal/platform/logger"
	"querypilot/internal/platform/retry"
)

// Config configures the adapter pool. Zero values fall back to the
// defaults below
type Config struct {
	URL            string
	MinConns       int32
	MaxConns       int32
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	IdleClose      time.Duration
}

const (
	defaultMinConns       = 1
	defaultMaxConns       = 10
	defaultConnectTimeout = 10 * time.Second
	defaultCommandTimeout = 60 * time.Second
	defaultIdleClose      = 45 * time.Second
)

// test seam
var newPool = pgxpool.NewWithConfig

// Adapter is the relational backend. One instance per account database;
// the schema is introspected once and memoized for the adapter lifetime
type Adapter struct {
	name string
	cfg  Config
	log  *logger.Logger
	memo adapter.SchemaMemo

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// Open parses the URL, applies pool defaults and connects
func Open(ctx context.Context, name string, cfg Config) (*Adapter, error) {
	if cfg.MinConns <= 0 {
		cfg.MinConns = defaultMinConns
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.IdleClose <= 0 {
		cfg.IdleClose = defaultIdleClose
	}

	a := &Adapter{
		name: name,
		cfg:  cfg,
		log:  logger.Named("pg_adapter"),
	}
	pool, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	return a, nil
}

func (a *Adapter) connect(ctx context.Context) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(a.cfg.URL)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "parse postgres url")
	}
	pcfg.MinConns = a.cfg.MinConns
	pcfg.MaxConns = a.cfg.MaxConns
	pcfg.ConnConfig.ConnectTimeout = a.cfg.ConnectTimeout
	pcfg.MaxConnIdleTime = a.cfg.IdleClose

	pool, err := newPool(ctx, pcfg)
	if err != nil {
		return nil, perr.FromPostgres(err, "connect postgres")
	}
	return pool, nil
}

// rebuildPool closes the current pool and opens a fresh one. Used when
// introspection or execution loses the server connection; the schema
// memo is left intact
func (a *Adapter) rebuildPool(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	old := a.pool
	pool, err := a.connect(ctx)
	if err != nil {
		return err
	}
	a.pool = pool
	if old != nil {
		old.Close()
	}
	a.log.Warn().Str("database", a.name).Msg("postgres pool rebuilt after lost connection")
	return nil
}

func (a *Adapter) getPool() *pgxpool.Pool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pool
}

// Kind reports relational
func (a *Adapter) Kind() adapter.Kind { return adapter.KindRelational }

// Name returns the logical database name
func (a *Adapter) Name() string { return a.name }

// Schema introspects the public schema, memoized per adapter instance.
// A lost connection triggers one pool rebuild followed by a retried
// introspection pass
func (a *Adapter) Schema(ctx context.Context) (*adapter.Database, error) {
	return a.memo.Get(ctx, func(ctx context.Context) (*adapter.Database, error) {
		db, err := a.introspect(ctx)
		if err == nil || !perr.IsConnectionLost(err) {
			return db, err
		}
		if rerr := a.rebuildPool(ctx); rerr != nil {
			return nil, err
		}
		pol := retry.DefaultPolicy()
		pol.RetryIf = perr.IsConnectionLost
		return retry.Do(ctx, pol, a.introspect)
	})
}

// Execute runs one SQL statement. A row cap is appended when the
// statement carries no LIMIT of its own; a full result at max_rows sets
// Truncated and a warning regardless of who wrote the limit
func (a *Adapter) Execute(ctx context.Context, req adapter.Request) (*adapter.Result, error) {
	if req.SQL == "" {
		return nil, perr.InvalidArgf("relational request without sql")
	}
	sql, _ := EnsureLimit(req.SQL, req.MaxRows)

	ctx, cancel := context.WithTimeout(ctx, a.cfg.CommandTimeout)
	defer cancel()

	rows, err := a.getPool().Query(ctx, sql, req.Args...)
	if err != nil {
		return nil, perr.FromPostgres(err, "execute query")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]map[string]any, 0, 64)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, perr.FromPostgres(err, "scan row")
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgres(err, "read rows")
	}

	res := &adapter.Result{Rows: out, RowCount: len(out)}
	if hitRowCap(len(out), req.MaxRows) {
		res.Truncated = true
		res.Warnings = append(res.Warnings, truncationWarning(req.MaxRows))
		a.log.Warn().Str("database", a.name).Int("max_rows", req.MaxRows).Msg("result truncated at row cap")
	}
	return res, nil
}

// HealthCheck pings the pool up to three times with linear backoff
// (0.5s, 1.0s, 1.5s between attempts), each ping bounded at 5s
func (a *Adapter) HealthCheck(ctx context.Context) error {
	var last error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		last = a.getPool().Ping(pctx)
		cancel()
		if last == nil {
			return nil
		}
	}
	return perr.Wrapf(last, perr.ErrorCodeUnavailable, "postgres health check failed")
}

// Close releases the pool and drops the schema memo
func (a *Adapter) Close(_ context.Context) error {
	a.memo.Invalidate()
	a.mu.Lock()
	pool := a.pool
	a.pool = nil
	a.mu.Unlock()
	if pool != nil {
		pool.Close()
	}
	return nil
}
