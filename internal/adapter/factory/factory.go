// Package factory builds and caches database adapters per account.
//
// Adapter construction is lazy: the first request for an account
// decrypts its stored URLs, connects whatever backends the account has
// configured and caches the result. Concurrent first requests collapse
// into a single initialization via singleflight.
package factory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"querypilot/internal/adapter"
	mongoadapter "querypilot/internal/adapter/mongo"
	pgadapter "querypilot/internal/adapter/pg"
	"querypilot/internal/platform/crypto"
	perr "querypilot/internal/platform/errors"
	"querypilot/internal/platform/logger"
)

// Fixed adapter keys. Plans address sub-queries to these names
const (
	KeyPostgres = "postgres"
	KeyMongo    = "mongodb"
)

const (
	shutdownPerAdapter = 2 * time.Second
	warmUpBound        = 15 * time.Second
)

// Account is the slice of account config the factory needs. URLs are
// ciphertext as stored; the factory unseals them just before dialing
type Account struct {
	ID          string
	PostgresURL string
	MongoURL    string
}

// constructor seams for tests
var (
	openPG = func(ctx context.Context, name, url string) (adapter.Adapter, error) {
		return pgadapter.Open(ctx, name, pgadapter.Config{URL: url})
	}
	openMongo = func(ctx context.Context, name, url string) (adapter.Adapter, error) {
		return mongoadapter.Open(ctx, name, mongoadapter.Config{URL: url})
	}
)

// Factory caches one adapter set per account
type Factory struct {
	sealer *crypto.Sealer
	log    *logger.Logger

	sf singleflight.Group

	mu     sync.Mutex
	byacct map[string]map[string]adapter.Adapter
}

// New builds a factory. sealer decrypts stored connection URLs
func New(sealer *crypto.Sealer) *Factory {
	return &Factory{
		sealer: sealer,
		log:    logger.Named("adapter_factory"),
		byacct: map[string]map[string]adapter.Adapter{},
	}
}

// ForAccount returns the adapter set for the account, initializing it
// on first use. Backends connect independently; a partial failure
// degrades to the subset that connected, and only zero successes is an
// error
func (f *Factory) ForAccount(ctx context.Context, acct Account) (map[string]adapter.Adapter, error) {
	f.mu.Lock()
	if set, ok := f.byacct[acct.ID]; ok {
		f.mu.Unlock()
		return set, nil
	}
	f.mu.Unlock()

	v, err, _ := f.sf.Do(acct.ID, func() (any, error) {
		// re-check under the flight; a prior flight may have landed
		f.mu.Lock()
		if set, ok := f.byacct[acct.ID]; ok {
			f.mu.Unlock()
			return set, nil
		}
		f.mu.Unlock()

		set, err := f.connectAll(ctx, acct)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.byacct[acct.ID] = set
		f.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]adapter.Adapter), nil
}

func (f *Factory) connectAll(ctx context.Context, acct Account) (map[string]adapter.Adapter, error) {
	type attempt struct {
		key  string
		url  string
		open func(ctx context.Context, name, url string) (adapter.Adapter, error)
	}
	attempts := []attempt{}
	if acct.PostgresURL != "" {
		attempts = append(attempts, attempt{KeyPostgres, acct.PostgresURL, openPG})
	}
	if acct.MongoURL != "" {
		attempts = append(attempts, attempt{KeyMongo, acct.MongoURL, openMongo})
	}
	if len(attempts) == 0 {
		return nil, perr.Unavailablef("account %s has no databases configured", acct.ID)
	}

	set := map[string]adapter.Adapter{}
	var failed []string
	for _, at := range attempts {
		url, err := f.sealer.Open(at.url)
		if err != nil {
			f.log.Error().Str("account_id", acct.ID).Str("database", at.key).Err(err).
				Msg("stored database url failed to unseal")
			failed = append(failed, at.key)
			continue
		}
		a, err := at.open(ctx, at.key, url)
		if err != nil {
			f.log.Error().Str("account_id", acct.ID).Str("database", at.key).
				Str("url", crypto.MaskURL(url)).Err(err).Msg("database connection failed")
			failed = append(failed, at.key)
			continue
		}
		set[at.key] = a
	}

	if len(set) == 0 {
		return nil, perr.Unavailablef("no database adapters available for account %s", acct.ID)
	}
	if len(failed) > 0 {
		f.log.Warn().Str("account_id", acct.ID).Strs("failed", failed).
			Msg("running with partial database connectivity")
	}
	return set, nil
}

// Get resolves one named adapter for the account
func (f *Factory) Get(ctx context.Context, acct Account, name string) (adapter.Adapter, error) {
	set, err := f.ForAccount(ctx, acct)
	if err != nil {
		return nil, err
	}
	a, ok := set[name]
	if !ok {
		return nil, perr.NotFoundf("no adapter for database %q", name)
	}
	return a, nil
}

// Schemas introspects every connected backend for the account,
// concurrently. A backend whose introspection fails is skipped with a
// warning; only zero schemas is an error
func (f *Factory) Schemas(ctx context.Context, acct Account) (map[string]*adapter.Database, error) {
	set, err := f.ForAccount(ctx, acct)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := map[string]*adapter.Database{}
	g, gctx := errgroup.WithContext(ctx)
	for name, a := range set {
		g.Go(func() error {
			db, err := a.Schema(gctx)
			if err != nil {
				f.log.Warn().Str("account_id", acct.ID).Str("database", name).Err(err).
					Msg("schema introspection failed")
				return nil
			}
			mu.Lock()
			out[name] = db
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(out) == 0 {
		return nil, perr.Unavailablef("no schemas available for account %s", acct.ID)
	}
	return out, nil
}

// WarmUp eagerly initializes adapter sets for the given accounts,
// bounded at 15s overall. Failures are logged and tolerated
func (f *Factory) WarmUp(ctx context.Context, accts []Account) {
	ctx, cancel := context.WithTimeout(ctx, warmUpBound)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, acct := range accts {
		g.Go(func() error {
			if _, err := f.ForAccount(gctx, acct); err != nil {
				f.log.Warn().Str("account_id", acct.ID).Err(err).Msg("adapter warm up failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Evict closes and forgets the account's adapters, if any
func (f *Factory) Evict(ctx context.Context, accountID string) {
	f.mu.Lock()
	set := f.byacct[accountID]
	delete(f.byacct, accountID)
	f.mu.Unlock()
	for name, a := range set {
		f.closeOne(ctx, accountID, name, a)
	}
}

// Shutdown disconnects every cached adapter in parallel, bounding each
// close at 2s, and clears the cache. Close failures are logged, never
// propagated
func (f *Factory) Shutdown(ctx context.Context) {
	f.mu.Lock()
	all := f.byacct
	f.byacct = map[string]map[string]adapter.Adapter{}
	f.mu.Unlock()

	var wg sync.WaitGroup
	for accountID, set := range all {
		for name, a := range set {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.closeOne(ctx, accountID, name, a)
			}()
		}
	}
	wg.Wait()
}

func (f *Factory) closeOne(ctx context.Context, accountID, name string, a adapter.Adapter) {
	cctx, cancel := context.WithTimeout(ctx, shutdownPerAdapter)
	defer cancel()
	if err := a.Close(cctx); err != nil {
		f.log.Warn().Str("account_id", accountID).Str("database", name).Err(err).
			Msg("adapter close failed")
	}
}
