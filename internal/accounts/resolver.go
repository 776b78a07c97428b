package accounts

import (
	"context"
	"net/http"
	"sync"

	"querypilot/internal/platform/crypto"
	perr "querypilot/internal/platform/errors"
	"querypilot/internal/platform/logger"
)

// Resolver turns a raw project key into an account id. It implements
// the HTTP middleware's key resolver port
type Resolver struct {
	store Store
	log   *logger.Logger

	demoPG    string
	demoMongo string

	demoMu    sync.Mutex
	demoReady bool
}

// ResolverOption tweaks resolver construction
type ResolverOption func(*Resolver)

// WithDemoDatabases sets the sealed connection URLs assigned to the demo
// account when it is created on first use
func WithDemoDatabases(postgresURL, mongoURL string) ResolverOption {
	return func(r *Resolver) {
		r.demoPG = postgresURL
		r.demoMongo = mongoURL
	}
}

// NewResolver builds a resolver over the given store
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, log: logger.Named("key_resolver")}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ResolveKey authenticates a request. The demo key resolves to the demo
// account, creating it on first use. Other keys resolve by hash lookup
// with a constant-time scan fallback; any miss is unauthorized
func (r *Resolver) ResolveKey(req *http.Request, key string) (string, error) {
	ctx := req.Context()

	if key == "" {
		return "", perr.Unauthorizedf("missing project key")
	}
	if key == DemoKey {
		if err := r.ensureDemo(ctx); err != nil {
			return "", err
		}
		return DemoAccountID, nil
	}

	if acct, err := r.store.GetByKeyHash(ctx, crypto.HashKey(key)); err == nil {
		return acct.ID, nil
	}

	// hash lookup can miss on stores without an index; scan with
	// constant-time comparison so timing does not leak key material
	all, err := r.store.List(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("account scan failed during key resolution")
		return "", perr.Unauthorizedf("invalid project key")
	}
	for _, acct := range all {
		if crypto.VerifyKey(key, acct.KeyHash) {
			return acct.ID, nil
		}
	}
	return "", perr.Unauthorizedf("invalid project key")
}

// ensureDemo makes sure the demo account exists. Only success is latched;
// a failed attempt is retried on the next request. A concurrent create
// racing another instance is treated as success
func (r *Resolver) ensureDemo(ctx context.Context) error {
	r.demoMu.Lock()
	defer r.demoMu.Unlock()

	if r.demoReady {
		return nil
	}
	if _, err := r.store.GetByID(ctx, DemoAccountID); err == nil {
		r.demoReady = true
		return nil
	}
	err := r.store.Create(ctx, &Account{
		ID:          DemoAccountID,
		Name:        DemoName,
		KeyHash:     crypto.HashKey(DemoKey),
		PostgresURL: r.demoPG,
		MongoURL:    r.demoMongo,
		ModelMode:   ModelModePlatform,
	})
	if err != nil && perr.CodeOf(err) != perr.ErrorCodeDuplicateKey {
		r.log.Error().Err(err).Msg("demo account create failed")
		return perr.Wrapf(err, perr.ErrorCodeUnauthorized, "demo account unavailable")
	}
	r.demoReady = true
	return nil
}
