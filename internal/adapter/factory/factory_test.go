package factory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"querypilot/internal/adapter"
	"querypilot/internal/platform/crypto"
	perr "querypilot/internal/platform/errors"
	"querypilot/internal/platform/testkit"
)

type fakeAdapter struct {
	name   string
	kind   adapter.Kind
	closed atomic.Bool
}

func (f *fakeAdapter) Kind() adapter.Kind { return f.kind }
func (f *fakeAdapter) Name() string       { return f.name }
func (f *fakeAdapter) Schema(context.Context) (*adapter.Database, error) {
	return &adapter.Database{Name: f.name, Kind: f.kind}, nil
}
func (f *fakeAdapter) Execute(context.Context, adapter.Request) (*adapter.Result, error) {
	return &adapter.Result{}, nil
}
func (f *fakeAdapter) HealthCheck(context.Context) error { return nil }
func (f *fakeAdapter) Close(context.Context) error {
	f.closed.Store(true)
	return nil
}

func testSealer(t *testing.T) *crypto.Sealer {
	t.Helper()
	s, err := crypto.NewSealer("factory-test-secret")
	require.NoError(t, err)
	return s
}

func sealed(t *testing.T, s *crypto.Sealer, plain string) string {
	t.Helper()
	ct, err := s.Seal(plain)
	require.NoError(t, err)
	return ct
}

func TestForAccount_InitializesOnce(t *testing.T) {
	testkit.Serial(t)

	var pgCalls, mongoCalls atomic.Int32
	testkit.Swap(t, &openPG, func(_ context.Context, name, url string) (adapter.Adapter, error) {
		pgCalls.Add(1)
		require.Equal(t, "postgres://app", url, "factory must unseal before dialing")
		return &fakeAdapter{name: name, kind: adapter.KindRelational}, nil
	})
	testkit.Swap(t, &openMongo, func(_ context.Context, name, url string) (adapter.Adapter, error) {
		mongoCalls.Add(1)
		return &fakeAdapter{name: name, kind: adapter.KindDocument}, nil
	})

	s := testSealer(t)
	f := New(s)
	acct := Account{
		ID:          "acc-1",
		PostgresURL: sealed(t, s, "postgres://app"),
		MongoURL:    sealed(t, s, "mongodb://host/app"),
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := f.ForAccount(context.Background(), acct)
			require.NoError(t, err)
			require.Len(t, set, 2)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), pgCalls.Load())
	require.Equal(t, int32(1), mongoCalls.Load())
}

func TestForAccount_PartialConnectivityDegrades(t *testing.T) {
	testkit.Serial(t)

	testkit.Swap(t, &openPG, func(_ context.Context, name, _ string) (adapter.Adapter, error) {
		return &fakeAdapter{name: name, kind: adapter.KindRelational}, nil
	})
	testkit.Swap(t, &openMongo, func(context.Context, string, string) (adapter.Adapter, error) {
		return nil, perr.Unavailablef("mongo down")
	})

	s := testSealer(t)
	f := New(s)
	acct := Account{
		ID:          "acc-2",
		PostgresURL: sealed(t, s, "postgres://app"),
		MongoURL:    sealed(t, s, "mongodb://host/app"),
	}

	set, err := f.ForAccount(context.Background(), acct)
	require.NoError(t, err)
	require.Len(t, set, 1)
	require.Contains(t, set, KeyPostgres)
	require.NotContains(t, set, KeyMongo)
}

func TestForAccount_AllBackendsDownIsError(t *testing.T) {
	testkit.Serial(t)

	testkit.Swap(t, &openPG, func(context.Context, string, string) (adapter.Adapter, error) {
		return nil, perr.Unavailablef("pg down")
	})

	s := testSealer(t)
	f := New(s)
	acct := Account{ID: "acc-3", PostgresURL: sealed(t, s, "postgres://app")}

	_, err := f.ForAccount(context.Background(), acct)
	require.Error(t, err)
	require.Equal(t, perr.ErrorCodeUnavailable, perr.CodeOf(err))
}

func TestForAccount_NoDatabasesConfigured(t *testing.T) {
	f := New(testSealer(t))
	_, err := f.ForAccount(context.Background(), Account{ID: "acc-4"})
	require.Error(t, err)
	require.Equal(t, perr.ErrorCodeUnavailable, perr.CodeOf(err))
}

func TestGet_UnknownDatabaseIsNotFound(t *testing.T) {
	testkit.Serial(t)

	testkit.Swap(t, &openPG, func(_ context.Context, name, _ string) (adapter.Adapter, error) {
		return &fakeAdapter{name: name, kind: adapter.KindRelational}, nil
	})

	s := testSealer(t)
	f := New(s)
	acct := Account{ID: "acc-5", PostgresURL: sealed(t, s, "postgres://app")}

	a, err := f.Get(context.Background(), acct, KeyPostgres)
	require.NoError(t, err)
	require.Equal(t, KeyPostgres, a.Name())

	_, err = f.Get(context.Background(), acct, "oracle")
	require.Equal(t, perr.ErrorCodeNotFound, perr.CodeOf(err))
}

func TestSchemas_SkipsFailingBackend(t *testing.T) {
	testkit.Serial(t)

	bad := &schemaFailAdapter{fakeAdapter{name: KeyMongo, kind: adapter.KindDocument}}
	testkit.Swap(t, &openPG, func(_ context.Context, name, _ string) (adapter.Adapter, error) {
		return &fakeAdapter{name: name, kind: adapter.KindRelational}, nil
	})
	testkit.Swap(t, &openMongo, func(context.Context, string, string) (adapter.Adapter, error) {
		return bad, nil
	})

	s := testSealer(t)
	f := New(s)
	acct := Account{
		ID:          "acc-6",
		PostgresURL: sealed(t, s, "postgres://app"),
		MongoURL:    sealed(t, s, "mongodb://host/app"),
	}

	schemas, err := f.Schemas(context.Background(), acct)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	require.Contains(t, schemas, KeyPostgres)
}

type schemaFailAdapter struct{ fakeAdapter }

func (s *schemaFailAdapter) Schema(context.Context) (*adapter.Database, error) {
	return nil, perr.DBf("introspection broke")
}

func TestShutdown_ClosesEverythingAndClears(t *testing.T) {
	testkit.Serial(t)

	var made []*fakeAdapter
	var mu sync.Mutex
	mk := func(kind adapter.Kind) func(context.Context, string, string) (adapter.Adapter, error) {
		return func(_ context.Context, name, _ string) (adapter.Adapter, error) {
			a := &fakeAdapter{name: name, kind: kind}
			mu.Lock()
			made = append(made, a)
			mu.Unlock()
			return a, nil
		}
	}
	testkit.Swap(t, &openPG, mk(adapter.KindRelational))
	testkit.Swap(t, &openMongo, mk(adapter.KindDocument))

	s := testSealer(t)
	f := New(s)
	acct := Account{
		ID:          "acc-7",
		PostgresURL: sealed(t, s, "postgres://app"),
		MongoURL:    sealed(t, s, "mongodb://host/app"),
	}
	_, err := f.ForAccount(context.Background(), acct)
	require.NoError(t, err)

	var opens int32
	f.Shutdown(context.Background())
	for _, a := range made {
		require.True(t, a.closed.Load(), a.name)
	}

	// next request reinitializes
	testkit.Swap(t, &openPG, func(_ context.Context, name, _ string) (adapter.Adapter, error) {
		atomic.AddInt32(&opens, 1)
		return &fakeAdapter{name: name, kind: adapter.KindRelational}, nil
	})
	testkit.Swap(t, &openMongo, mk(adapter.KindDocument))
	_, err = f.ForAccount(context.Background(), acct)
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&opens))
}
