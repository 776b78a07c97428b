package adapter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	perr "querypilot/internal/platform/errors"
)

func TestSchemaMemo_FetchesOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	fetch := func(context.Context) (*Database, error) {
		calls.Add(1)
		return &Database{Name: "app", Kind: KindRelational}, nil
	}

	var m SchemaMemo
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			db, err := m.Get(context.Background(), fetch)
			require.NoError(t, err)
			require.Equal(t, "app", db.Name)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
}

func TestSchemaMemo_FailureNotCached(t *testing.T) {
	t.Parallel()

	var calls int
	fetch := func(context.Context) (*Database, error) {
		calls++
		if calls == 1 {
			return nil, perr.Unavailablef("backend down")
		}
		return &Database{Name: "app", Kind: KindDocument}, nil
	}

	var m SchemaMemo
	_, err := m.Get(context.Background(), fetch)
	require.Error(t, err)

	db, err := m.Get(context.Background(), fetch)
	require.NoError(t, err)
	require.Equal(t, KindDocument, db.Kind)
	require.Equal(t, 2, calls)
}

func TestSchemaMemo_Invalidate(t *testing.T) {
	t.Parallel()

	var calls int
	fetch := func(context.Context) (*Database, error) {
		calls++
		return &Database{Name: "app"}, nil
	}

	var m SchemaMemo
	_, err := m.Get(context.Background(), fetch)
	require.NoError(t, err)
	m.Invalidate()
	_, err = m.Get(context.Background(), fetch)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}
