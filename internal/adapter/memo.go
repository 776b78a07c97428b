package adapter

import (
	"context"
	"sync"
)

// SchemaMemo caches an introspected schema for the lifetime of an
// adapter instance. The first successful fetch wins; failures are not
// cached so the next call retries. Invalidate drops the cached value
type SchemaMemo struct {
	mu sync.Mutex
	db *Database
}

// Get returns the cached schema, fetching it once on a miss. Concurrent
// callers on a cold memo serialize behind the mutex so the backend is
// introspected at most once
func (m *SchemaMemo) Get(ctx context.Context, fetch func(ctx context.Context) (*Database, error)) (*Database, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db, nil
	}
	db, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	m.db = db
	return db, nil
}

// Invalidate drops the cached schema
func (m *SchemaMemo) Invalidate() {
	m.mu.Lock()
	m.db = nil
	m.mu.Unlock()
}
