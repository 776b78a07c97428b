package accounts

import (
	"context"
	"sync"
	"time"

	perr "querypilot/internal/platform/errors"
)

// Store is the account persistence port
type Store interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByKeyHash(ctx context.Context, hash string) (*Account, error)
	List(ctx context.Context) ([]*Account, error)
	Create(ctx context.Context, a *Account) error
	Update(ctx context.Context, a *Account) error
	Delete(ctx context.Context, id string) error
	RotateKey(ctx context.Context, id, newHash string) error
}

// MemoryStore keeps accounts in process memory. Used by tests and by
// deployments that configure accounts from the environment
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Account
	byHash map[string]string
}

// NewMemoryStore builds an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   map[string]*Account{},
		byHash: map[string]string{},
	}
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, perr.NotFoundf("account %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) GetByKeyHash(_ context.Context, hash string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return nil, perr.NotFoundf("no account for key")
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Account, 0, len(s.byID))
	for _, a := range s.byID {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, a *Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[a.ID]; ok {
		return perr.DuplicateKeyf("account %s already exists", a.ID)
	}
	if _, ok := s.byHash[a.KeyHash]; ok {
		return perr.DuplicateKeyf("project key already in use")
	}
	cp := *a
	now := time.Now().UTC()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.byID[cp.ID] = &cp
	s.byHash[cp.KeyHash] = cp.ID
	return nil
}

func (s *MemoryStore) Update(_ context.Context, a *Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[a.ID]
	if !ok {
		return perr.NotFoundf("account %s not found", a.ID)
	}
	cp := *a
	cp.CreatedAt = old.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	delete(s.byHash, old.KeyHash)
	s.byID[cp.ID] = &cp
	s.byHash[cp.KeyHash] = cp.ID
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return perr.NotFoundf("account %s not found", id)
	}
	delete(s.byHash, a.KeyHash)
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) RotateKey(_ context.Context, id, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return perr.NotFoundf("account %s not found", id)
	}
	if owner, ok := s.byHash[newHash]; ok && owner != id {
		return perr.DuplicateKeyf("project key already in use")
	}
	delete(s.byHash, a.KeyHash)
	a.KeyHash = newHash
	a.UpdatedAt = time.Now().UTC()
	s.byHash[newHash] = id
	return nil
}
