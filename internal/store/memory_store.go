package store

import (
	"context"
	"sync"

	"pulsewatch/pkg/models"
)

// MemoryStore is an in-process Store with the same semantics as the
// Redis store. Used for tests and for single-node deployments that do
// not need durability.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]*tenantBucket
}

type tenantBucket struct {
	records map[string]models.ClientRecord
	index   []string
	seen    map[string]struct{}
	states  map[string]models.State
	config  *models.TenantConfig
	facts   []*models.Fact
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]*tenantBucket)}
}

func (s *MemoryStore) bucket(tenant string) *tenantBucket {
	b := s.tenants[tenant]
	if b == nil {
		b = &tenantBucket{
			records: make(map[string]models.ClientRecord),
			seen:    make(map[string]struct{}),
			states:  make(map[string]models.State),
		}
		s.tenants[tenant] = b
	}
	return b
}

// PutRecord overwrites the record and appends the id to the index if new.
func (s *MemoryStore) PutRecord(_ context.Context, tenant string, rec *models.ClientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucket(tenant)
	b.records[rec.ID] = *rec
	if _, ok := b.seen[rec.ID]; !ok {
		b.seen[rec.ID] = struct{}{}
		b.index = append(b.index, rec.ID)
	}
	return nil
}

// GetRecord returns a copy of the record, or nil when absent.
func (s *MemoryStore) GetRecord(_ context.Context, tenant, id string) (*models.ClientRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.tenants[tenant]
	if b == nil {
		return nil, nil
	}
	rec, ok := b.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// ListIDs returns the index in first-seen order.
func (s *MemoryStore) ListIDs(_ context.Context, tenant string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.tenants[tenant]
	if b == nil {
		return nil, nil
	}
	out := make([]string, len(b.index))
	copy(out, b.index)
	return out, nil
}

// GetConfig returns a copy of the tenant config, nil when absent.
func (s *MemoryStore) GetConfig(_ context.Context, tenant string) (*models.TenantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.tenants[tenant]
	if b == nil || b.config == nil {
		return nil, nil
	}
	cfg := *b.config
	return &cfg, nil
}

// PutConfig overwrites the tenant config.
func (s *MemoryStore) PutConfig(_ context.Context, tenant string, cfg *models.TenantConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cfg
	s.bucket(tenant).config = &c
	return nil
}

// GetLastState returns the persisted state for id, "" when absent.
func (s *MemoryStore) GetLastState(_ context.Context, tenant, id string) (models.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.tenants[tenant]
	if b == nil {
		return "", nil
	}
	return b.states[id], nil
}

// PutLastState persists the state for id.
func (s *MemoryStore) PutLastState(_ context.Context, tenant, id string, st models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(tenant).states[id] = st
	return nil
}

// PushFact prepends a fact, truncating to models.MaxFacts newest.
func (s *MemoryStore) PushFact(_ context.Context, tenant string, fact *models.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucket(tenant)
	f := *fact
	b.facts = append([]*models.Fact{&f}, b.facts...)
	if len(b.facts) > models.MaxFacts {
		b.facts = b.facts[:models.MaxFacts]
	}
	return nil
}

// ListFacts returns the facts, newest first.
func (s *MemoryStore) ListFacts(_ context.Context, tenant string) ([]*models.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.tenants[tenant]
	if b == nil {
		return nil, nil
	}
	out := make([]*models.Fact, len(b.facts))
	copy(out, b.facts)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
