// File: internal/store/memory_store.go
package store

import (
	"context"
	"sync"

	"github.com/xkilldash9x/feedpilot/api/schemas"
)

// MemoryStore keeps encoded bundles in a map. Nothing survives the process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, siteID string) (*schemas.CredentialBundle, error) {
	if err := checkSiteID(siteID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.data[siteID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decode(siteID, data)
}

// Save stores an encoded copy, so later mutation of bundle is not observed.
func (s *MemoryStore) Save(_ context.Context, siteID string, bundle *schemas.CredentialBundle) error {
	if err := checkSiteID(siteID); err != nil {
		return err
	}
	data, err := encode(siteID, bundle)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[siteID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, siteID string) error {
	s.mu.Lock()
	delete(s.data, siteID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
