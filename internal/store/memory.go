package store

import (
	"context"
	"sync"
)

// MemoryStore keeps collections in process memory. It backs tests and
// the single-binary demo mode.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

var _ Store = (*MemoryStore)(nil)

// Get returns a copy of the stored payload.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), payload...), true, nil
}

// Set stores a copy of payload under key.
func (m *MemoryStore) Set(ctx context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append([]byte(nil), payload...)
	return nil
}
