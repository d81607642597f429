package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node setups.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) Scan(_ context.Context, match func(key string) bool) (string, []byte, error) {
	if match == nil {
		return "", nil, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.entries {
		if match(k) {
			out := make([]byte, len(v))
			copy(out, v)
			return k, out, nil
		}
	}
	return "", nil, ErrNotFound
}

func (m *MemoryStore) Upsert(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.entries[key] = v
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
