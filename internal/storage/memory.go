package storage

import (
	"context"
	"sync"
)

// MemoryStorage keeps values in process memory. Used by tests and the
// default demo configuration; nothing survives a restart of the process.
type MemoryStorage struct {
	mu    sync.RWMutex
	store map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{store: make(map[string]string)}
}

func (m *MemoryStorage) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.store[key]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

func (m *MemoryStorage) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = value
	return nil
}

func (m *MemoryStorage) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
	return nil
}

func (m *MemoryStorage) Backend() string { return "memory" }
