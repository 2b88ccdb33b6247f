package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in a map. Nothing survives Close.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	key, err := validKey(key)
	if err != nil {
		return Entry{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	return entry, ok, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, key string, entry Entry) error {
	key, err := validKey(key)
	if err != nil {
		return err
	}
	entry.Key = key
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	key, err := validKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return entries, nil
}

// Flush implements Store.
func (m *MemoryStore) Flush(context.Context) error { return nil }

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
