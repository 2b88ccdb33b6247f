package ledger

import (
	"context"
	"sync"
)

// readOnlyStore answers reads from an in-memory overlay first and the base
// store second. Writes and deletes only touch the overlay.
type readOnlyStore struct {
	base Store

	mu      sync.RWMutex
	overlay map[string]Entry
	deleted map[string]struct{}
}

// ReadOnly wraps base so writes are visible for the rest of the process but
// never persisted. Close closes base.
func ReadOnly(base Store) Store {
	return &readOnlyStore{
		base:    base,
		overlay: make(map[string]Entry),
		deleted: make(map[string]struct{}),
	}
}

func (r *readOnlyStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	key, err := validKey(key)
	if err != nil {
		return Entry{}, false, err
	}
	r.mu.RLock()
	entry, ok := r.overlay[key]
	_, gone := r.deleted[key]
	r.mu.RUnlock()
	if ok {
		return entry, true, nil
	}
	if gone {
		return Entry{}, false, nil
	}
	return r.base.Get(ctx, key)
}

func (r *readOnlyStore) Put(_ context.Context, key string, entry Entry) error {
	key, err := validKey(key)
	if err != nil {
		return err
	}
	entry.Key = key
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overlay[key] = entry
	delete(r.deleted, key)
	return nil
}

func (r *readOnlyStore) Delete(_ context.Context, key string) error {
	key, err := validKey(key)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overlay, key)
	r.deleted[key] = struct{}{}
	return nil
}

func (r *readOnlyStore) List(ctx context.Context) ([]Entry, error) {
	baseEntries, err := r.base.List(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(baseEntries)+len(r.overlay))
	for _, entry := range baseEntries {
		if _, gone := r.deleted[entry.Key]; gone {
			continue
		}
		if _, shadowed := r.overlay[entry.Key]; shadowed {
			continue
		}
		entries = append(entries, entry)
	}
	for _, entry := range r.overlay {
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return entries, nil
}

func (r *readOnlyStore) Flush(context.Context) error { return nil }

// Close discards the overlay and closes the base store.
func (r *readOnlyStore) Close() error { return r.base.Close() }
