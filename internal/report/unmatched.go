package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"shelfrate/internal/fileutil"
)

// UnmatchedFile is the persistent list file name inside the report directory.
const UnmatchedFile = "unmatched.json"

// UnmatchedList is the standing set of unmatched items keyed by item ID.
type UnmatchedList struct {
	path string

	mu      sync.Mutex
	entries map[string]Unmatched
	dirty   bool
}

// OpenUnmatched loads the list at path. A missing file yields an empty list.
func OpenUnmatched(path string) (*UnmatchedList, error) {
	list := &UnmatchedList{path: path, entries: make(map[string]Unmatched)}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return list, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read unmatched list: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return list, nil
	}
	var stored []Unmatched
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode unmatched list: %w", err)
	}
	for _, u := range stored {
		if u.ItemID != "" {
			list.entries[u.ItemID] = u
		}
	}
	return list, nil
}

// Upsert records or refreshes u.
func (l *UnmatchedList) Upsert(u Unmatched) {
	if u.ItemID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[u.ItemID] = u
	l.dirty = true
}

// Remove drops itemID and reports whether it was listed.
func (l *UnmatchedList) Remove(itemID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[itemID]; !ok {
		return false
	}
	delete(l.entries, itemID)
	l.dirty = true
	return true
}

// Entries returns the list ordered by title, then item ID.
func (l *UnmatchedList) Entries() []Unmatched {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Unmatched, 0, len(l.entries))
	for _, u := range l.entries {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := strings.ToLower(out[i].Title), strings.ToLower(out[j].Title)
		if ti != tj {
			return ti < tj
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}

// Len returns the number of listed items.
func (l *UnmatchedList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Save writes the list when it changed since the last save.
func (l *UnmatchedList) Save() error {
	l.mu.Lock()
	dirty := l.dirty
	l.mu.Unlock()
	if !dirty {
		return nil
	}
	entries := l.Entries()
	if err := fileutil.WriteJSONAtomic(l.path, entries); err != nil {
		return fmt.Errorf("write unmatched list: %w", err)
	}
	l.mu.Lock()
	l.dirty = false
	l.mu.Unlock()
	return nil
}
