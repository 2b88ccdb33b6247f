package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"shelfrate/internal/sources"
)

// ErrEmptyKey is returned when an entry is stored without a key.
var ErrEmptyKey = errors.New("ledger key cannot be empty")

// Entry is the history record for one catalog item.
type Entry struct {
	Key                 string           `json:"key"`
	ItemID              string           `json:"item_id"`
	LibraryID           string           `json:"library_id,omitempty"`
	Title               string           `json:"title,omitempty"`
	LastUpdated         time.Time        `json:"last_updated,omitzero"`
	LastAttempt         time.Time        `json:"last_attempt,omitzero"`
	Snapshot            []sources.Record `json:"snapshot,omitempty"`
	ConsecutiveFailures int              `json:"consecutive_failures,omitempty"`
	LastFailureReason   string           `json:"last_failure_reason,omitempty"`
	LastFailureAt       time.Time        `json:"last_failure_at,omitzero"`
}

// Store is the persistence contract shared by every backend.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Entry, error)
	Flush(ctx context.Context) error
	Close() error
}

// sortEntries orders entries newest attempt first, then by key.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastAttempt.Equal(entries[j].LastAttempt) {
			return entries[i].LastAttempt.After(entries[j].LastAttempt)
		}
		return entries[i].Key < entries[j].Key
	})
}

func validKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}
