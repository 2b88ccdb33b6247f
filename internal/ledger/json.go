package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"shelfrate/internal/fileutil"
	"shelfrate/internal/logging"
)

// JSONStore keeps entries in memory and writes them to a single JSON file
// on Flush. Writes between flushes are lost if the process dies.
type JSONStore struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]Entry
	dirty   bool
}

var _ Store = (*JSONStore)(nil)

// OpenJSON loads the ledger file at path. A missing file starts an empty
// ledger; a corrupt one is an error so history is never silently dropped.
func OpenJSON(path string, logger *slog.Logger) (*JSONStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("json ledger path cannot be empty")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &JSONStore{
		path:    path,
		logger:  logging.NewComponentLogger(logger, "ledger"),
		entries: make(map[string]Entry),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file location.
func (s *JSONStore) Path() string { return s.path }

// Get implements Store.
func (s *JSONStore) Get(_ context.Context, key string) (Entry, bool, error) {
	key, err := validKey(key)
	if err != nil {
		return Entry{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok, nil
}

// Put implements Store.
func (s *JSONStore) Put(_ context.Context, key string, entry Entry) error {
	key, err := validKey(key)
	if err != nil {
		return err
	}
	entry.Key = key
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	s.dirty = true
	return nil
}

// Delete implements Store.
func (s *JSONStore) Delete(_ context.Context, key string) error {
	key, err := validKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	s.dirty = true
	return nil
}

// List implements Store.
func (s *JSONStore) List(context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(), nil
}

// Flush writes pending changes to disk atomically.
func (s *JSONStore) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := fileutil.WriteJSONAtomic(s.path, s.snapshot()); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	s.dirty = false
	s.logger.Debug("ledger flushed",
		logging.Int("entry_count", len(s.entries)),
		logging.String("path", s.path))
	return nil
}

// Close flushes pending changes.
func (s *JSONStore) Close() error {
	return s.Flush(context.Background())
}

func (s *JSONStore) snapshot() []Entry {
	entries := make([]Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return entries
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read ledger file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse ledger file %s: %w", s.path, err)
	}
	for _, entry := range entries {
		key := strings.TrimSpace(entry.Key)
		if key == "" {
			continue
		}
		entry.Key = key
		s.entries[key] = entry
	}

	s.logger.Debug("loaded ledger",
		logging.Int("entry_count", len(s.entries)),
		logging.String("path", s.path))
	return nil
}
