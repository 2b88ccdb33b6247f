package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"shelfrate/internal/sources"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current SQLite schema version. Bump it when the
// schema changes; older databases must be recreated.
const schemaVersion = 1

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const entryColumns = "key, item_id, library_id, title, last_updated, last_attempt, snapshot_json, consecutive_failures, last_failure_reason, last_failure_at"

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// SQLiteStore persists entries in a SQLite database. Every Put is durable
// immediately.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the ledger database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite ledger path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to recreate it)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	key, err := validKey(key)
	if err != nil {
		return Entry{}, false, err
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE key = ?", key)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get ledger entry %s: %w", key, err)
	}
	return entry, true, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key string, entry Entry) error {
	key, err := validKey(key)
	if err != nil {
		return err
	}
	snapshot, err := encodeSnapshot(entry.Snapshot)
	if err != nil {
		return err
	}
	const query = `INSERT INTO entries (` + entryColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    item_id = excluded.item_id,
    library_id = excluded.library_id,
    title = excluded.title,
    last_updated = excluded.last_updated,
    last_attempt = excluded.last_attempt,
    snapshot_json = excluded.snapshot_json,
    consecutive_failures = excluded.consecutive_failures,
    last_failure_reason = excluded.last_failure_reason,
    last_failure_at = excluded.last_failure_at`
	return s.execWithRetry(ctx, query,
		key,
		entry.ItemID,
		entry.LibraryID,
		entry.Title,
		nullableTime(entry.LastUpdated),
		nullableTime(entry.LastAttempt),
		nullableString(snapshot),
		entry.ConsecutiveFailures,
		entry.LastFailureReason,
		nullableTime(entry.LastFailureAt),
	)
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	key, err := validKey(key)
	if err != nil {
		return err
	}
	return s.execWithRetry(ctx, "DELETE FROM entries WHERE key = ?", key)
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+entryColumns+" FROM entries")
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	sortEntries(entries)
	return entries, nil
}

// Flush implements Store. Writes are already durable.
func (s *SQLiteStore) Flush(context.Context) error { return nil }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		_, lastErr = s.db.ExecContext(ctx, query, args...)
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry         Entry
		lastUpdated   sql.NullString
		lastAttempt   sql.NullString
		snapshot      sql.NullString
		lastFailureAt sql.NullString
	)
	if err := scanner.Scan(
		&entry.Key,
		&entry.ItemID,
		&entry.LibraryID,
		&entry.Title,
		&lastUpdated,
		&lastAttempt,
		&snapshot,
		&entry.ConsecutiveFailures,
		&entry.LastFailureReason,
		&lastFailureAt,
	); err != nil {
		return Entry{}, err
	}
	entry.LastUpdated = parseTimeString(lastUpdated.String)
	entry.LastAttempt = parseTimeString(lastAttempt.String)
	entry.LastFailureAt = parseTimeString(lastFailureAt.String)
	records, err := decodeSnapshot(snapshot.String)
	if err != nil {
		return Entry{}, err
	}
	entry.Snapshot = records
	return entry, nil
}

func encodeSnapshot(records []sources.Record) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(data), nil
}

func decodeSnapshot(raw string) ([]sources.Record, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var records []sources.Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return records, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
