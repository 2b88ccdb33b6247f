package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS shelfrate_ledger (
    key                  TEXT PRIMARY KEY,
    item_id              TEXT NOT NULL,
    library_id           TEXT NOT NULL DEFAULT '',
    title                TEXT NOT NULL DEFAULT '',
    last_updated         TIMESTAMPTZ,
    last_attempt         TIMESTAMPTZ,
    snapshot             JSONB,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    last_failure_reason  TEXT NOT NULL DEFAULT '',
    last_failure_at      TIMESTAMPTZ
)`

const postgresColumns = "key, item_id, library_id, title, last_updated, last_attempt, snapshot, consecutive_failures, last_failure_reason, last_failure_at"

// PostgresStore persists entries in a shared PostgreSQL table.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to dsn, verifies the connection, and ensures the
// ledger table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres ledger dsn cannot be empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	return &PostgresStore{db: pool}, nil
}

// NewPostgresStore wraps an existing pool. The table must already exist.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	key, err := validKey(key)
	if err != nil {
		return Entry{}, false, err
	}
	row := s.db.QueryRow(ctx, `SELECT `+postgresColumns+` FROM shelfrate_ledger WHERE key = $1`, key)
	entry, err := scanPostgresEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get ledger entry %s: %w", key, err)
	}
	return entry, true, nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, key string, entry Entry) error {
	key, err := validKey(key)
	if err != nil {
		return err
	}
	snapshot, err := encodeSnapshot(entry.Snapshot)
	if err != nil {
		return err
	}
	upsertSQL := `
		INSERT INTO shelfrate_ledger(` + postgresColumns + `)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT(key)
		DO UPDATE SET
			item_id = excluded.item_id,
			library_id = excluded.library_id,
			title = excluded.title,
			last_updated = excluded.last_updated,
			last_attempt = excluded.last_attempt,
			snapshot = excluded.snapshot,
			consecutive_failures = excluded.consecutive_failures,
			last_failure_reason = excluded.last_failure_reason,
			last_failure_at = excluded.last_failure_at;
	`
	_, err = s.db.Exec(ctx, upsertSQL,
		key,
		entry.ItemID,
		entry.LibraryID,
		entry.Title,
		timestamptz(entry.LastUpdated),
		timestamptz(entry.LastAttempt),
		nullableString(snapshot),
		entry.ConsecutiveFailures,
		entry.LastFailureReason,
		timestamptz(entry.LastFailureAt),
	)
	if err != nil {
		return fmt.Errorf("put ledger entry %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	key, err := validKey(key)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM shelfrate_ledger WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete ledger entry %s: %w", key, err)
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+postgresColumns+` FROM shelfrate_ledger`)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanPostgresEntry(rows)
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
func (s *PostgresStore) Flush(context.Context) error { return nil }

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s != nil && s.db != nil {
		s.db.Close()
	}
	return nil
}

func scanPostgresEntry(row pgx.Row) (Entry, error) {
	var (
		entry                                  Entry
		lastUpdated, lastAttempt, lastFailedAt pgtype.Timestamptz
		snapshot                               []byte
	)
	if err := row.Scan(
		&entry.Key,
		&entry.ItemID,
		&entry.LibraryID,
		&entry.Title,
		&lastUpdated,
		&lastAttempt,
		&snapshot,
		&entry.ConsecutiveFailures,
		&entry.LastFailureReason,
		&lastFailedAt,
	); err != nil {
		return Entry{}, err
	}
	entry.LastUpdated = fromTimestamptz(lastUpdated)
	entry.LastAttempt = fromTimestamptz(lastAttempt)
	entry.LastFailureAt = fromTimestamptz(lastFailedAt)
	records, err := decodeSnapshot(string(snapshot))
	if err != nil {
		return Entry{}, err
	}
	entry.Snapshot = records
	return entry, nil
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
}

func fromTimestamptz(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return ts.Time.UTC()
}
