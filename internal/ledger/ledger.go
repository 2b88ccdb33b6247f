package ledger

import (
	"context"
	"strings"
	"time"

	"shelfrate/internal/catalog"
	"shelfrate/internal/config"
	"shelfrate/internal/sources"
)

// Policy controls retry spacing and the failure cap.
type Policy struct {
	RetryBase   time.Duration
	RetryMax    time.Duration
	MaxFailures int
}

// DefaultPolicy waits 24h after the first failure, doubling up to 30 days,
// and parks an item until it is stale after five consecutive failures.
func DefaultPolicy() Policy {
	return Policy{
		RetryBase:   24 * time.Hour,
		RetryMax:    30 * 24 * time.Hour,
		MaxFailures: 5,
	}
}

// PolicyFromConfig converts the resolver retry settings.
func PolicyFromConfig(cfg config.Resolver) Policy {
	return Policy{
		RetryBase:   time.Duration(cfg.RetryBaseHours) * time.Hour,
		RetryMax:    time.Duration(cfg.RetryMaxDays) * 24 * time.Hour,
		MaxFailures: cfg.MaxFailures,
	}
}

// Ledger applies enrichment history rules on top of a Store.
type Ledger struct {
	store  Store
	policy Policy
}

// New wraps store. Zero policy fields fall back to DefaultPolicy.
func New(store Store, policy Policy) *Ledger {
	defaults := DefaultPolicy()
	if policy.RetryBase <= 0 {
		policy.RetryBase = defaults.RetryBase
	}
	if policy.RetryMax <= 0 {
		policy.RetryMax = defaults.RetryMax
	}
	if policy.RetryMax < policy.RetryBase {
		policy.RetryMax = policy.RetryBase
	}
	if policy.MaxFailures <= 0 {
		policy.MaxFailures = defaults.MaxFailures
	}
	return &Ledger{store: store, policy: policy}
}

// Store exposes the underlying store for listing and deletion.
func (l *Ledger) Store() Store { return l.store }

// Policy returns the effective retry policy.
func (l *Ledger) Policy() Policy { return l.policy }

// Lookup returns the entry for item, if any.
func (l *Ledger) Lookup(ctx context.Context, item catalog.Item) (Entry, bool, error) {
	return l.store.Get(ctx, item.Key())
}

// RecordSuccess stores snapshot as the last-known-good aggregate and clears
// failure bookkeeping.
func (l *Ledger) RecordSuccess(ctx context.Context, item catalog.Item, snapshot []sources.Record, now time.Time) (Entry, error) {
	entry, _, err := l.Lookup(ctx, item)
	if err != nil {
		return Entry{}, err
	}
	entry = l.base(entry, item, now)
	entry.LastUpdated = now
	if len(snapshot) > 0 {
		entry.Snapshot = snapshot
	}
	entry.ConsecutiveFailures = 0
	entry.LastFailureReason = ""
	entry.LastFailureAt = time.Time{}
	if err := l.store.Put(ctx, entry.Key, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// RecordFailure counts a failed attempt. Once MaxFailures is reached the
// entry is marked updated so it is skipped until it becomes stale.
func (l *Ledger) RecordFailure(ctx context.Context, item catalog.Item, reason string, now time.Time) (Entry, error) {
	entry, _, err := l.Lookup(ctx, item)
	if err != nil {
		return Entry{}, err
	}
	entry = l.base(entry, item, now)
	entry.ConsecutiveFailures++
	entry.LastFailureReason = strings.TrimSpace(reason)
	entry.LastFailureAt = now
	if entry.ConsecutiveFailures >= l.policy.MaxFailures {
		entry.LastUpdated = now
	}
	if err := l.store.Put(ctx, entry.Key, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Exhausted reports whether entry has hit the failure cap.
func (l *Ledger) Exhausted(entry Entry) bool {
	return entry.ConsecutiveFailures >= l.policy.MaxFailures
}

// Due reports whether an item should be processed: never updated, or
// updated longer than staleness ago.
func (l *Ledger) Due(entry Entry, staleness time.Duration, now time.Time) bool {
	if entry.LastUpdated.IsZero() {
		return true
	}
	return now.Sub(entry.LastUpdated) >= staleness
}

// Cooldown returns when the next attempt is allowed after consecutive
// failures, and whether now is still inside that window. The wait is
// RetryBase doubled per failure after the first, capped at RetryMax.
func (l *Ledger) Cooldown(entry Entry, now time.Time) (time.Time, bool) {
	if entry.ConsecutiveFailures <= 0 || entry.LastFailureAt.IsZero() {
		return time.Time{}, false
	}
	wait := l.policy.RetryBase
	for i := 1; i < entry.ConsecutiveFailures && wait < l.policy.RetryMax; i++ {
		wait *= 2
	}
	if wait > l.policy.RetryMax {
		wait = l.policy.RetryMax
	}
	until := entry.LastFailureAt.Add(wait)
	return until, now.Before(until)
}

// Flush persists pending writes.
func (l *Ledger) Flush(ctx context.Context) error { return l.store.Flush(ctx) }

// Close flushes and releases the store.
func (l *Ledger) Close() error { return l.store.Close() }

func (l *Ledger) base(entry Entry, item catalog.Item, now time.Time) Entry {
	entry.Key = item.Key()
	entry.ItemID = item.ID
	entry.LibraryID = item.LibraryID
	if title := strings.TrimSpace(item.Title); title != "" {
		entry.Title = title
	}
	entry.LastAttempt = now
	return entry
}
