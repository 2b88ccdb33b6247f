// Package ledger persists per-item enrichment history: when an item was
// last rated, the last-known-good rating snapshot, and consecutive failure
// bookkeeping used for retry spacing.
//
// Store implementations cover an in-memory map, a JSON file written
// atomically on Flush, SQLite, and PostgreSQL. ReadOnly wraps any Store so
// dry runs observe their own writes without persisting them. Ledger layers
// the domain rules (success, failure, staleness, cooldown) on top of a
// Store.
package ledger
