// Package enrich runs one enrichment pass over the audiobookshelf catalog.
//
// The Runner walks the configured libraries sequentially. For every due item
// it resolves missing identifiers, aggregates ratings, merges the metadata
// patch under the item's locks, writes it back and records the outcome in
// the ledger. Pacing pauses run between items; consecutive rate limits
// trigger recovery pauses and eventually abort the run. A file lock keeps a
// second run from starting while one is active.
package enrich
