// Package resolver ensures a catalog item carries its Audible ASIN and ISBN
// before ratings are collected.
//
// Items that already have an identifier are confirmed by an exact lookup on
// the matching sources; the records found are handed to the ratings
// aggregator so they are not fetched twice. Items without identifiers fall
// back to a text search across every source, scored and decided by
// internal/match. Misses are spaced out with the ledger cooldown.
package resolver
