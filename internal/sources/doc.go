// Package sources defines the rating source contract shared by the Audible
// and Goodreads clients.
//
// A Source performs an exact lookup (Fetch) or a text search (Search) and
// reports one of three outcomes: a Record, ErrNotFound, or a transient
// failure wrapping ErrRateLimited. Rate limiting and timeouts are never
// reported as "not found" so callers can keep existing data instead of
// treating a throttled source as a permanent miss.
//
// The package also holds the page fetch helper and the value parsers both
// HTML clients rely on.
package sources
