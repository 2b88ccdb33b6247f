// Package catalog talks to the audiobookshelf REST API.
//
// It lists library items, fetches an expanded item snapshot, and applies
// metadata patches. Item tags carry field lock directives (lock_series,
// lock_all, ...) which ParseLocks turns into a Locks set.
package catalog
