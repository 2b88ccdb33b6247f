// Package ratings collects source records for an item in a fixed order and
// renders them into the ratings block stored at the top of the catalog
// description.
//
// Rendering is pure: MoonBar, Block, and Render have no network
// dependencies. Aggregator drives the sources sequentially, reuses records
// the resolver already fetched, and falls back per family to the ledger
// snapshot when nothing fresh is renderable.
package ratings
