// Package merge computes the metadata patch for one item from fetched
// source records, the rendered ratings block, and the item's lock tags.
//
// Merging is additive: series and genres are unions, identifiers are only
// filled when empty, and scalar fields follow the configured overwrite
// policy. Locked fields never appear in a patch.
package merge
