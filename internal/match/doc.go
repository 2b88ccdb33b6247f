// Package match scores search candidates against a catalog item.
//
// Scoring is pure: normalized title token overlap, author overlap, and
// runtime delta are combined with tunable weights. Decide applies the
// acceptance threshold and the runner-up margin that keeps near ties from
// producing wrong identifiers.
package match
