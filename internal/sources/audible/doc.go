// Package audible scrapes Audible product and search pages for ratings and
// metadata. Each marketplace (audible.com, audible.de) is a separate Client
// so regions are queried independently.
package audible
