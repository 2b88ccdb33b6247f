// Package language provides unified language code normalization and mapping.
//
// Catalog items, Audible product pages, and Goodreads all describe language
// differently ("German", "Deutsch", "de-DE", "ger"). Every comparison and
// every written language value goes through the helpers here.
package language
