// Package goodreads scrapes Goodreads search and book pages for the
// community rating, rating count, ISBN, and genres.
package goodreads
