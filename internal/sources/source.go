package sources

import (
	"context"
	"time"

	"shelfrate/internal/catalog"
)

// Family groups sources that publish the same rating scale and fields.
type Family string

const (
	FamilyAudible   Family = "audible"
	FamilyGoodreads Family = "goodreads"
)

// Source is a single rating provider. Regional variants are separate Sources.
type Source interface {
	Name() string
	Family() Family
	// Fetch returns the record for the query, ErrNotFound, or an error
	// wrapping ErrRateLimited.
	Fetch(ctx context.Context, q Query) (*Record, error)
	// Search returns unscored candidates for a text query.
	Search(ctx context.Context, q Query) ([]Candidate, error)
}

// CandidateFetcher is implemented by sources that can load one of their own
// search hits directly.
type CandidateFetcher interface {
	FetchCandidate(ctx context.Context, c Candidate) (*Record, error)
}

// Query describes the item being looked up.
type Query struct {
	ASIN            string
	ISBN            string
	Title           string
	Author          string
	Authors         []string
	DurationSeconds int
	Language        string
}

// QueryFor builds a Query from a catalog item.
func QueryFor(item catalog.Item) Query {
	return Query{
		ASIN:            item.ASIN,
		ISBN:            item.ISBN,
		Title:           item.Title,
		Author:          item.PrimaryAuthor(),
		Authors:         item.Authors,
		DurationSeconds: int(item.Duration / time.Second),
		Language:        item.Language,
	}
}

// AllAuthors returns Authors, or Author alone when the list is empty.
func (q Query) AllAuthors() []string {
	if len(q.Authors) > 0 {
		return q.Authors
	}
	if q.Author != "" {
		return []string{q.Author}
	}
	return nil
}

// Record is an immutable snapshot fetched from one source. Absent values are
// nil or empty, never zero.
type Record struct {
	Source         string           `json:"source"`
	Family         Family           `json:"family"`
	Identifier     string           `json:"identifier,omitempty"`
	Title          string           `json:"title,omitempty"`
	Author         string           `json:"author,omitempty"`
	Overall        *float64         `json:"overall,omitempty"`
	Performance    *float64         `json:"performance,omitempty"`
	Story          *float64         `json:"story,omitempty"`
	RatingCount    *int             `json:"ratingCount,omitempty"`
	Series         []catalog.Series `json:"series,omitempty"`
	Language       string           `json:"language,omitempty"`
	Publisher      string           `json:"publisher,omitempty"`
	Year           string           `json:"year,omitempty"`
	Genres         []string         `json:"genres,omitempty"`
	ISBNCandidates []string         `json:"isbnCandidates,omitempty"`
	URL            string           `json:"url,omitempty"`
	FetchedAt      time.Time        `json:"fetchedAt"`
}

// Renderable reports whether the record carries a usable overall rating.
func (r *Record) Renderable() bool {
	return r != nil && r.Overall != nil && r.RatingCount != nil && *r.RatingCount > 0
}

// Candidate is one search hit before scoring.
type Candidate struct {
	Source          string `json:"source"`
	Identifier      string `json:"identifier"`
	Title           string `json:"title"`
	Author          string `json:"author,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	URL             string `json:"url,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
