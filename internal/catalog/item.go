package catalog

import (
	"strings"
	"time"
)

// Series is one series membership of a catalog item.
type Series struct {
	Name     string `json:"name"`
	Sequence string `json:"sequence,omitempty"`
}

// Item is a read-only snapshot of an audiobookshelf library item.
type Item struct {
	ID          string
	LibraryID   string
	ASIN        string
	ISBN        string
	Title       string
	Authors     []string
	Duration    time.Duration
	Series      []Series
	Language    string
	Publisher   string
	Year        string
	Genres      []string
	Description string
	Tags        []string
	UpdatedAt   time.Time
}

// PrimaryAuthor returns the first author or an empty string.
func (i Item) PrimaryAuthor() string {
	if len(i.Authors) == 0 {
		return ""
	}
	return i.Authors[0]
}

// Key returns the ledger key for the item.
func (i Item) Key() string {
	return i.LibraryID + "_" + i.ID
}

// Locks returns the field locks derived from the item tags.
func (i Item) Locks() Locks {
	return ParseLocks(i.Tags)
}

// Patch lists metadata changes. Nil fields are left untouched.
type Patch struct {
	ASIN        *string  `json:"asin,omitempty"`
	ISBN        *string  `json:"isbn,omitempty"`
	Language    *string  `json:"language,omitempty"`
	Publisher   *string  `json:"publisher,omitempty"`
	Year        *string  `json:"publishedYear,omitempty"`
	Description *string  `json:"description,omitempty"`
	Series      []Series `json:"series,omitempty"`
	Genres      []string `json:"genres,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.ASIN == nil && p.ISBN == nil && p.Language == nil && p.Publisher == nil &&
		p.Year == nil && p.Description == nil && p.Series == nil && p.Genres == nil
}

// Fields returns the names of the fields the patch sets.
func (p Patch) Fields() []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(p.ASIN != nil, "asin")
	add(p.ISBN != nil, "isbn")
	add(p.Language != nil, "language")
	add(p.Publisher != nil, "publisher")
	add(p.Year != nil, "year")
	add(p.Series != nil, "series")
	add(p.Genres != nil, "genres")
	add(p.Description != nil, "description")
	return fields
}

// Apply returns a copy of item with the patch applied.
func (p Patch) Apply(item Item) Item {
	out := item
	if p.ASIN != nil {
		out.ASIN = *p.ASIN
	}
	if p.ISBN != nil {
		out.ISBN = *p.ISBN
	}
	if p.Language != nil {
		out.Language = *p.Language
	}
	if p.Publisher != nil {
		out.Publisher = *p.Publisher
	}
	if p.Year != nil {
		out.Year = *p.Year
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Series != nil {
		out.Series = append([]Series(nil), p.Series...)
	}
	if p.Genres != nil {
		out.Genres = append([]string(nil), p.Genres...)
	}
	return out
}

func splitAuthors(value string) []string {
	var authors []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			authors = append(authors, part)
		}
	}
	return authors
}
