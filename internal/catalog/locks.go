package catalog

import "strings"

const lockPrefix = "lock_"

// Locks is the set of metadata fields an item's tags protect from writes.
type Locks struct {
	All         bool
	Series      bool
	Language    bool
	Publisher   bool
	Year        bool
	Genres      bool
	ISBN        bool
	Description bool
}

// ParseLocks derives locks from tags of the form lock_<field>. Matching is
// case-insensitive, ignores surrounding whitespace, and accepts "-" for "_".
// lock_isbn covers both identifier fields.
func ParseLocks(tags []string) Locks {
	var locks Locks
	for _, tag := range tags {
		normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), "-", "_")
		field, ok := strings.CutPrefix(normalized, lockPrefix)
		if !ok {
			continue
		}
		switch strings.TrimSpace(field) {
		case "all":
			locks.All = true
		case "series":
			locks.Series = true
		case "language":
			locks.Language = true
		case "publisher":
			locks.Publisher = true
		case "year":
			locks.Year = true
		case "genres", "genre":
			locks.Genres = true
		case "isbn", "asin":
			locks.ISBN = true
		case "description":
			locks.Description = true
		}
	}
	if locks.All {
		return Locks{All: true, Series: true, Language: true, Publisher: true, Year: true, Genres: true, ISBN: true, Description: true}
	}
	return locks
}

// Names lists the locked fields in a stable order.
func (l Locks) Names() []string {
	if l.All {
		return []string{"all"}
	}
	var names []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{l.Series, "series"},
		{l.Language, "language"},
		{l.Publisher, "publisher"},
		{l.Year, "year"},
		{l.Genres, "genres"},
		{l.ISBN, "isbn"},
		{l.Description, "description"},
	} {
		if f.set {
			names = append(names, f.name)
		}
	}
	return names
}
