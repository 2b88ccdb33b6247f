package merge

import (
	"slices"
	"strings"

	"shelfrate/internal/catalog"
	"shelfrate/internal/config"
	"shelfrate/internal/language"
	"shelfrate/internal/ratings"
	"shelfrate/internal/sources"
	"shelfrate/internal/textutil"
)

// DefaultPlaceholders are scalar values treated as empty under the
// placeholder policy. Matching is case-insensitive.
var DefaultPlaceholders = []string{"unknown", "n/a", "na", "none", "-", "?", "0", "0000"}

// Policy controls scalar overwrites.
type Policy struct {
	// Scalar is config.ScalarPolicyNever, ScalarPolicyPlaceholder, or
	// ScalarPolicyAlways. Empty means placeholder.
	Scalar string
	// Placeholders extends DefaultPlaceholders.
	Placeholders []string
}

// Input is everything the merger looks at for one item.
type Input struct {
	Item    catalog.Item
	Records []sources.Record
	Block   string
	// ASIN and ISBN are identifiers confirmed by the resolver.
	ASIN string
	ISBN string
}

// Result is the proposed change.
type Result struct {
	Patch       catalog.Patch
	Block       string
	Description string
}

// Merger builds patches under a fixed policy. It is stateless and safe for
// concurrent use.
type Merger struct {
	scalar       string
	placeholders map[string]struct{}
}

// New returns a Merger for policy.
func New(policy Policy) *Merger {
	scalar := strings.ToLower(strings.TrimSpace(policy.Scalar))
	if scalar == "" {
		scalar = config.ScalarPolicyPlaceholder
	}
	placeholders := make(map[string]struct{}, len(DefaultPlaceholders)+len(policy.Placeholders))
	for _, value := range append(slices.Clone(DefaultPlaceholders), policy.Placeholders...) {
		if key := placeholderKey(value); key != "" {
			placeholders[key] = struct{}{}
		}
	}
	return &Merger{scalar: scalar, placeholders: placeholders}
}

// Merge computes the patch for in. Only changed, unlocked fields are set.
func (m *Merger) Merge(in Input) Result {
	item := in.Item
	locks := item.Locks()
	result := Result{Block: in.Block, Description: item.Description}
	if locks.All {
		return result
	}
	records := audibleFirst(in.Records)
	patch := &result.Patch

	if !locks.ISBN {
		if item.ASIN == "" {
			if asin := firstASIN(in.ASIN, records); asin != "" {
				patch.ASIN = &asin
			}
		}
		if item.ISBN == "" {
			if isbn := firstISBN(in.ISBN, records); isbn != "" {
				patch.ISBN = &isbn
			}
		}
	}

	if !locks.Language {
		if candidate := firstValue(records, func(r sources.Record) string { return r.Language }); candidate != "" {
			if m.writeScalar(item.Language, candidate, language.Equal) {
				display := language.DisplayName(candidate)
				patch.Language = &display
			}
		}
	}
	if !locks.Publisher {
		if candidate := firstValue(records, func(r sources.Record) string { return r.Publisher }); candidate != "" {
			if m.writeScalar(item.Publisher, candidate, sameText) {
				patch.Publisher = &candidate
			}
		}
	}
	if !locks.Year {
		if candidate := firstValue(records, func(r sources.Record) string { return r.Year }); candidate != "" {
			if m.writeScalar(item.Year, candidate, sameText) {
				patch.Year = &candidate
			}
		}
	}

	if !locks.Series {
		if merged, changed := mergeSeries(item.Series, records); changed {
			patch.Series = merged
		}
	}
	if !locks.Genres {
		if merged, changed := mergeGenres(item.Genres, records); changed {
			patch.Genres = merged
		}
	}

	if !locks.Description && in.Block != "" {
		description := ratings.Render(item.Description, in.Block, ratings.StartMarker, ratings.EndMarker)
		if description != item.Description {
			patch.Description = &description
			result.Description = description
		}
	}
	return result
}

// writeScalar applies the policy to one scalar field.
func (m *Merger) writeScalar(current, candidate string, equal func(a, b string) bool) bool {
	current = strings.TrimSpace(current)
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || (current != "" && equal(current, candidate)) {
		return false
	}
	if current == "" {
		return true
	}
	switch m.scalar {
	case config.ScalarPolicyAlways:
		return true
	case config.ScalarPolicyNever:
		return false
	default:
		return m.isPlaceholder(current)
	}
}

func (m *Merger) isPlaceholder(value string) bool {
	_, ok := m.placeholders[placeholderKey(value)]
	return ok
}

func placeholderKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func sameText(a, b string) bool {
	return textutil.Fold(textutil.CollapseSpace(a)) == textutil.Fold(textutil.CollapseSpace(b))
}

// audibleFirst orders records by family, keeping query order within each.
func audibleFirst(records []sources.Record) []sources.Record {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b sources.Record) int {
		return familyRank(a.Family) - familyRank(b.Family)
	})
	return out
}

func familyRank(f sources.Family) int {
	if f == sources.FamilyAudible {
		return 0
	}
	return 1
}

func firstValue(records []sources.Record, field func(sources.Record) string) string {
	for _, record := range records {
		if value := strings.TrimSpace(field(record)); value != "" {
			return value
		}
	}
	return ""
}

func firstASIN(resolved string, records []sources.Record) string {
	if asin := strings.ToUpper(strings.TrimSpace(resolved)); sources.IsASIN(asin) {
		return asin
	}
	for _, record := range records {
		if record.Family != sources.FamilyAudible {
			continue
		}
		if asin := strings.ToUpper(strings.TrimSpace(record.Identifier)); sources.IsASIN(asin) {
			return asin
		}
	}
	return ""
}

func firstISBN(resolved string, records []sources.Record) string {
	if isbn, ok := sources.NormalizeISBN(resolved); ok {
		return isbn
	}
	for _, record := range records {
		for _, candidate := range record.ISBNCandidates {
			if isbn, ok := sources.NormalizeISBN(candidate); ok {
				return isbn
			}
		}
	}
	return ""
}

func seriesKey(name string) string {
	return strings.Join(textutil.Tokenize(name), " ")
}

// mergeSeries appends unseen series and fills empty sequences. Existing
// entries keep their position and are never removed.
func mergeSeries(existing []catalog.Series, records []sources.Record) ([]catalog.Series, bool) {
	merged := slices.Clone(existing)
	index := make(map[string]int, len(merged))
	for i, s := range merged {
		if key := seriesKey(s.Name); key != "" {
			if _, dup := index[key]; !dup {
				index[key] = i
			}
		}
	}
	changed := false
	for _, record := range records {
		for _, s := range record.Series {
			name := strings.TrimSpace(s.Name)
			key := seriesKey(name)
			if key == "" {
				continue
			}
			sequence := strings.TrimSpace(s.Sequence)
			if i, ok := index[key]; ok {
				if strings.TrimSpace(merged[i].Sequence) == "" && sequence != "" {
					merged[i].Sequence = sequence
					changed = true
				}
				continue
			}
			index[key] = len(merged)
			merged = append(merged, catalog.Series{Name: name, Sequence: sequence})
			changed = true
		}
	}
	return merged, changed
}

// mergeGenres appends genres not already present, compared case-insensitively.
func mergeGenres(existing []string, records []sources.Record) ([]string, bool) {
	merged := slices.Clone(existing)
	seen := make(map[string]struct{}, len(merged))
	for _, g := range merged {
		seen[textutil.Fold(strings.TrimSpace(g))] = struct{}{}
	}
	changed := false
	for _, record := range records {
		for _, g := range record.Genres {
			g = strings.TrimSpace(g)
			key := textutil.Fold(g)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, g)
			changed = true
		}
	}
	return merged, changed
}
