package merge

import (
	"reflect"
	"strings"
	"testing"

	"shelfrate/internal/catalog"
	"shelfrate/internal/config"
	"shelfrate/internal/ratings"
	"shelfrate/internal/sources"
)

func audibleRecord() sources.Record {
	return sources.Record{
		Source:      "audible.com",
		Family:      sources.FamilyAudible,
		Identifier:  "B002UZMLXM",
		Overall:     sources.Float(4.6),
		RatingCount: sources.Int(1234),
		Series:      []catalog.Series{{Name: "The Kingkiller Chronicle", Sequence: "1"}},
		Language:    "English",
		Publisher:   "Brilliance Audio",
		Year:        "2009",
		Genres:      []string{"Fantasy", "Epic"},
	}
}

func goodreadsRecord() sources.Record {
	return sources.Record{
		Source:         "goodreads.com",
		Family:         sources.FamilyGoodreads,
		Identifier:     "186074",
		Overall:        sources.Float(4.5),
		RatingCount:    sources.Int(5000),
		Series:         []catalog.Series{{Name: "Kingkiller Chronicle, The", Sequence: ""}, {Name: "Favourites", Sequence: "3"}},
		Language:       "English",
		Year:           "2007",
		Genres:         []string{"fantasy", "Fiction"},
		ISBNCandidates: []string{"9780756404741"},
	}
}

func baseItem() catalog.Item {
	return catalog.Item{
		ID:          "li_1",
		LibraryID:   "lib",
		Title:       "The Name of the Wind",
		Description: "<p>Plot</p>",
	}
}

func TestMergeFillsEmptyItem(t *testing.T) {
	records := []sources.Record{goodreadsRecord(), audibleRecord()}
	block := ratings.BlockFor(records)
	result := New(Policy{}).Merge(Input{Item: baseItem(), Records: records, Block: block})
	p := result.Patch

	if p.ASIN == nil || *p.ASIN != "B002UZMLXM" || p.ISBN == nil || *p.ISBN != "9780756404741" {
		t.Fatalf("identifiers = %v %v", p.ASIN, p.ISBN)
	}
	if p.Language == nil || *p.Language != "English" {
		t.Fatalf("language = %v", p.Language)
	}
	if p.Publisher == nil || *p.Publisher != "Brilliance Audio" {
		t.Fatalf("publisher = %v", p.Publisher)
	}
	if p.Year == nil || *p.Year != "2009" {
		t.Fatalf("year should come from audible first, got %v", p.Year)
	}
	wantSeries := []catalog.Series{{Name: "The Kingkiller Chronicle", Sequence: "1"}, {Name: "Kingkiller Chronicle, The"}, {Name: "Favourites", Sequence: "3"}}
	if !reflect.DeepEqual(p.Series, wantSeries) {
		t.Fatalf("series = %+v", p.Series)
	}
	if !reflect.DeepEqual(p.Genres, []string{"Fantasy", "Epic", "Fiction"}) {
		t.Fatalf("genres = %v", p.Genres)
	}
	if p.Description == nil || *p.Description != block+"<br><p>Plot</p>" || result.Description != *p.Description {
		t.Fatalf("description = %v", p.Description)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	records := []sources.Record{audibleRecord(), goodreadsRecord()}
	block := ratings.BlockFor(records)
	merger := New(Policy{})

	first := merger.Merge(Input{Item: baseItem(), Records: records, Block: block})
	applied := first.Patch.Apply(baseItem())
	second := merger.Merge(Input{Item: applied, Records: records, Block: block})
	if !second.Patch.IsEmpty() {
		t.Fatalf("second merge changed fields %v", second.Patch.Fields())
	}
	if second.Description != applied.Description {
		t.Fatal("description drifted on re-merge")
	}
}

func TestMergeUnionNeverRemoves(t *testing.T) {
	item := baseItem()
	item.Series = []catalog.Series{{Name: "Kingkiller Chronicle", Sequence: ""}, {Name: "My List", Sequence: "9"}}
	item.Genres = []string{"Sci-Fi", "FANTASY"}

	record := audibleRecord()
	record.Series = []catalog.Series{{Name: "kingkiller chronicle", Sequence: "1"}}
	record.Genres = []string{"fantasy"}

	p := New(Policy{}).Merge(Input{Item: item, Records: []sources.Record{record}}).Patch
	wantSeries := []catalog.Series{{Name: "Kingkiller Chronicle", Sequence: "1"}, {Name: "My List", Sequence: "9"}}
	if !reflect.DeepEqual(p.Series, wantSeries) {
		t.Fatalf("series = %+v", p.Series)
	}
	if p.Genres != nil {
		t.Fatalf("genres should be unchanged, got %v", p.Genres)
	}
}

func TestMergeScalarPolicies(t *testing.T) {
	record := audibleRecord()
	tests := []struct {
		name      string
		policy    Policy
		publisher string
		want      *string
	}{
		{"placeholder fills empty", Policy{Scalar: config.ScalarPolicyPlaceholder}, "", strPtr("Brilliance Audio")},
		{"placeholder replaces unknown", Policy{Scalar: config.ScalarPolicyPlaceholder}, "Unknown", strPtr("Brilliance Audio")},
		{"placeholder keeps real value", Policy{Scalar: config.ScalarPolicyPlaceholder}, "Tor", nil},
		{"custom placeholder", Policy{Placeholders: []string{"TBD"}}, "tbd", strPtr("Brilliance Audio")},
		{"never keeps placeholder", Policy{Scalar: config.ScalarPolicyNever}, "unknown", nil},
		{"never fills empty", Policy{Scalar: config.ScalarPolicyNever}, "", strPtr("Brilliance Audio")},
		{"always overwrites", Policy{Scalar: config.ScalarPolicyAlways}, "Tor", strPtr("Brilliance Audio")},
		{"always skips equal", Policy{Scalar: config.ScalarPolicyAlways}, "brilliance  audio", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := baseItem()
			item.Publisher = tt.publisher
			got := New(tt.policy).Merge(Input{Item: item, Records: []sources.Record{record}}).Patch.Publisher
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Fatalf("publisher = %v, want %v", deref(got), deref(tt.want))
			}
		})
	}
}

func TestMergeLanguageComparesByCode(t *testing.T) {
	item := baseItem()
	item.Language = "deu"
	record := audibleRecord()
	record.Language = "Deutsch"

	p := New(Policy{Scalar: config.ScalarPolicyAlways}).Merge(Input{Item: item, Records: []sources.Record{record}}).Patch
	if p.Language != nil {
		t.Fatalf("deu and Deutsch should not flap, got %q", *p.Language)
	}

	item.Language = "n/a"
	p = New(Policy{}).Merge(Input{Item: item, Records: []sources.Record{record}}).Patch
	if p.Language == nil || *p.Language != "German" {
		t.Fatalf("language = %v, want German", deref(p.Language))
	}
}

func TestMergeIdentifiersOnlyWhenEmpty(t *testing.T) {
	item := baseItem()
	item.ASIN = "B000000001"
	item.ISBN = "9780306406157"
	p := New(Policy{}).Merge(Input{Item: item, Records: []sources.Record{audibleRecord(), goodreadsRecord()}, ASIN: "B002UZMLXM"}).Patch
	if p.ASIN != nil || p.ISBN != nil {
		t.Fatalf("existing identifiers replaced: %v %v", deref(p.ASIN), deref(p.ISBN))
	}

	p = New(Policy{}).Merge(Input{Item: baseItem(), ISBN: "0-306-40615-2"}).Patch
	if p.ISBN == nil || *p.ISBN != "0306406152" {
		t.Fatalf("resolved isbn = %v", deref(p.ISBN))
	}
}

func TestMergeHonoursEveryLock(t *testing.T) {
	records := []sources.Record{audibleRecord(), goodreadsRecord()}
	block := ratings.BlockFor(records)
	tests := []struct {
		tag   string
		field string
	}{
		{"lock_isbn", "asin"},
		{"lock_isbn", "isbn"},
		{"lock_language", "language"},
		{"lock_publisher", "publisher"},
		{"lock_year", "year"},
		{"lock_series", "series"},
		{"lock_genres", "genres"},
		{"lock_description", "description"},
	}
	for _, tt := range tests {
		t.Run(tt.tag+"/"+tt.field, func(t *testing.T) {
			item := baseItem()
			item.Tags = []string{" " + strings.ToUpper(tt.tag) + " "}
			p := New(Policy{Scalar: config.ScalarPolicyAlways}).Merge(Input{Item: item, Records: records, Block: block}).Patch
			for _, f := range p.Fields() {
				if f == tt.field {
					t.Fatalf("locked field %s present in patch %v", tt.field, p.Fields())
				}
			}
			if len(p.Fields()) == 0 {
				t.Fatal("other fields should still be written")
			}
		})
	}
}

func TestMergeLockAllProducesNothing(t *testing.T) {
	item := baseItem()
	item.Tags = []string{"lock-all"}
	records := []sources.Record{audibleRecord()}
	result := New(Policy{}).Merge(Input{Item: item, Records: records, Block: ratings.BlockFor(records)})
	if !result.Patch.IsEmpty() || result.Description != item.Description {
		t.Fatalf("lock_all produced a patch: %v", result.Patch.Fields())
	}
}

func TestMergeEmptyBlockLeavesDescription(t *testing.T) {
	p := New(Policy{}).Merge(Input{Item: baseItem()}).Patch
	if !p.IsEmpty() {
		t.Fatalf("patch = %v", p.Fields())
	}
}

func strPtr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
