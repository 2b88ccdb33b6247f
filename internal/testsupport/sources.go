package testsupport

import (
	"context"
	"sync"

	"shelfrate/internal/sources"
)

// FakeSource is a scripted sources.Source. Fetch and Search return the
// configured values and record the queries they received.
type FakeSource struct {
	SourceName   string
	SourceFamily sources.Family
	Lang         string

	Record     *sources.Record
	FetchErr   error
	Candidates []sources.Candidate
	SearchErr  error
	// FetchFunc, when set, replaces Record and FetchErr.
	FetchFunc func(ctx context.Context, q sources.Query) (*sources.Record, error)

	mu       sync.Mutex
	fetches  []sources.Query
	searches []sources.Query
}

var _ sources.Source = (*FakeSource)(nil)

// Name implements sources.Source.
func (f *FakeSource) Name() string { return f.SourceName }

// Family implements sources.Source.
func (f *FakeSource) Family() sources.Family { return f.SourceFamily }

// Language returns the configured catalog language.
func (f *FakeSource) Language() string { return f.Lang }

// Fetch implements sources.Source.
func (f *FakeSource) Fetch(ctx context.Context, q sources.Query) (*sources.Record, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, q)
	fn := f.FetchFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, q)
	}
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	if f.Record == nil {
		return nil, sources.ErrNotFound
	}
	record := *f.Record
	if record.Source == "" {
		record.Source = f.SourceName
	}
	if record.Family == "" {
		record.Family = f.SourceFamily
	}
	return &record, nil
}

// Search implements sources.Source.
func (f *FakeSource) Search(_ context.Context, q sources.Query) ([]sources.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, q)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	out := make([]sources.Candidate, len(f.Candidates))
	copy(out, f.Candidates)
	return out, nil
}

// Fetches returns the queries passed to Fetch.
func (f *FakeSource) Fetches() []sources.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sources.Query(nil), f.fetches...)
}

// Searches returns the queries passed to Search.
func (f *FakeSource) Searches() []sources.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sources.Query(nil), f.searches...)
}

// Calls returns the total number of Fetch and Search calls.
func (f *FakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches) + len(f.searches)
}

// Rated builds a renderable record.
func Rated(source string, family sources.Family, overall float64, count int) *sources.Record {
	return &sources.Record{
		Source:      source,
		Family:      family,
		Overall:     sources.Float(overall),
		RatingCount: sources.Int(count),
	}
}
