package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"shelfrate/internal/catalog"
	"shelfrate/internal/ledger"
	"shelfrate/internal/sources"
	"shelfrate/internal/testsupport"
)

func duneItem() catalog.Item {
	return catalog.Item{
		ID:       "li_1",
		Title:    "Dune",
		Authors:  []string{"Frank Herbert"},
		Duration: 21*time.Hour + 2*time.Minute,
	}
}

func newResolver(t *testing.T, srcs ...sources.Source) *Resolver {
	t.Helper()
	return New(srcs, testsupport.NewLedger(t), Options{})
}

func TestResolveSkipsCompleteAndLockedItems(t *testing.T) {
	src := &testsupport.FakeSource{SourceName: "audible_us", SourceFamily: sources.FamilyAudible}
	r := newResolver(t, src)

	tests := []struct {
		name string
		item catalog.Item
	}{
		{name: "complete", item: catalog.Item{ID: "a", ASIN: "B002V1BPMQ", ISBN: "9780306406157"}},
		{name: "lock_isbn", item: catalog.Item{ID: "b", Tags: []string{"lock_isbn"}}},
		{name: "lock_all", item: catalog.Item{ID: "c", Tags: []string{"Lock_All"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Resolve(context.Background(), tt.item, ledger.Entry{})
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if out.Status != StatusSkipped {
				t.Fatalf("status = %s, want skipped", out.Status)
			}
		})
	}
	if src.Calls() != 0 {
		t.Fatalf("source calls = %d, want 0", src.Calls())
	}
}

func TestResolveExactLookupFillsISBN(t *testing.T) {
	audible := &testsupport.FakeSource{
		SourceName:   "audible_us",
		SourceFamily: sources.FamilyAudible,
		Record:       testsupport.Rated("", "", 4.5, 100),
	}
	goodreadsRecord := testsupport.Rated("", "", 4.2, 900)
	goodreadsRecord.ISBNCandidates = []string{"978-0-306-40615-7"}
	goodreads := &testsupport.FakeSource{
		SourceName:   "goodreads",
		SourceFamily: sources.FamilyGoodreads,
		Record:       goodreadsRecord,
	}
	item := duneItem()
	item.ASIN = "b002v1bpmq"

	out, err := newResolver(t, audible, goodreads).Resolve(context.Background(), item, ledger.Entry{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Status != StatusResolved {
		t.Fatalf("status = %s, want resolved", out.Status)
	}
	if out.ASIN != "B002V1BPMQ" || out.NewASIN {
		t.Fatalf("asin = %q new=%v", out.ASIN, out.NewASIN)
	}
	if out.ISBN != "9780306406157" || !out.NewISBN {
		t.Fatalf("isbn = %q new=%v", out.ISBN, out.NewISBN)
	}
	if len(out.Prefetched) != 2 {
		t.Fatalf("prefetched = %d, want 2", len(out.Prefetched))
	}
	if out.Searched {
		t.Fatal("exact hit should not search")
	}
	if got := goodreads.Fetches(); len(got) != 1 || got[0].Title != "" {
		t.Fatalf("goodreads exact query = %+v", got)
	}
}

func TestResolveSearchAcceptsClearWinner(t *testing.T) {
	audible := &testsupport.FakeSource{
		SourceName:   "audible_us",
		SourceFamily: sources.FamilyAudible,
		Candidates: []sources.Candidate{
			{Identifier: "B002V1BPMQ", Title: "Dune", Author: "Frank Herbert", DurationSeconds: 75720},
			{Identifier: "B00ZZZZZZZ", Title: "Gardening Basics", Author: "Jane Roe"},
		},
		FetchFunc: func(_ context.Context, q sources.Query) (*sources.Record, error) {
			if q.ASIN != "B002V1BPMQ" {
				return nil, sources.ErrNotFound
			}
			rec := testsupport.Rated("audible_us", sources.FamilyAudible, 4.6, 5000)
			rec.Identifier = q.ASIN
			return rec, nil
		},
	}

	out, err := newResolver(t, audible).Resolve(context.Background(), duneItem(), ledger.Entry{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Status != StatusResolved {
		t.Fatalf("status = %s (%s), want resolved", out.Status, out.Reason)
	}
	if out.ASIN != "B002V1BPMQ" || !out.NewASIN {
		t.Fatalf("asin = %q new=%v", out.ASIN, out.NewASIN)
	}
	if !out.Searched {
		t.Fatal("expected a text search")
	}
	if _, ok := out.Prefetched["audible_us"]; !ok {
		t.Fatal("accepted record not prefetched")
	}
}

func TestResolveSameBookOnEveryProvider(t *testing.T) {
	audible := &testsupport.FakeSource{
		SourceName:   "audible_us",
		SourceFamily: sources.FamilyAudible,
		Candidates: []sources.Candidate{
			{Identifier: "B002V1BPMQ", Title: "Dune", Author: "Frank Herbert", DurationSeconds: 75720},
		},
		FetchFunc: func(_ context.Context, q sources.Query) (*sources.Record, error) {
			if q.ASIN != "B002V1BPMQ" {
				return nil, sources.ErrNotFound
			}
			rec := testsupport.Rated("audible_us", sources.FamilyAudible, 4.6, 5000)
			rec.Identifier = q.ASIN
			return rec, nil
		},
	}
	goodreadsRecord := testsupport.Rated("goodreads", sources.FamilyGoodreads, 4.3, 90000)
	goodreadsRecord.Identifier = "44767458"
	goodreadsRecord.ISBNCandidates = []string{"9780306406157"}
	goodreads := &testsupport.FakeSource{
		SourceName:   "goodreads",
		SourceFamily: sources.FamilyGoodreads,
		Candidates: []sources.Candidate{
			{Identifier: "44767458", Title: "Dune", Author: "Frank Herbert"},
		},
		Record: goodreadsRecord,
	}

	out, err := newResolver(t, audible, goodreads).Resolve(context.Background(), duneItem(), ledger.Entry{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Status != StatusResolved {
		t.Fatalf("status = %s (%s), want resolved", out.Status, out.Reason)
	}
	if out.ASIN != "B002V1BPMQ" || !out.NewASIN {
		t.Fatalf("asin = %q new=%v", out.ASIN, out.NewASIN)
	}
	if out.ISBN != "9780306406157" || !out.NewISBN {
		t.Fatalf("isbn = %q new=%v", out.ISBN, out.NewISBN)
	}
	if len(out.Prefetched) != 2 {
		t.Fatalf("prefetched = %d, want 2", len(out.Prefetched))
	}
	if out.Failed() {
		t.Fatal("resolved outcome must not count as a failure")
	}
}

func TestResolveAmbiguousWithinOneProvider(t *testing.T) {
	audible := &testsupport.FakeSource{
		SourceName:   "audible_us",
		SourceFamily: sources.FamilyAudible,
		Candidates: []sources.Candidate{
			{Identifier: "B000000001", Title: "Dune", Author: "Frank Herbert"},
			{Identifier: "B000000002", Title: "Dune", Author: "Frank Herbert"},
		},
	}
	goodreads := &testsupport.FakeSource{
		SourceName:   "goodreads",
		SourceFamily: sources.FamilyGoodreads,
		Candidates: []sources.Candidate{
			{Identifier: "1", Title: "Cooking For One", Author: "Someone Else"},
		},
	}

	out, err := newResolver(t, audible, goodreads).Resolve(context.Background(), duneItem(), ledger.Entry{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Status != StatusAmbiguous {
		t.Fatalf("status = %s, want ambiguous", out.Status)
	}
	if len(out.NearMisses) < 2 || out.NearMisses[0].Candidate.Source != "audible_us" {
		t.Fatalf("near misses = %+v", out.NearMisses)
	}
}

func TestResolveAmbiguousAndNoMatch(t *testing.T) {
	tests := []struct {
		name       string
		candidates []sources.Candidate
		want       Status
		wantErr    error
	}{
		{
			name: "ambiguous",
			candidates: []sources.Candidate{
				{Identifier: "B000000001", Title: "Dune", Author: "Frank Herbert"},
				{Identifier: "B000000002", Title: "Dune", Author: "Frank Herbert"},
			},
			want:    StatusAmbiguous,
			wantErr: ErrAmbiguousMatch,
		},
		{
			name: "no match",
			candidates: []sources.Candidate{
				{Identifier: "B000000003", Title: "Cooking For One", Author: "Someone Else"},
			},
			want:    StatusNoMatch,
			wantErr: ErrNoMatch,
		},
		{name: "empty", want: StatusNoMatch, wantErr: ErrNoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &testsupport.FakeSource{SourceName: "audible_us", SourceFamily: sources.FamilyAudible, Candidates: tt.candidates}
			out, err := newResolver(t, src).Resolve(context.Background(), duneItem(), ledger.Entry{})
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if out.Status != tt.want {
				t.Fatalf("status = %s, want %s", out.Status, tt.want)
			}
			if !errors.Is(out.Err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", out.Err, tt.wantErr)
			}
			if !out.Failed() {
				t.Fatal("outcome should count as a failure")
			}
			if len(tt.candidates) > 0 && len(out.NearMisses) == 0 {
				t.Fatal("expected near misses")
			}
			if out.ASIN != "" {
				t.Fatalf("asin = %q, want empty", out.ASIN)
			}
		})
	}
}

func TestResolveTransientWhenEverySearchThrottled(t *testing.T) {
	throttled := &sources.RateLimitError{Source: "audible_us", Reason: "503"}
	audible := &testsupport.FakeSource{SourceName: "audible_us", SourceFamily: sources.FamilyAudible, SearchErr: throttled}
	goodreads := &testsupport.FakeSource{SourceName: "goodreads", SourceFamily: sources.FamilyGoodreads, SearchErr: throttled}

	out, err := newResolver(t, audible, goodreads).Resolve(context.Background(), duneItem(), ledger.Entry{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Status != StatusTransient {
		t.Fatalf("status = %s, want transient", out.Status)
	}
	if out.Failed() {
		t.Fatal("transient outcome must not count as a failure")
	}
}

func TestResolveHardLimitStopsCalls(t *testing.T) {
	hard := &sources.RateLimitError{Source: "audible_us", Reason: "captcha", Hard: true}
	audible := &testsupport.FakeSource{SourceName: "audible_us", SourceFamily: sources.FamilyAudible, SearchErr: hard}
	goodreads := &testsupport.FakeSource{SourceName: "goodreads", SourceFamily: sources.FamilyGoodreads}

	out, err := newResolver(t, audible, goodreads).Resolve(context.Background(), duneItem(), ledger.Entry{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !out.HardLimit || out.Status != StatusTransient {
		t.Fatalf("outcome = %+v", out)
	}
	if goodreads.Calls() != 0 {
		t.Fatalf("goodreads calls = %d, want 0 after hard limit", goodreads.Calls())
	}
}

func TestResolveCooldown(t *testing.T) {
	src := &testsupport.FakeSource{SourceName: "audible_us", SourceFamily: sources.FamilyAudible}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := New([]sources.Source{src}, testsupport.NewLedger(t), Options{Now: func() time.Time { return now }})

	entry := ledger.Entry{ConsecutiveFailures: 2, LastFailureAt: now.Add(-time.Hour), LastFailureReason: "no_match"}
	out, err := r.Resolve(context.Background(), duneItem(), entry)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Status != StatusCooldown {
		t.Fatalf("status = %s, want cooldown", out.Status)
	}
	if want := entry.LastFailureAt.Add(48 * time.Hour); !out.RetryAt.Equal(want) {
		t.Fatalf("retry at = %v, want %v", out.RetryAt, want)
	}
	if src.Calls() != 0 {
		t.Fatalf("calls = %d, want 0", src.Calls())
	}
}

func TestResolvePausesBetweenCalls(t *testing.T) {
	var slept []time.Duration
	audible := &testsupport.FakeSource{SourceName: "audible_us", SourceFamily: sources.FamilyAudible}
	goodreads := &testsupport.FakeSource{SourceName: "goodreads", SourceFamily: sources.FamilyGoodreads}
	r := New([]sources.Source{audible, goodreads}, nil, Options{
		Pause: 2 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})

	out, err := r.Resolve(context.Background(), duneItem(), ledger.Entry{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Calls != 2 {
		t.Fatalf("calls = %d, want 2", out.Calls)
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Fatalf("slept = %v, want one 2s pause", slept)
	}
}

func TestResolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &testsupport.FakeSource{SourceName: "audible_us", SourceFamily: sources.FamilyAudible}
	other := &testsupport.FakeSource{SourceName: "goodreads", SourceFamily: sources.FamilyGoodreads}
	r := New([]sources.Source{src, other}, nil, Options{Pause: time.Second})

	if _, err := r.Resolve(ctx, duneItem(), ledger.Entry{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
