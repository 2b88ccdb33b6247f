package audible

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"shelfrate/internal/sources"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

func newTestClient(t *testing.T, region string, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(region, WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client
}

func TestNewRejectsUnknownRegion(t *testing.T) {
	if _, err := New("fr"); err == nil {
		t.Fatal("expected error for unknown region")
	}
	client, err := New(" DE ")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if client.Name() != "audible.de" || client.Family() != sources.FamilyAudible {
		t.Fatalf("unexpected identity %s/%s", client.Name(), client.Family())
	}
}

func TestFetchParsesRatingSummary(t *testing.T) {
	page := fixture(t, "product.html")
	var cookie, lang string
	client := newTestClient(t, "us", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pd/B08G9PRS1K" || r.URL.Query().Get("ipRedirectOverride") != "true" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		cookie = r.Header.Get("Cookie")
		lang = r.Header.Get("Accept-Language")
		_, _ = w.Write(page)
	})

	record, err := client.Fetch(context.Background(), sources.Query{ASIN: "B08G9PRS1K"})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if cookie != "audible_site_preference=us" || lang != Regions["us"].AcceptLanguage {
		t.Fatalf("unexpected headers cookie=%q lang=%q", cookie, lang)
	}
	if record.Overall == nil || *record.Overall != 4.8 {
		t.Fatalf("overall = %v", record.Overall)
	}
	if record.Performance == nil || *record.Performance != 4.9 || record.Story == nil || *record.Story != 4.8 {
		t.Fatalf("performance/story = %v/%v", record.Performance, record.Story)
	}
	if record.RatingCount == nil || *record.RatingCount != 123456 {
		t.Fatalf("count = %v", record.RatingCount)
	}
	if record.Publisher != "Audible Studios" || record.Year != "2021" || record.Language != "english" {
		t.Fatalf("unexpected metadata: %+v", record)
	}
	if len(record.Genres) != 2 || record.Title != "Project Hail Mary" || record.Author != "Andy Weir" {
		t.Fatalf("unexpected metadata: %+v", record)
	}
	if !record.Renderable() || record.FetchedAt.IsZero() || record.Source != "audible.com" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestFetchFallsBackToLDJSON(t *testing.T) {
	page := fixture(t, "product_ld.html")
	var cookie string
	client := newTestClient(t, "de", func(w http.ResponseWriter, r *http.Request) {
		cookie = r.Header.Get("Cookie")
		_, _ = w.Write(page)
	})

	record, err := client.Fetch(context.Background(), sources.Query{ASIN: "3844909907"})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if cookie != "audible_site_preference=de" {
		t.Fatalf("cookie = %q", cookie)
	}
	if record.Overall == nil || *record.Overall != 4.7 || record.RatingCount == nil || *record.RatingCount != 2345 {
		t.Fatalf("rating = %v count = %v", record.Overall, record.RatingCount)
	}
	if record.Performance != nil || record.Story != nil {
		t.Fatal("performance and story must stay nil when absent")
	}
	if len(record.Series) != 1 || record.Series[0].Name != "Die Königsmörder-Chronik" || record.Series[0].Sequence != "1" {
		t.Fatalf("series = %+v", record.Series)
	}
	if record.Publisher != "Der Hörverlag" || record.Year != "2008" || record.Language != "german" {
		t.Fatalf("unexpected metadata: %+v", record)
	}
}

func TestFetchSoftNotFoundUsesSearchRow(t *testing.T) {
	soft := fixture(t, "soft404.html")
	row := fixture(t, "search_row.html")
	client := newTestClient(t, "us", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pd/B00OLD0001":
			_, _ = w.Write(soft)
		case "/search":
			if r.URL.Query().Get("keywords") != "B00OLD0001" {
				t.Errorf("unexpected search %s", r.URL.RawQuery)
			}
			_, _ = w.Write(row)
		default:
			http.NotFound(w, r)
		}
	})

	record, err := client.Fetch(context.Background(), sources.Query{ASIN: "B00OLD0001"})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if *record.Overall != 4.5 || *record.RatingCount != 1234 {
		t.Fatalf("rating = %v count = %v", *record.Overall, *record.RatingCount)
	}
	if record.Publisher != "Tantor Audio" || record.Author != "Jane Doe" {
		t.Fatalf("unexpected metadata: %+v", record)
	}
}

func TestFetchProductTitledSearchIsNotSoftNotFound(t *testing.T) {
	page := strings.Replace(string(fixture(t, "product.html")),
		"<title>Project Hail Mary Audiobook | Andy Weir | Audible.com</title>",
		"<title>Man's Search for Meaning Audiobook | Viktor E. Frankl | Audible.com</title>", 1)
	client := newTestClient(t, "us", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pd/B08G9PRS1K" {
			t.Errorf("unexpected request %s", r.URL.String())
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(page))
	})

	record, err := client.Fetch(context.Background(), sources.Query{ASIN: "B08G9PRS1K"})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if record.Performance == nil || *record.Performance != 4.9 || record.Story == nil || *record.Story != 4.8 {
		t.Fatalf("product page not parsed: performance/story = %v/%v", record.Performance, record.Story)
	}
	if record.Publisher != "Audible Studios" {
		t.Fatalf("unexpected metadata: %+v", record)
	}
}

func TestFetchRedirectToSearchUsesSearchRow(t *testing.T) {
	row := strings.Replace(string(fixture(t, "search_row.html")),
		"<title>Audible.com</title>", "<title>Audible.com Search Results</title>", 1)
	client := newTestClient(t, "us", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pd/B00OLD0001":
			http.Redirect(w, r, "/search?keywords=B00OLD0001", http.StatusFound)
		case "/search":
			_, _ = w.Write([]byte(row))
		default:
			http.NotFound(w, r)
		}
	})

	record, err := client.Fetch(context.Background(), sources.Query{ASIN: "B00OLD0001"})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if *record.Overall != 4.5 || *record.RatingCount != 1234 {
		t.Fatalf("rating = %v count = %v", *record.Overall, *record.RatingCount)
	}
}

func TestFetchMissingEverywhereIsNotFound(t *testing.T) {
	empty := fixture(t, "empty_search.html")
	client := newTestClient(t, "de", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search" {
			_, _ = w.Write(empty)
			return
		}
		http.NotFound(w, r)
	})
	_, err := client.Fetch(context.Background(), sources.Query{ASIN: "B000000000"})
	if !errors.Is(err, sources.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchRateLimitIsTransient(t *testing.T) {
	client := newTestClient(t, "us", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := client.Fetch(context.Background(), sources.Query{ASIN: "B08G9PRS1K"})
	if sources.Outcome(err) != sources.Transient || !sources.IsHardRateLimit(err) {
		t.Fatalf("expected hard rate limit, got %v", err)
	}
}

func TestSearchParsesCandidates(t *testing.T) {
	page := fixture(t, "search.html")
	client := newTestClient(t, "us", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("title") != "Project Hail Mary" || q.Get("author_author") != "Andy Weir" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write(page)
	})

	candidates, err := client.Search(context.Background(), sources.Query{Title: "Project Hail Mary (Unabridged)", Author: "Andy Weir"})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(candidates), candidates)
	}
	first := candidates[0]
	if first.Identifier != "B08G9PRS1K" || first.Title != "Project Hail Mary" || first.Author != "Andy Weir" {
		t.Fatalf("unexpected candidate: %+v", first)
	}
	if first.DurationSeconds != 16*3600+10*60 {
		t.Fatalf("duration = %d", first.DurationSeconds)
	}
	if first.URL == "" || first.Source != "audible.com" {
		t.Fatalf("unexpected candidate: %+v", first)
	}
}

func TestSearchRetriesWithTitleOnly(t *testing.T) {
	page := fixture(t, "search.html")
	empty := fixture(t, "empty_search.html")
	var calls atomic.Int32
	client := newTestClient(t, "us", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("author_author") != "" {
			_, _ = w.Write(empty)
			return
		}
		_, _ = w.Write(page)
	})

	candidates, err := client.Search(context.Background(), sources.Query{Title: "Project Hail Mary", Author: "A. Weir"})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(candidates) != 2 || calls.Load() != 2 {
		t.Fatalf("candidates=%d calls=%d", len(candidates), calls.Load())
	}
}

func TestFetchWithoutASINUsesBestCandidate(t *testing.T) {
	search := fixture(t, "search.html")
	product := fixture(t, "product.html")
	client := newTestClient(t, "us", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			_, _ = w.Write(search)
		case "/pd/B08G9PRS1K":
			_, _ = w.Write(product)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	record, err := client.Fetch(context.Background(), sources.Query{Title: "Project Hail Mary", Author: "Andy Weir", DurationSeconds: 58000})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if record.Identifier != "B08G9PRS1K" {
		t.Fatalf("identifier = %q", record.Identifier)
	}
}
