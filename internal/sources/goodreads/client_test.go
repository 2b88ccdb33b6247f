package goodreads

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
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

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
}

func TestFetchByISBNFollowsRedirect(t *testing.T) {
	book := fixture(t, "book.html")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search" && r.URL.Query().Get("q") == "9780756404741":
			http.Redirect(w, r, "/book/show/186074.The_Name_of_the_Wind", http.StatusFound)
		case strings.HasPrefix(r.URL.Path, "/book/show/186074"):
			_, _ = w.Write(book)
		default:
			t.Errorf("unexpected request %s", r.URL.String())
			http.NotFound(w, r)
		}
	})

	record, err := client.Fetch(context.Background(), sources.Query{ISBN: "9780756404741", Title: "ignored"})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if record.Overall == nil || *record.Overall != 4.52 || record.RatingCount == nil || *record.RatingCount != 1012345 {
		t.Fatalf("rating = %v count = %v", record.Overall, record.RatingCount)
	}
	if record.Performance != nil || record.Story != nil {
		t.Fatal("goodreads never reports performance or story")
	}
	if record.Identifier != "186074" || record.Author != "Patrick Rothfuss" || record.Language != "English" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if !reflect.DeepEqual(record.ISBNCandidates, []string{"9780756404741"}) {
		t.Fatalf("isbn candidates = %v", record.ISBNCandidates)
	}
	if !reflect.DeepEqual(record.Genres, []string{"Fantasy", "Fiction"}) || record.Year != "2007" {
		t.Fatalf("genres = %v year = %q", record.Genres, record.Year)
	}
	if record.Family != sources.FamilyGoodreads || record.FetchedAt.IsZero() {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestFetchByASINFollowsFirstRow(t *testing.T) {
	search := fixture(t, "search.html")
	book := fixture(t, "book_fallback.html")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			_, _ = w.Write(search)
		case "/book/show/1215032.The_Wise_Man_s_Fear":
			_, _ = w.Write(book)
		default:
			t.Errorf("unexpected request %s", r.URL.String())
			http.NotFound(w, r)
		}
	})

	record, err := client.Fetch(context.Background(), sources.Query{ASIN: "B002UZMLXM"})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if *record.Overall != 4.12 || *record.RatingCount != 2345 {
		t.Fatalf("rating = %v count = %v", *record.Overall, *record.RatingCount)
	}
	if !reflect.DeepEqual(record.ISBNCandidates, []string{"0306406152"}) {
		t.Fatalf("isbn candidates = %v", record.ISBNCandidates)
	}
}

func TestFetchTextSearchPicksAcceptedRow(t *testing.T) {
	search := fixture(t, "search.html")
	book := fixture(t, "book.html")
	var queries []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search":
			queries = append(queries, r.URL.Query().Get("q"))
			_, _ = w.Write(search)
		case r.URL.Path == "/book/show/186074.The_Name_of_the_Wind":
			_, _ = w.Write(book)
		default:
			t.Errorf("unexpected request %s", r.URL.String())
			http.NotFound(w, r)
		}
	})

	q := sources.Query{Title: "The Name of the Wind (Unabridged)", Author: "Patrick Rothfuss", Authors: []string{"Patrick Rothfuss"}}
	record, err := client.Fetch(context.Background(), q)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if record.Identifier != "186074" {
		t.Fatalf("identifier = %q", record.Identifier)
	}
	if len(queries) != 1 || queries[0] != "The Name of the Wind (Unabridged) Patrick Rothfuss" {
		t.Fatalf("queries = %v", queries)
	}
}

func TestFetchUnratedBookIsNotFound(t *testing.T) {
	unrated := fixture(t, "book_unrated.html")
	empty := fixture(t, "empty_search.html")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search" && r.URL.Query().Get("q") == "9780000000002":
			http.Redirect(w, r, "/book/show/42.Brand_New_Book", http.StatusFound)
		case r.URL.Path == "/search":
			_, _ = w.Write(empty)
		default:
			_, _ = w.Write(unrated)
		}
	})
	_, err := client.Fetch(context.Background(), sources.Query{ISBN: "9780000000002", Title: "Brand New Book"})
	if !errors.Is(err, sources.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchServiceUnavailableIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := client.Fetch(context.Background(), sources.Query{ISBN: "9780756404741"})
	if sources.Outcome(err) != sources.Transient || sources.IsHardRateLimit(err) {
		t.Fatalf("expected soft rate limit, got %v", err)
	}
}

func TestSearchReturnsRows(t *testing.T) {
	search := fixture(t, "search.html")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(search)
	})
	candidates, err := client.Search(context.Background(), sources.Query{Title: "The Name of the Wind"})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	second := candidates[1]
	if second.Identifier != "186074" || second.Author != "Patrick Rothfuss" || second.URL != "/book/show/186074.The_Name_of_the_Wind" {
		t.Fatalf("unexpected candidate: %+v", second)
	}
}

func TestSearchQueries(t *testing.T) {
	got := searchQueries(sources.Query{Title: "Dune (Unabridged)", Author: "Frank Herbert"})
	want := []string{"Dune (Unabridged) Frank Herbert", "Dune Frank Herbert", "Dune (Unabridged)", "Dune"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("searchQueries() = %v, want %v", got, want)
	}
	if got := searchQueries(sources.Query{Title: "Dune"}); !reflect.DeepEqual(got, []string{"Dune"}) {
		t.Fatalf("searchQueries() = %v", got)
	}
}

func TestFetchCandidateLoadsBookPage(t *testing.T) {
	book := fixture(t, "book.html")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/book/show/186074.The_Name_of_the_Wind" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write(book)
	})
	record, err := client.FetchCandidate(context.Background(), sources.Candidate{URL: "/book/show/186074.The_Name_of_the_Wind"})
	if err != nil {
		t.Fatalf("FetchCandidate returned error: %v", err)
	}
	if record.Identifier != "186074" {
		t.Fatalf("identifier = %q", record.Identifier)
	}
	if _, err := client.FetchCandidate(context.Background(), sources.Candidate{}); !errors.Is(err, sources.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty candidate, got %v", err)
	}
}
