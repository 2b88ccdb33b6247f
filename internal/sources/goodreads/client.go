package goodreads

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"shelfrate/internal/match"
	"shelfrate/internal/sources"
)

const (
	defaultBaseURL = "https://www.goodreads.com"
	sourceName     = "goodreads.com"
	bookPathPrefix = "/book/show/"
	maxCandidates  = 20
)

// Client fetches ratings from Goodreads.
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

var (
	_ sources.Source           = (*Client)(nil)
	_ sources.CandidateFetcher = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL replaces the Goodreads origin, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithClock overrides the timestamp source for fetched records.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Goodreads client.
func New(opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Name implements sources.Source.
func (c *Client) Name() string { return sourceName }

// Family implements sources.Source.
func (c *Client) Family() sources.Family { return sources.FamilyGoodreads }

// Fetch tries the ISBN, then the ASIN, then text queries. A text search
// that redirects to a book page is a direct hit; otherwise the best row
// accepted by match.GoodreadsAccept is followed.
func (c *Client) Fetch(ctx context.Context, q sources.Query) (*sources.Record, error) {
	for _, id := range []string{q.ISBN, q.ASIN} {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		record, err := c.lookupID(ctx, id)
		if err == nil {
			return record, nil
		}
		if sources.Outcome(err) == sources.Transient {
			return nil, err
		}
	}

	for _, query := range searchQueries(q) {
		page, err := c.search(ctx, query)
		if err != nil {
			if sources.Outcome(err) == sources.Transient {
				return nil, err
			}
			continue
		}
		if isBookPage(page) {
			if record, err := c.bookRecord(page); err == nil {
				return record, nil
			}
			continue
		}
		best, bestScore := "", 0.0
		for _, cand := range parseRows(page) {
			score, ok := match.GoodreadsAccept(q, cand)
			if ok && score > bestScore {
				best, bestScore = cand.URL, score
			}
		}
		if best == "" {
			continue
		}
		record, err := c.fetchBook(ctx, best)
		if err == nil {
			return record, nil
		}
		if sources.Outcome(err) == sources.Transient {
			return nil, err
		}
	}
	return nil, sources.ErrNotFound
}

// Search returns the rows of the first text query that yields any.
func (c *Client) Search(ctx context.Context, q sources.Query) ([]sources.Candidate, error) {
	for _, query := range searchQueries(q) {
		page, err := c.search(ctx, query)
		if err != nil {
			if sources.Outcome(err) == sources.Transient {
				return nil, err
			}
			continue
		}
		if isBookPage(page) {
			record, err := c.bookRecord(page)
			if err != nil {
				continue
			}
			return []sources.Candidate{{
				Source:     sourceName,
				Identifier: record.Identifier,
				Title:      record.Title,
				Author:     record.Author,
				URL:        record.URL,
			}}, nil
		}
		if rows := parseRows(page); len(rows) > 0 {
			if len(rows) > maxCandidates {
				rows = rows[:maxCandidates]
			}
			return rows, nil
		}
	}
	return nil, nil
}

// FetchCandidate loads the book page of a search hit.
func (c *Client) FetchCandidate(ctx context.Context, cand sources.Candidate) (*sources.Record, error) {
	if strings.TrimSpace(cand.URL) == "" {
		return nil, sources.ErrNotFound
	}
	return c.fetchBook(ctx, cand.URL)
}

func (c *Client) lookupID(ctx context.Context, id string) (*sources.Record, error) {
	page, err := c.search(ctx, id)
	if err != nil {
		return nil, err
	}
	if isBookPage(page) {
		return c.bookRecord(page)
	}
	rows := parseRows(page)
	if len(rows) == 0 {
		return nil, sources.ErrNotFound
	}
	return c.fetchBook(ctx, rows[0].URL)
}

func (c *Client) search(ctx context.Context, query string) (*sources.Page, error) {
	return sources.FetchPage(ctx, c.httpClient, sourceName, c.baseURL+"/search?"+url.Values{"q": {query}}.Encode(), nil)
}

func (c *Client) fetchBook(ctx context.Context, bookURL string) (*sources.Record, error) {
	target := bookURL
	if strings.HasPrefix(target, "/") {
		target = c.baseURL + target
	}
	page, err := sources.FetchPage(ctx, c.httpClient, sourceName, target, nil)
	if err != nil {
		return nil, err
	}
	return c.bookRecord(page)
}

func (c *Client) bookRecord(page *sources.Page) (*sources.Record, error) {
	record := parseBook(page)
	if record.Overall == nil {
		return nil, sources.ErrNotFound
	}
	record.FetchedAt = c.now().UTC()
	return record, nil
}

func isBookPage(page *sources.Page) bool {
	return page.URL != nil && strings.Contains(page.URL.Path, bookPathPrefix)
}

// searchQueries lists text queries in order: title and author, cleaned title
// and author, title, cleaned title. Duplicates are dropped.
func searchQueries(q sources.Query) []string {
	title := strings.TrimSpace(q.Title)
	if title == "" {
		return nil
	}
	clean := match.CleanTitle(title)
	author := strings.TrimSpace(q.Author)
	var queries []string
	seen := make(map[string]struct{})
	add := func(parts ...string) {
		query := strings.TrimSpace(strings.Join(parts, " "))
		if query == "" {
			return
		}
		if _, dup := seen[query]; dup {
			return
		}
		seen[query] = struct{}{}
		queries = append(queries, query)
	}
	if author != "" {
		add(title, author)
		add(clean, author)
	}
	add(title)
	add(clean)
	return queries
}

func parseRows(page *sources.Page) []sources.Candidate {
	var rows []sources.Candidate
	page.Doc.Find(`tr[itemtype="http://schema.org/Book"]`).Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a.bookTitle").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		ref, err := page.URL.Parse(href)
		if err != nil {
			return
		}
		rows = append(rows, sources.Candidate{
			Source:     sourceName,
			Identifier: bookID(ref.Path),
			Title:      sources.CleanText(link.Text()),
			Author:     sources.CleanText(row.Find("a.authorName").First().Text()),
			URL:        ref.Path,
		})
	})
	return rows
}

// bookID extracts the numeric id from "/book/show/12345-some-slug".
func bookID(path string) string {
	rest, ok := strings.CutPrefix(path, bookPathPrefix)
	if !ok {
		return path
	}
	if i := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' }); i > 0 {
		return rest[:i]
	}
	return rest
}
