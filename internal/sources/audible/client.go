package audible

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"shelfrate/internal/match"
	"shelfrate/internal/sources"
)

// Region describes one Audible marketplace.
type Region struct {
	Code           string
	Host           string
	AcceptLanguage string
	Language       string
}

// Regions lists the supported marketplaces by code.
var Regions = map[string]Region{
	"us": {Code: "us", Host: "www.audible.com", AcceptLanguage: "en-US,en;q=0.9", Language: "en"},
	"de": {Code: "de", Host: "www.audible.de", AcceptLanguage: "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7", Language: "de"},
}

const maxCandidates = 20

var softNotFoundMarkers = []string{
	"looks like this title is no longer available",
	"titel ist leider nicht verfügbar",
	"no results for",
	"keine ergebnisse für",
}

// Client fetches ratings from one Audible marketplace.
type Client struct {
	region     Region
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

// WithBaseURL replaces the marketplace origin, mainly for tests.
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

// New creates a client for the region code ("us" or "de").
func New(regionCode string, opts ...Option) (*Client, error) {
	region, ok := Regions[strings.ToLower(strings.TrimSpace(regionCode))]
	if !ok {
		return nil, fmt.Errorf("unknown audible region %q", regionCode)
	}
	client := &Client{
		region:     region,
		baseURL:    "https://" + region.Host,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Name returns the marketplace domain, e.g. "audible.de".
func (c *Client) Name() string {
	return strings.TrimPrefix(c.region.Host, "www.")
}

// Family implements sources.Source.
func (c *Client) Family() sources.Family { return sources.FamilyAudible }

// Region returns the marketplace settings.
func (c *Client) Region() Region { return c.region }

// Language returns the ISO 639-1 code of the marketplace catalog.
func (c *Client) Language() string { return c.region.Language }

// Fetch looks up the ASIN when present. Without one it searches, ranks the
// candidates, and looks up the best candidate above the acceptance threshold.
func (c *Client) Fetch(ctx context.Context, q sources.Query) (*sources.Record, error) {
	asin := strings.ToUpper(strings.TrimSpace(q.ASIN))
	if asin == "" {
		candidates, err := c.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		scored := match.ScoreAll(q, candidates)
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
		if len(scored) == 0 || scored[0].Score <= match.DefaultThreshold {
			return nil, sources.ErrNotFound
		}
		asin = scored[0].Candidate.Identifier
	}
	return c.lookup(ctx, asin)
}

// FetchCandidate loads the product page of a search hit.
func (c *Client) FetchCandidate(ctx context.Context, cand sources.Candidate) (*sources.Record, error) {
	asin := strings.ToUpper(strings.TrimSpace(cand.Identifier))
	if !sources.IsASIN(asin) {
		return nil, sources.ErrNotFound
	}
	return c.lookup(ctx, asin)
}

func (c *Client) lookup(ctx context.Context, asin string) (*sources.Record, error) {
	page, err := c.get(ctx, "/pd/"+url.PathEscape(asin), url.Values{"ipRedirectOverride": {"true"}})
	switch {
	case errors.Is(err, sources.ErrNotFound):
		return c.searchFallback(ctx, asin)
	case err != nil:
		return nil, err
	}
	if isSoftNotFound(page) {
		return c.searchFallback(ctx, asin)
	}
	record := parseProduct(page, c.Name(), asin)
	record.FetchedAt = c.now().UTC()
	return record, nil
}

// searchFallback reads ratings from the search result row of the ASIN when
// the product page is unavailable.
func (c *Client) searchFallback(ctx context.Context, asin string) (*sources.Record, error) {
	page, err := c.get(ctx, "/search", url.Values{"keywords": {asin}, "ipRedirectOverride": {"true"}})
	if err != nil {
		return nil, err
	}
	record := parseSearchRow(page, c.Name(), asin)
	if record == nil {
		return nil, sources.ErrNotFound
	}
	record.FetchedAt = c.now().UTC()
	return record, nil
}

// Search queries by title and author, retrying with the title alone when
// the first query returns nothing.
func (c *Client) Search(ctx context.Context, q sources.Query) ([]sources.Candidate, error) {
	title := match.CleanTitle(q.Title)
	if title == "" {
		title = strings.TrimSpace(q.Title)
	}
	if title == "" {
		return nil, nil
	}
	params := url.Values{"title": {title}, "ipRedirectOverride": {"true"}}
	if q.Author != "" {
		params.Set("author_author", q.Author)
	}
	page, err := c.get(ctx, "/search", params)
	if err != nil && !errors.Is(err, sources.ErrNotFound) {
		return nil, err
	}
	var candidates []sources.Candidate
	if page != nil {
		candidates = parseSearchResults(page, c.Name())
	}
	if len(candidates) == 0 && q.Author != "" {
		page, err = c.get(ctx, "/search", url.Values{"title": {title}, "ipRedirectOverride": {"true"}})
		if err != nil && !errors.Is(err, sources.ErrNotFound) {
			return nil, err
		}
		if page != nil {
			candidates = parseSearchResults(page, c.Name())
		}
	}
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (*sources.Page, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	header := http.Header{}
	header.Set("Accept-Language", c.region.AcceptLanguage)
	header.Set("Cookie", "audible_site_preference="+c.region.Code)
	return sources.FetchPage(ctx, c.httpClient, c.Name(), target, header)
}

func isSoftNotFound(page *sources.Page) bool {
	if page.URL != nil && strings.Contains(page.URL.Path, "/pderror") {
		return true
	}
	if page.URL != nil && strings.HasPrefix(page.URL.Path, "/search") &&
		strings.Contains(strings.ToLower(page.Title()), "search") {
		return true
	}
	body := strings.ToLower(page.Body)
	for _, marker := range softNotFoundMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}
