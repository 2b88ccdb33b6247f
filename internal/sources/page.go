package sources

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxPageBytes = 8 << 20

// Page is a fetched and parsed HTML document.
type Page struct {
	Doc    *goquery.Document
	Body   string
	URL    *url.URL
	Status int
}

// Title returns the trimmed document title.
func (p *Page) Title() string {
	if p == nil || p.Doc == nil {
		return ""
	}
	return strings.TrimSpace(p.Doc.Find("title").First().Text())
}

// FetchPage performs a GET and classifies the response. 404 maps to
// ErrNotFound, 429/403/503 and captcha pages to a RateLimitError.
func FetchPage(ctx context.Context, client *http.Client, source, rawURL string, header http.Header) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, requestError(ctx, source, err)
	}
	defer resp.Body.Close()

	if err := Classify(source, resp); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, requestError(ctx, source, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	page := &Page{Doc: doc, Body: string(raw), URL: resp.Request.URL, Status: resp.StatusCode}
	if strings.Contains(strings.ToLower(page.Title()), "captcha") {
		return nil, &RateLimitError{Source: source, Reason: "captcha"}
	}
	return page, nil
}

// Classify maps an HTTP status to the source error taxonomy.
func Classify(source string, resp *http.Response) error {
	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests:
		return &RateLimitError{Source: source, Reason: "HTTP 429", Hard: true}
	case code == http.StatusServiceUnavailable || code == http.StatusForbidden:
		return &RateLimitError{Source: source, Reason: "HTTP " + strconv.Itoa(code)}
	case code == http.StatusNotFound:
		return ErrNotFound
	case code < 200 || code >= 300:
		u := ""
		if resp.Request != nil && resp.Request.URL != nil {
			u = resp.Request.URL.String()
		}
		return &HTTPStatusError{URL: u, StatusCode: code}
	default:
		return nil
	}
}
