package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shelfrate/internal/services"
)

const (
	stageCatalog   = "catalog"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// Client provides access to the audiobookshelf item API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

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

// WithTimeout sets the request timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New creates an audiobookshelf client.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageCatalog, "new client", "base url required", nil)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageCatalog, "new client", "api token required", nil)
	}
	client := &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Ping verifies connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	var payload struct {
		Libraries []json.RawMessage `json:"libraries"`
	}
	return c.do(ctx, http.MethodGet, "/api/libraries", nil, &payload, "ping")
}

// ListItems returns every item in a library.
func (c *Client) ListItems(ctx context.Context, libraryID string) ([]Item, error) {
	libraryID = strings.TrimSpace(libraryID)
	if libraryID == "" {
		return nil, services.Wrap(services.ErrValidation, stageCatalog, "list items", "library id required", nil)
	}
	var payload struct {
		Results []apiItem `json:"results"`
	}
	path := "/api/libraries/" + url.PathEscape(libraryID) + "/items"
	if err := c.do(ctx, http.MethodGet, path, nil, &payload, "list items"); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(payload.Results))
	for _, raw := range payload.Results {
		item := raw.toItem()
		if item.LibraryID == "" {
			item.LibraryID = libraryID
		}
		items = append(items, item)
	}
	return items, nil
}

// GetItem fetches the expanded item snapshot.
func (c *Client) GetItem(ctx context.Context, itemID string) (Item, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return Item{}, services.Wrap(services.ErrValidation, stageCatalog, "get item", "item id required", nil)
	}
	var payload apiItem
	path := "/api/items/" + url.PathEscape(itemID) + "?expanded=1"
	if err := c.do(ctx, http.MethodGet, path, nil, &payload, "get item"); err != nil {
		return Item{}, err
	}
	return payload.toItem(), nil
}

// UpdateItem applies a metadata patch. An empty patch is a no-op.
func (c *Client) UpdateItem(ctx context.Context, itemID string, patch Patch) error {
	if patch.IsEmpty() {
		return nil
	}
	body, err := json.Marshal(struct {
		Metadata Patch `json:"metadata"`
	}{Metadata: patch})
	if err != nil {
		return services.Wrap(services.ErrValidation, stageCatalog, "update item", "encode patch", err)
	}
	path := "/api/items/" + url.PathEscape(itemID) + "/media"
	return c.do(ctx, http.MethodPatch, path, body, nil, "update item")
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, target any, op string) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrValidation, stageCatalog, op, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageCatalog, op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		return services.Wrap(statusMarker(resp.StatusCode), stageCatalog, op, msg, nil)
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return services.Wrap(services.ErrExternalTool, stageCatalog, op, "decode response", err)
	}
	return nil
}

func statusMarker(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return services.ErrConfiguration
	case code == http.StatusNotFound:
		return services.ErrNotFound
	case code == http.StatusTooManyRequests || code >= 500:
		return services.ErrTransient
	default:
		return services.ErrExternalTool
	}
}

type apiItem struct {
	ID        string `json:"id"`
	LibraryID string `json:"libraryId"`
	UpdatedAt int64  `json:"updatedAt"`
	Media     struct {
		Duration float64     `json:"duration"`
		Tags     []string    `json:"tags"`
		Metadata apiMetadata `json:"metadata"`
	} `json:"media"`
}

type apiMetadata struct {
	Title         string      `json:"title"`
	Authors       []apiAuthor `json:"authors"`
	AuthorName    string      `json:"authorName"`
	Series        []Series    `json:"series"`
	Genres        []string    `json:"genres"`
	PublishedYear string      `json:"publishedYear"`
	Publisher     string      `json:"publisher"`
	Description   string      `json:"description"`
	ISBN          string      `json:"isbn"`
	ASIN          string      `json:"asin"`
	Language      string      `json:"language"`
}

type apiAuthor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a apiItem) toItem() Item {
	meta := a.Media.Metadata
	authors := make([]string, 0, len(meta.Authors))
	for _, author := range meta.Authors {
		if name := strings.TrimSpace(author.Name); name != "" {
			authors = append(authors, name)
		}
	}
	if len(authors) == 0 {
		authors = splitAuthors(meta.AuthorName)
	}
	item := Item{
		ID:          a.ID,
		LibraryID:   a.LibraryID,
		ASIN:        strings.TrimSpace(meta.ASIN),
		ISBN:        strings.TrimSpace(meta.ISBN),
		Title:       strings.TrimSpace(meta.Title),
		Authors:     authors,
		Duration:    time.Duration(a.Media.Duration * float64(time.Second)),
		Series:      meta.Series,
		Language:    strings.TrimSpace(meta.Language),
		Publisher:   strings.TrimSpace(meta.Publisher),
		Year:        strings.TrimSpace(meta.PublishedYear),
		Genres:      meta.Genres,
		Description: meta.Description,
		Tags:        a.Media.Tags,
	}
	if a.UpdatedAt > 0 {
		item.UpdatedAt = time.UnixMilli(a.UpdatedAt).UTC()
	}
	return item
}
