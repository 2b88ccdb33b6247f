package enrich

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"shelfrate/internal/config"
	"shelfrate/internal/httpx"
	"shelfrate/internal/logging"
	"shelfrate/internal/sources"
	"shelfrate/internal/sources/audible"
	"shelfrate/internal/sources/goodreads"
)

// browserHeaders are sent with every source request.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Referer":                   "https://www.google.com/",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "cross-site",
	"Sec-Fetch-User":            "?1",
}

// NewSourceHTTPClient returns the paced, retrying client shared by all
// sources.
func NewSourceHTTPClient(cfg *config.Config) *http.Client {
	return httpx.NewClient(httpx.Options{
		UserAgents:  cfg.Sources.UserAgents,
		Headers:     browserHeaders,
		MinInterval: time.Duration(cfg.Sources.MinRequestInterval) * time.Millisecond,
		MaxRetries:  cfg.Sources.MaxRetries,
		Timeout:     cfg.SourceTimeout(),
	})
}

// BuildSources creates the configured Audible regions followed by Goodreads.
// A nil client selects NewSourceHTTPClient.
func BuildSources(cfg *config.Config, client *http.Client, logger *slog.Logger) ([]sources.Source, error) {
	if client == nil {
		client = NewSourceHTTPClient(cfg)
	}
	var out []sources.Source
	for _, code := range cfg.Sources.AudibleRegions {
		src, err := audible.New(code, audible.WithHTTPClient(client))
		if err != nil {
			return nil, fmt.Errorf("sources.audible_regions: %w", err)
		}
		out = append(out, src)
	}
	if cfg.Sources.GoodreadsEnabled {
		out = append(out, goodreads.New(goodreads.WithHTTPClient(client)))
	}
	if logger != nil {
		names := make([]string, 0, len(out))
		for _, src := range out {
			names = append(names, src.Name())
		}
		logger.Debug("rating sources configured", logging.Any("sources", names))
	}
	return out, nil
}
