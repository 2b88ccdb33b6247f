package sources

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"shelfrate/internal/services"
)

const stageSources = "sources"

var (
	// ErrNotFound reports that the source has no record for the query.
	ErrNotFound = services.Wrap(services.ErrNotFound, stageSources, "", "record not found", nil)
	// ErrRateLimited reports throttling, a captcha, or a timeout.
	ErrRateLimited = services.Wrap(services.ErrTransient, stageSources, "", "rate limited", nil)
)

// RateLimitError carries the reason a source refused service. Hard limits
// (HTTP 429) abort the whole run.
type RateLimitError struct {
	Source string
	Reason string
	Hard   bool
}

func (e *RateLimitError) Error() string {
	var b strings.Builder
	b.WriteString("rate limited")
	if e.Source != "" {
		b.WriteString(" by ")
		b.WriteString(e.Source)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// HTTPStatusError reports an unexpected non-2xx response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// IsHardRateLimit reports whether err is a rate limit that should stop the run.
func IsHardRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl) && rl.Hard
}

// Status is the tri-state outcome of a source call.
type Status int

const (
	Found Status = iota
	NotFound
	Transient
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

// Outcome maps a source error to its Status. Parse failures and unexpected
// statuses count as NotFound; only throttling and timeouts are Transient.
func Outcome(err error) Status {
	switch {
	case err == nil:
		return Found
	case services.IsTransient(err):
		return Transient
	default:
		return NotFound
	}
}

// requestError converts a transport failure into the source taxonomy.
func requestError(ctx context.Context, source string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &RateLimitError{Source: source, Reason: "timeout"}
	}
	return services.Wrap(services.ErrTransient, stageSources, source, "request failed", err)
}
