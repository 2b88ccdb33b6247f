package httpx

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 20 * time.Second
	defaultMaxRetries  = 2
	defaultBackoff     = 750 * time.Millisecond
	defaultMinInterval = 1500 * time.Millisecond
)

// DefaultUserAgents is the built-in desktop browser pool.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:129.0) Gecko/20100101 Firefox/129.0",
}

// Options configures NewClient. Zero values select defaults; a negative
// MinInterval disables pacing and a negative MaxRetries disables retries.
type Options struct {
	UserAgents  []string
	Headers     map[string]string
	Cookies     []*http.Cookie
	MinInterval time.Duration
	MaxRetries  int
	Backoff     time.Duration
	Timeout     time.Duration
	Base        http.RoundTripper
}

// Transport applies the pacing and header policy around a base RoundTripper.
type Transport struct {
	Base       http.RoundTripper
	MaxRetries int
	Backoff    time.Duration

	headers  map[string]string
	cookies  []*http.Cookie
	ua       *uaPool
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient constructs an http.Client around a Transport built from opts.
func NewClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Transport: NewTransport(opts),
		Timeout:   timeout,
	}
}

// NewTransport returns a Transport built from opts.
func NewTransport(opts Options) *Transport {
	base := opts.Base
	if base == nil {
		base = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			MaxIdleConnsPerHost:   2,
		}
	}
	retries := opts.MaxRetries
	switch {
	case retries < 0:
		retries = 0
	case retries == 0:
		retries = defaultMaxRetries
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	interval := opts.MinInterval
	if interval == 0 {
		interval = defaultMinInterval
	}
	agents := opts.UserAgents
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	return &Transport{
		Base:       base,
		MaxRetries: retries,
		Backoff:    backoff,
		headers:    headers,
		cookies:    opts.Cookies,
		ua:         newUAPool(agents),
		interval:   interval,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// Only replayable requests are retried.
	retries := t.MaxRetries
	if (req.Method != http.MethodGet && req.Method != http.MethodHead) || req.Body != nil && req.Body != http.NoBody {
		retries = 0
	}

	ctx := req.Context()
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, t.backoffFor(attempt)); err != nil {
				return nil, err
			}
		}
		if err := t.wait(ctx, req.URL.Host); err != nil {
			return nil, err
		}

		resp, err := t.Base.RoundTrip(t.prepare(req))
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}
		if attempt < retries && retryableStatus(resp.StatusCode) {
			drain(resp)
			lastErr = &statusError{code: resp.StatusCode}
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func (t *Transport) prepare(req *http.Request) *http.Request {
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", t.ua.random())
	}
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	for _, c := range t.cookies {
		if _, err := r.Cookie(c.Name); errors.Is(err, http.ErrNoCookie) {
			r.AddCookie(c)
		}
	}
	return r
}

func (t *Transport) wait(ctx context.Context, host string) error {
	if t.interval < 0 {
		return nil
	}
	return t.limiter(host).Wait(ctx)
}

func (t *Transport) limiter(host string) *rate.Limiter {
	host = strings.ToLower(host)
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters[host] = l
	}
	return l
}

func (t *Transport) backoffFor(attempt int) time.Duration {
	base := t.Backoff * time.Duration(1<<uint(attempt-1))
	return base + rand.N(base/2+1)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "upstream returned " + http.StatusText(e.code)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type uaPool struct {
	mu  sync.Mutex
	uas []string
}

func newUAPool(agents []string) *uaPool {
	cleaned := make([]string, 0, len(agents))
	for _, a := range agents {
		if a = strings.TrimSpace(a); a != "" {
			cleaned = append(cleaned, a)
		}
	}
	if len(cleaned) == 0 {
		cleaned = DefaultUserAgents
	}
	return &uaPool{uas: cleaned}
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[rand.IntN(len(p.uas))]
}
