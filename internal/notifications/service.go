package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shelfrate/internal/config"
)

const userAgent = "shelfrate/0.1.0"

// Event identifies a notification outside the end-of-run summary.
type Event string

const (
	EventRunStarted Event = "run_started"
	EventRunFailed  Event = "run_failed"
	EventUnmatched  Event = "unmatched"
	EventTest       Event = "test"
)

// Payload carries event fields by name.
type Payload map[string]any

// Run statuses reported in a Summary.
const (
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
	StatusFailed    = "failed"
)

// Summary describes one finished run.
type Summary struct {
	RunID     string
	Status    string
	Processed int
	Updated   int
	Recycled  int
	Stale     int
	Failed    int
	Skipped   int
	Unmatched int
	NewASINs  int
	NewISBNs  int
	Duration  time.Duration
	DryRun    bool
	LogFile   string
	// Reason explains an aborted or failed run.
	Reason string
}

// Changed reports whether the run wrote anything or hit a problem.
func (s Summary) Changed() bool {
	return s.Status != StatusCompleted || s.Failed > 0 ||
		s.Updated+s.Recycled+s.NewASINs+s.NewISBNs > 0
}

// Service defines the notification surface used by the run engine.
type Service interface {
	NotifyRun(ctx context.Context, summary Summary) error
	Notify(ctx context.Context, event Event, payload Payload) error
}

// NewService builds the configured notifiers. With neither an ntfy topic nor
// an env file configured a no-op service is returned.
func NewService(cfg *config.Config) Service {
	var services []Service
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		services = append(services, &ntfyService{
			endpoint:     topic,
			client:       &http.Client{Timeout: timeout},
			onlyOnChange: cfg.Notifications.OnlyOnChange,
		})
	}
	if path := strings.TrimSpace(cfg.Notifications.EnvFile); path != "" {
		services = append(services, NewEnvFile(path))
	}
	switch len(services) {
	case 0:
		return Noop()
	case 1:
		return services[0]
	default:
		return Multi(services...)
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	onlyOnChange bool
}

// NewNtfy returns a Service posting to the ntfy topic URL endpoint.
func NewNtfy(endpoint string, client *http.Client) Service {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ntfyService{endpoint: strings.TrimSpace(endpoint), client: client}
}

func (n *ntfyService) NotifyRun(ctx context.Context, s Summary) error {
	if n.onlyOnChange && !s.Changed() {
		return nil
	}
	var title, priority string
	tags := []string{"shelfrate", "run", s.Status}
	switch {
	case s.Status == StatusAborted:
		title = "shelfrate - Run Aborted"
		priority = "high"
	case s.Status == StatusFailed:
		title = "shelfrate - Run Failed"
		priority = "high"
	case s.Failed > 0:
		title = "shelfrate - Run Complete (with errors)"
	default:
		title = "shelfrate - Run Complete"
	}
	if s.DryRun {
		title += " [dry run]"
		tags = append(tags, "dryrun")
	}
	data := payload{
		title:    title,
		message:  runMessage(s),
		tags:     tags,
		priority: priority,
	}
	return n.send(ctx, data)
}

func (n *ntfyService) Notify(ctx context.Context, event Event, p Payload) error {
	if n.onlyOnChange && event == EventRunStarted {
		return nil
	}
	data, ok := eventPayload(event, p)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func runMessage(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Processed %d items in %s\n", s.Processed, formatDuration(s.Duration))
	fmt.Fprintf(&b, "Updated: %d | Recycled: %d | Stale: %d\n", s.Updated, s.Recycled, s.Stale)
	fmt.Fprintf(&b, "ASIN+: %d | ISBN+: %d\n", s.NewASINs, s.NewISBNs)
	fmt.Fprintf(&b, "Unmatched: %d | Failed: %d | Skipped: %d", s.Unmatched, s.Failed, s.Skipped)
	if reason := strings.TrimSpace(s.Reason); reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", reason)
	}
	return b.String()
}

func eventPayload(event Event, p Payload) (payload, bool) {
	switch event {
	case EventRunStarted:
		return payload{
			title:    "shelfrate - Run Started",
			message:  fmt.Sprintf("Started enrichment run over %s libraries", textValue(p, "libraries", "0")),
			tags:     []string{"shelfrate", "run", "started"},
			priority: "low",
		}, true
	case EventRunFailed:
		return payload{
			title:    "shelfrate - Run Failed",
			message:  fmt.Sprintf("❌ Run failed: %s", textValue(p, "error", "unknown error")),
			tags:     []string{"shelfrate", "error", "alert"},
			priority: "high",
		}, true
	case EventUnmatched:
		message := fmt.Sprintf("No confident match for: %s", textValue(p, "title", "unknown title"))
		if author := textValue(p, "author", ""); author != "" {
			message += " by " + author
		}
		if reason := textValue(p, "reason", ""); reason != "" {
			message += "\nReason: " + reason
		}
		return payload{
			title:   "shelfrate - Unmatched Item",
			message: message,
			tags:    []string{"shelfrate", "unmatched", "review"},
		}, true
	case EventTest:
		return payload{
			title:    "shelfrate - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"shelfrate", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func textValue(p Payload, key, fallback string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return fallback
	}
	text := strings.TrimSpace(fmt.Sprint(value))
	if text == "" {
		return fallback
	}
	return text
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil || n.endpoint == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

// Noop returns a Service that discards everything.
func Noop() Service { return noopService{} }

func (noopService) NotifyRun(context.Context, Summary) error     { return nil }
func (noopService) Notify(context.Context, Event, Payload) error { return nil }

type multiService []Service

// Multi fans every call out to services and joins their errors.
func Multi(services ...Service) Service {
	return multiService(services)
}

func (m multiService) NotifyRun(ctx context.Context, s Summary) error {
	var errs []error
	for _, svc := range m {
		if err := svc.NotifyRun(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiService) Notify(ctx context.Context, event Event, p Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Notify(ctx, event, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}
