package ratings

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"shelfrate/internal/catalog"
	"shelfrate/internal/language"
	"shelfrate/internal/logging"
	"shelfrate/internal/sources"
)

// Status summarizes what the rendered block is built from.
type Status int

const (
	// StatusEmpty means nothing fresh or recycled is renderable.
	StatusEmpty Status = iota
	// StatusUpdated means at least one family has fresh data.
	StatusUpdated
	// StatusStale means only recycled ledger data is rendered.
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusUpdated:
		return "updated"
	case StatusStale:
		return "stale"
	default:
		return "empty"
	}
}

// families is the fixed rendering order.
var families = []sources.Family{sources.FamilyAudible, sources.FamilyGoodreads}

// Result is the outcome of one aggregation.
type Result struct {
	Status Status
	// Records holds every fresh record in query order, renderable or not.
	Records []sources.Record
	// Snapshot is the merged last-known-good aggregate to store back.
	Snapshot []sources.Record
	Block    string
	// Recycled lists families rendered from the previous snapshot.
	Recycled []sources.Family
	// Outcomes maps source name to the outcome of its call.
	Outcomes map[string]sources.Status
	// Errors keeps the non-not-found error of each failed source.
	Errors map[string]error
	// Transient is set when every source was transient and nothing was found.
	Transient bool
	// HardLimit is set when any source answered with a hard rate limit.
	HardLimit bool
	// Calls counts network fetches made.
	Calls int
}

// Options configures an Aggregator.
type Options struct {
	PreferItemLanguage bool
	// Timeout bounds each source call. Zero disables the per-call bound.
	Timeout time.Duration
	// Pause is slept between consecutive network calls.
	Pause  time.Duration
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Aggregator fetches one record per source sequentially.
type Aggregator struct {
	sources []sources.Source
	opts    Options
	logger  *slog.Logger
}

// regional is implemented by sources bound to a catalog language.
type regional interface {
	Language() string
}

// NewAggregator returns an Aggregator over srcs in their configured order.
func NewAggregator(srcs []sources.Source, opts Options) *Aggregator {
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Aggregator{
		sources: srcs,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "ratings"),
	}
}

// Sources returns the configured sources.
func (a *Aggregator) Sources() []sources.Source { return a.sources }

// Order returns the query order for item. Audible regions keep their
// configured order except that a region matching the item language moves
// to the front; other families follow.
func (a *Aggregator) Order(item catalog.Item) []sources.Source {
	var preferred, audible, rest []sources.Source
	for _, src := range a.sources {
		if src.Family() != sources.FamilyAudible {
			rest = append(rest, src)
			continue
		}
		if a.opts.PreferItemLanguage && item.Language != "" {
			if r, ok := src.(regional); ok && language.Known(item.Language) && language.Equal(r.Language(), item.Language) {
				preferred = append(preferred, src)
				continue
			}
		}
		audible = append(audible, src)
	}
	order := make([]sources.Source, 0, len(a.sources))
	order = append(order, preferred...)
	order = append(order, audible...)
	return append(order, rest...)
}

// Known carries what earlier calls for the same item already learned.
type Known struct {
	// Records are found records keyed by source name. They replace a call.
	Records map[string]*sources.Record
	// Missed maps source name to the query it answered NotFound for.
	Missed map[string]sources.Query
}

// Collect queries every source for item. Sources covered by known are not
// called again. previous is the ledger snapshot used for per-family
// recycling. The only error returned is context cancellation.
func (a *Aggregator) Collect(ctx context.Context, item catalog.Item, known Known, previous []sources.Record) (Result, error) {
	logger := logging.WithContext(ctx, a.logger)
	query := sources.QueryFor(item)
	result := Result{
		Outcomes: make(map[string]sources.Status),
		Errors:   make(map[string]error),
	}

	transient, networked := 0, 0
	limited := make(map[sources.Family]bool)
	for _, src := range a.Order(item) {
		name := src.Name()
		if record, ok := known.Records[name]; ok && record != nil {
			result.Records = append(result.Records, *record)
			result.Outcomes[name] = sources.Found
			continue
		}
		if prior, ok := known.Missed[name]; ok && sameLookup(src.Family(), prior, query) {
			result.Outcomes[name] = sources.NotFound
			networked++
			continue
		}
		if limited[src.Family()] {
			// Regions of a family share one upstream; skip the rest after a hard limit.
			result.Outcomes[name] = sources.Transient
			transient++
			networked++
			continue
		}
		if result.Calls > 0 && a.opts.Pause > 0 {
			if err := a.opts.Sleep(ctx, a.opts.Pause); err != nil {
				return result, err
			}
		}
		networked++
		result.Calls++

		record, err := a.fetch(ctx, src, query)
		if err != nil && ctx.Err() != nil {
			return result, ctx.Err()
		}
		status := sources.Outcome(err)
		result.Outcomes[name] = status
		switch status {
		case sources.Found:
			result.Records = append(result.Records, *record)
		case sources.Transient:
			transient++
			result.Errors[name] = err
			if sources.IsHardRateLimit(err) {
				result.HardLimit = true
				limited[src.Family()] = true
			}
			logging.WarnWithContext(logger, "rating source unavailable", "source_rate_limited",
				logging.String(logging.FieldSource, name),
				logging.Error(err),
				logging.Bool("hard_limit", sources.IsHardRateLimit(err)),
				logging.String(logging.FieldErrorHint, "reduce request rate or wait before the next run"),
				logging.String(logging.FieldImpact, "previous ratings are reused for this source"))
		default:
			if err != nil && !errors.Is(err, sources.ErrNotFound) {
				result.Errors[name] = err
			}
			logger.Debug("rating source has no record",
				logging.String(logging.FieldSource, name),
				logging.Error(err))
		}
	}
	return a.finish(result, previous, transient, networked), nil
}

// sameLookup reports whether a NotFound answer to prior also answers q.
// Audible product lookups depend on the ASIN alone.
func sameLookup(family sources.Family, prior, q sources.Query) bool {
	if family == sources.FamilyAudible && prior.ASIN != "" {
		return strings.EqualFold(prior.ASIN, q.ASIN)
	}
	return strings.EqualFold(prior.ASIN, q.ASIN) && prior.ISBN == q.ISBN &&
		prior.Title == q.Title && prior.Author == q.Author
}

// Throttled reports whether any source call was transient.
func (r Result) Throttled() bool {
	for _, status := range r.Outcomes {
		if status == sources.Transient {
			return true
		}
	}
	return false
}

func (a *Aggregator) fetch(ctx context.Context, src sources.Source, q sources.Query) (*sources.Record, error) {
	callCtx := ctx
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}
	record, err := src.Fetch(callCtx, q)
	if err == nil && record == nil {
		return nil, sources.ErrNotFound
	}
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, &sources.RateLimitError{Source: src.Name(), Reason: "timeout"}
	}
	return record, err
}

func (a *Aggregator) finish(result Result, previous []sources.Record, transient, calls int) Result {
	result.Transient = calls > 0 && transient == calls && len(result.Records) == 0

	var fresh, recycled bool
	var picks [2]*sources.Record
	for i, family := range families {
		if pick := Pick(result.Records, family); pick != nil {
			picks[i] = pick
			fresh = true
			result.Snapshot = append(result.Snapshot, familyRecords(result.Records, family)...)
			continue
		}
		if pick := Pick(previous, family); pick != nil {
			picks[i] = pick
			recycled = true
			result.Recycled = append(result.Recycled, family)
			result.Snapshot = append(result.Snapshot, familyRecords(previous, family)...)
		}
	}
	result.Block = Block(picks[0], picks[1])
	switch {
	case fresh:
		result.Status = StatusUpdated
	case recycled:
		result.Status = StatusStale
	default:
		result.Status = StatusEmpty
	}
	return result
}

func familyRecords(records []sources.Record, family sources.Family) []sources.Record {
	var out []sources.Record
	for _, record := range records {
		if record.Family == family && record.Renderable() {
			out = append(out, record)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
