package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"shelfrate/internal/catalog"
	"shelfrate/internal/ledger"
	"shelfrate/internal/logging"
	"shelfrate/internal/match"
	"shelfrate/internal/services"
	"shelfrate/internal/sources"
)

const stageResolver = "resolver"

const maxNearMisses = 5

var (
	// ErrAmbiguousMatch reports several candidates above the threshold
	// without a clear winner.
	ErrAmbiguousMatch = services.Wrap(services.ErrNotFound, stageResolver, "", "ambiguous match", nil)
	// ErrNoMatch reports that no source had an acceptable record.
	ErrNoMatch = services.Wrap(services.ErrNotFound, stageResolver, "", "no match", nil)
)

// Status is the result class of one resolution.
type Status int

const (
	StatusSkipped Status = iota
	StatusResolved
	StatusCooldown
	StatusNoMatch
	StatusAmbiguous
	StatusTransient
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusResolved:
		return "resolved"
	case StatusCooldown:
		return "cooldown"
	case StatusNoMatch:
		return "no_match"
	case StatusAmbiguous:
		return "ambiguous"
	case StatusTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Outcome describes what resolution found for one item.
type Outcome struct {
	Status Status
	// ASIN and ISBN are the item identifiers after resolution.
	ASIN    string
	ISBN    string
	NewASIN bool
	NewISBN bool
	// Prefetched holds records fetched along the way, keyed by source name.
	Prefetched map[string]*sources.Record
	// Missed maps source name to the exact query it answered NotFound for.
	Missed     map[string]sources.Query
	NearMisses []match.Scored
	// Searched is set when a text search ran.
	Searched  bool
	HardLimit bool
	RetryAt   time.Time
	Reason    string
	Err       error
	Calls     int
}

// Failed reports whether the outcome should be recorded as a ledger failure.
func (o Outcome) Failed() bool {
	return o.Status == StatusNoMatch || o.Status == StatusAmbiguous
}

// Options configures a Resolver.
type Options struct {
	Threshold float64
	Margin    float64
	// Timeout bounds each source call. Zero disables the per-call bound.
	Timeout time.Duration
	// Pause is slept between consecutive network calls.
	Pause  time.Duration
	Sleep  func(ctx context.Context, d time.Duration) error
	Now    func() time.Time
	Logger *slog.Logger
}

// Resolver fills missing identifiers from the configured sources.
type Resolver struct {
	sources []sources.Source
	ledger  *ledger.Ledger
	opts    Options
	logger  *slog.Logger
}

// New returns a Resolver querying srcs in order. l supplies the retry
// cooldown; it may be nil to disable cooldowns.
func New(srcs []sources.Source, l *ledger.Ledger, opts Options) *Resolver {
	if opts.Threshold <= 0 {
		opts.Threshold = match.DefaultThreshold
	}
	if opts.Margin < 0 {
		opts.Margin = match.DefaultMargin
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{
		sources: srcs,
		ledger:  l,
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "resolver"),
	}
}

// NeedsResolution reports whether item lacks an identifier it is allowed to
// receive.
func NeedsResolution(item catalog.Item) bool {
	locks := item.Locks()
	if locks.All || locks.ISBN {
		return false
	}
	return strings.TrimSpace(item.ASIN) == "" || strings.TrimSpace(item.ISBN) == ""
}

// Resolve runs identifier resolution for item. entry is the item's ledger
// history, zero when it has none. The only error returned is context
// cancellation; match failures are reported through Outcome.
func (r *Resolver) Resolve(ctx context.Context, item catalog.Item, entry ledger.Entry) (Outcome, error) {
	logger := logging.WithContext(ctx, r.logger)
	out := Outcome{
		Status:     StatusSkipped,
		ASIN:       strings.ToUpper(strings.TrimSpace(item.ASIN)),
		ISBN:       strings.TrimSpace(item.ISBN),
		Prefetched: make(map[string]*sources.Record),
		Missed:     make(map[string]sources.Query),
	}
	if !NeedsResolution(item) {
		return out, nil
	}
	if r.ledger != nil {
		if until, waiting := r.ledger.Cooldown(entry, r.opts.Now()); waiting {
			out.Status = StatusCooldown
			out.RetryAt = until
			logger.Debug("identifier resolution cooling down",
				logging.Args(append(logging.DecisionAttrs("identifier_resolution", "cooldown", entry.LastFailureReason),
					logging.Time("retry_at", until),
					logging.Int("consecutive_failures", entry.ConsecutiveFailures))...)...)
			return out, nil
		}
	}

	run := &attempt{r: r, out: &out, query: sources.QueryFor(item)}

	if err := run.exact(ctx); err != nil {
		return out, err
	}
	if len(out.Prefetched) > 0 {
		out.Status = StatusResolved
		r.logDecision(logger, item, out, "exact_lookup")
		return out, nil
	}
	if out.HardLimit {
		out.Status = StatusTransient
		return out, nil
	}

	decisions, err := run.search(ctx)
	if err != nil {
		return out, err
	}
	if out.HardLimit || (run.calls > 0 && run.transient == run.calls) {
		out.Status = StatusTransient
		out.Reason = "rate_limited"
	} else if err := run.settle(ctx, decisions); err != nil {
		return out, err
	}
	out.Calls = run.calls
	r.logDecision(logger, item, out, "text_search")
	return out, nil
}

func (r *Resolver) logDecision(logger *slog.Logger, item catalog.Item, out Outcome, method string) {
	reason := out.Reason
	if reason == "" {
		reason = method
	}
	attrs := append(logging.DecisionAttrs("identifier_resolution", out.Status.String(), reason),
		logging.String("title", item.Title),
		logging.String("asin", out.ASIN),
		logging.String("isbn", out.ISBN),
		logging.Bool("new_asin", out.NewASIN),
		logging.Bool("new_isbn", out.NewISBN),
		logging.Int("near_misses", len(out.NearMisses)),
	)
	if len(out.NearMisses) > 0 {
		attrs = append(attrs, logging.Float64("best_score", out.NearMisses[0].Score))
	}
	logger.Info("identifier resolution decision", logging.Args(attrs...)...)
}

// attempt tracks call accounting for one Resolve.
type attempt struct {
	r         *Resolver
	out       *Outcome
	query     sources.Query
	calls     int
	transient int
}

// exact confirms existing identifiers. Audible needs an ASIN; Goodreads
// accepts either identifier.
func (a *attempt) exact(ctx context.Context) error {
	for _, src := range a.r.sources {
		if a.out.HardLimit {
			return nil
		}
		q := a.query
		switch src.Family() {
		case sources.FamilyAudible:
			if a.out.ASIN == "" {
				continue
			}
		case sources.FamilyGoodreads:
			if a.out.ASIN == "" && a.out.ISBN == "" {
				continue
			}
			// The text fallback belongs to the search phase.
			q.Title = ""
		}
		record, err := a.call(ctx, src, func(callCtx context.Context) (*sources.Record, error) {
			return src.Fetch(callCtx, q)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if sources.Outcome(err) == sources.NotFound {
				a.out.Missed[src.Name()] = q
			}
			continue
		}
		a.keep(src, record)
	}
	a.out.Calls = a.calls
	return nil
}

// search collects candidates from every source and decides once per
// provider family, in source order. Each family names the same book under
// its own identifiers, so they never compete for the margin.
func (a *attempt) search(ctx context.Context) ([]match.Decision, error) {
	a.out.Searched = true
	var families []sources.Family
	candidates := make(map[sources.Family][]sources.Candidate)
	for _, src := range a.r.sources {
		if a.out.HardLimit {
			break
		}
		if err := a.pause(ctx); err != nil {
			return nil, err
		}
		callCtx, cancel := a.callContext(ctx)
		found, err := src.Search(callCtx, a.query)
		cancel()
		a.calls++
		if _, seen := candidates[src.Family()]; !seen {
			families = append(families, src.Family())
			candidates[src.Family()] = nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.note(src, err)
			continue
		}
		for _, c := range found {
			if c.Source == "" {
				c.Source = src.Name()
			}
			candidates[src.Family()] = append(candidates[src.Family()], c)
		}
	}
	decisions := make([]match.Decision, 0, len(families))
	for _, family := range families {
		scored := match.ScoreAll(a.query, candidates[family])
		decisions = append(decisions, match.Decide(scored, a.r.opts.Threshold, a.r.opts.Margin))
	}
	return decisions, nil
}

// settle accepts every family winner and classifies the outcome. Any
// accepted record resolves the item; otherwise an ambiguous family wins
// over a plain miss.
func (a *attempt) settle(ctx context.Context, decisions []match.Decision) error {
	var (
		accepted  []match.Scored
		misses    []match.Scored
		ambiguous bool
		lost      string
		throttled bool
	)
	for _, d := range decisions {
		switch d.Verdict {
		case match.Accepted:
			if a.out.HardLimit {
				continue
			}
			ok, reason, err := a.accept(ctx, *d.Best)
			if err != nil {
				return err
			}
			switch {
			case ok:
				accepted = append(accepted, *d.Best)
			case reason == "rate_limited":
				throttled = true
			default:
				lost = reason
			}
		case match.Ambiguous:
			ambiguous = true
			misses = append(misses, d.NearMisses...)
		default:
			misses = append(misses, d.NearMisses...)
		}
	}
	switch {
	case len(accepted) > 0:
		a.out.Status = StatusResolved
		a.out.Reason = "accepted"
		a.out.NearMisses = accepted
	case throttled:
		a.out.Status = StatusTransient
		a.out.Reason = "rate_limited"
	case ambiguous:
		a.out.Status = StatusAmbiguous
		a.out.Reason = "ambiguous_match"
		a.out.Err = ErrAmbiguousMatch
		a.out.NearMisses = topMisses(misses)
	default:
		a.out.Status = StatusNoMatch
		a.out.Reason = "no_match"
		if lost != "" {
			a.out.Reason = lost
		}
		a.out.Err = ErrNoMatch
		a.out.NearMisses = topMisses(misses)
	}
	return nil
}

// accept loads the winning candidate and adopts its identifiers. It reports
// whether the record was kept and, when not, why.
func (a *attempt) accept(ctx context.Context, best match.Scored) (bool, string, error) {
	src := a.r.sourceNamed(best.Candidate.Source)
	if src == nil {
		return false, "unknown_source", nil
	}
	record, err := a.call(ctx, src, func(callCtx context.Context) (*sources.Record, error) {
		if fetcher, ok := src.(sources.CandidateFetcher); ok {
			return fetcher.FetchCandidate(callCtx, best.Candidate)
		}
		q := a.query
		if src.Family() == sources.FamilyAudible {
			q.ASIN = best.Candidate.Identifier
		}
		return src.Fetch(callCtx, q)
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, "", ctx.Err()
		}
		if sources.Outcome(err) == sources.Transient {
			return false, "rate_limited", nil
		}
		return false, "accepted_candidate_unavailable", nil
	}
	a.keep(src, record)
	if src.Family() == sources.FamilyAudible && a.out.ASIN == "" {
		if asin := strings.ToUpper(strings.TrimSpace(best.Candidate.Identifier)); sources.IsASIN(asin) {
			a.out.ASIN = asin
			a.out.NewASIN = true
		}
	}
	return true, "", nil
}

func topMisses(misses []match.Scored) []match.Scored {
	sort.SliceStable(misses, func(i, j int) bool { return misses[i].Score > misses[j].Score })
	if len(misses) > maxNearMisses {
		misses = misses[:maxNearMisses]
	}
	return misses
}

// keep stores a found record and adopts identifiers the item lacks.
func (a *attempt) keep(src sources.Source, record *sources.Record) {
	a.out.Prefetched[src.Name()] = record
	switch src.Family() {
	case sources.FamilyAudible:
		if a.out.ASIN == "" {
			if asin := strings.ToUpper(strings.TrimSpace(record.Identifier)); sources.IsASIN(asin) {
				a.out.ASIN = asin
				a.out.NewASIN = true
			}
		}
	case sources.FamilyGoodreads:
		if a.out.ISBN == "" && len(record.ISBNCandidates) > 0 {
			if isbn, ok := sources.NormalizeISBN(record.ISBNCandidates[0]); ok {
				a.out.ISBN = isbn
				a.out.NewISBN = true
			}
		}
	}
}

func (a *attempt) call(ctx context.Context, src sources.Source, fn func(context.Context) (*sources.Record, error)) (*sources.Record, error) {
	if err := a.pause(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := a.callContext(ctx)
	defer cancel()
	a.calls++
	record, err := fn(callCtx)
	if err == nil && record == nil {
		err = sources.ErrNotFound
	}
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		err = &sources.RateLimitError{Source: src.Name(), Reason: "timeout"}
	}
	if err != nil {
		a.note(src, err)
		return nil, err
	}
	return record, nil
}

func (a *attempt) note(src sources.Source, err error) {
	if sources.Outcome(err) != sources.Transient {
		return
	}
	a.transient++
	if sources.IsHardRateLimit(err) {
		a.out.HardLimit = true
	}
	logging.WarnWithContext(a.r.logger, "source unavailable during resolution", "source_rate_limited",
		logging.String(logging.FieldSource, src.Name()),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "the item is retried on the next run"),
		logging.String(logging.FieldImpact, "identifier resolution incomplete for this item"))
}

func (a *attempt) pause(ctx context.Context) error {
	if a.calls == 0 || a.r.opts.Pause <= 0 {
		return nil
	}
	return a.r.opts.Sleep(ctx, a.r.opts.Pause)
}

func (a *attempt) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.r.opts.Timeout > 0 {
		return context.WithTimeout(ctx, a.r.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (r *Resolver) sourceNamed(name string) sources.Source {
	for _, src := range r.sources {
		if src.Name() == name {
			return src
		}
	}
	return nil
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
