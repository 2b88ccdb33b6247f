package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"shelfrate/internal/catalog"
	"shelfrate/internal/config"
	"shelfrate/internal/ledger"
	"shelfrate/internal/logging"
	"shelfrate/internal/merge"
	"shelfrate/internal/notifications"
	"shelfrate/internal/ratings"
	"shelfrate/internal/report"
	"shelfrate/internal/resolver"
	"shelfrate/internal/services"
	"shelfrate/internal/sources"
)

const stageEnrich = "enrich"

var (
	// ErrCatalogWrite marks a rejected metadata patch.
	ErrCatalogWrite = services.Wrap(services.ErrExternalTool, stageEnrich, "", "catalog write failed", nil)
	// ErrRateLimitAbort is returned when a run stops early on rate limits.
	ErrRateLimitAbort = services.Wrap(services.ErrTransient, stageEnrich, "", "run aborted on rate limits", nil)
)

// Catalog is the audiobookshelf surface the runner needs.
type Catalog interface {
	Ping(ctx context.Context) error
	ListItems(ctx context.Context, libraryID string) ([]catalog.Item, error)
	GetItem(ctx context.Context, itemID string) (catalog.Item, error)
	UpdateItem(ctx context.Context, itemID string, patch catalog.Patch) error
}

var _ Catalog = (*catalog.Client)(nil)

// Runner executes enrichment passes.
type Runner struct {
	cfg      *config.Config
	catalog  Catalog
	ledger   *ledger.Ledger
	sources  []sources.Source
	notifier notifications.Service
	logger   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
	now   func() time.Time
	newID func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithNotifier sets the notification service. The default discards.
func WithNotifier(n notifications.Service) Option {
	return func(r *Runner) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSleep replaces the blocking pause used for pacing.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// New builds a Runner. srcs are queried in the given order.
func New(cfg *config.Config, cat Catalog, l *ledger.Ledger, srcs []sources.Source, opts ...Option) (*Runner, error) {
	if cfg == nil || cat == nil || l == nil {
		return nil, errors.New("enrich runner requires config, catalog, and ledger")
	}
	r := &Runner{
		cfg:      cfg,
		catalog:  cat,
		ledger:   l,
		sources:  srcs,
		notifier: notifications.Noop(),
		logger:   logging.NewNop(),
		sleep:    sleepContext,
		rand:     defaultRand,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "enrich")
	return r, nil
}

// RunOptions narrows a single run.
type RunOptions struct {
	// DryRun computes patches without writing. The config flag also enables it.
	DryRun bool
	// LibraryIDs overrides the configured libraries.
	LibraryIDs []string
	// BatchSize overrides run.batch_size. Zero keeps the configured value.
	BatchSize int
	// LogFile is reported to the dashboard notifier.
	LogFile string
}

// Run performs one pass and returns its report. The report is persisted and
// notified even when the run fails or is interrupted.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (report.Report, error) {
	runID := r.newID()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, r.logger)

	lock, err := acquireLock(r.cfg.LockPath())
	if err != nil {
		return report.Report{}, err
	}
	defer func() {
		if err := lock.release(); err != nil {
			logging.WarnWithContext(logger, "failed to release run lock", "lock_release_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove "+r.cfg.LockPath()+" if no run is active"),
				logging.String(logging.FieldImpact, "the next run may refuse to start"))
		}
	}()

	st, err := r.newRunState(runID, opts)
	if err != nil {
		return report.Report{}, err
	}
	st.logger = logger

	libraries := opts.LibraryIDs
	if len(libraries) == 0 {
		libraries = r.cfg.Catalog.LibraryIDs
	}
	logger.Info("enrichment run started",
		logging.String("run_id", runID),
		logging.Bool("dry_run", st.dryRun),
		logging.Int("batch_size", st.batch),
		logging.Any("libraries", libraries),
		logging.Int("sources", len(r.sources)))

	runErr := st.execute(ctx, libraries)
	return st.finish(ctx, runErr)
}

type runState struct {
	r          *Runner
	id         string
	dryRun     bool
	batch      int
	logFile    string
	started    time.Time
	ledger     *ledger.Ledger
	resolver   *resolver.Resolver
	aggregator *ratings.Aggregator
	merger     *merge.Merger
	unmatched  *report.UnmatchedList
	pacer      *pacer
	logger     *slog.Logger

	rep         report.Report
	consecutive int
	stopped     bool
}

func (r *Runner) newRunState(runID string, opts RunOptions) (*runState, error) {
	cfg := r.cfg
	dryRun := opts.DryRun || cfg.Run.DryRun
	batch := cfg.Run.BatchSize
	if opts.BatchSize > 0 {
		batch = opts.BatchSize
	}

	l := r.ledger
	if dryRun {
		l = ledger.New(ledger.ReadOnly(r.ledger.Store()), r.ledger.Policy())
	}
	unmatched, err := report.OpenUnmatched(filepath.Join(cfg.Paths.ReportDir, report.UnmatchedFile))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageEnrich, "open unmatched list", "", err)
	}

	sourcePause := time.Duration(cfg.Run.SourcePauseMillis) * time.Millisecond
	return &runState{
		r:       r,
		id:      runID,
		dryRun:  dryRun,
		batch:   batch,
		logFile: opts.LogFile,
		started: r.now(),
		ledger:  l,
		resolver: resolver.New(r.sources, l, resolver.Options{
			Threshold: cfg.Resolver.AcceptanceThreshold,
			Margin:    cfg.Resolver.MinMargin,
			Timeout:   cfg.SourceTimeout(),
			Pause:     sourcePause,
			Sleep:     r.sleep,
			Now:       r.now,
			Logger:    r.logger,
		}),
		aggregator: ratings.NewAggregator(r.sources, ratings.Options{
			PreferItemLanguage: cfg.Sources.PreferItemLanguage,
			Timeout:            cfg.SourceTimeout(),
			Pause:              sourcePause,
			Sleep:              r.sleep,
			Logger:             r.logger,
		}),
		merger: merge.New(merge.Policy{
			Scalar:       cfg.Merge.ScalarPolicy,
			Placeholders: cfg.Merge.Placeholders,
		}),
		unmatched: unmatched,
		pacer: &pacer{
			interval: cfg.PauseInterval(),
			jitter:   time.Duration(cfg.Run.PauseJitterSeconds) * time.Second,
			every:    cfg.Run.PauseEvery,
			search:   time.Duration(cfg.Run.SearchPauseSeconds) * time.Second,
			recovery: time.Duration(cfg.Run.RecoveryPauseSeconds) * time.Second,
			sleep:    r.sleep,
			rand:     r.rand,
		},
		rep: report.Report{
			RunID:  runID,
			Status: notifications.StatusCompleted,
			DryRun: dryRun,
		},
	}, nil
}

func (s *runState) execute(ctx context.Context, libraries []string) error {
	if err := s.r.catalog.Ping(ctx); err != nil {
		return services.Wrap(services.ErrConfiguration, stageEnrich, "ping", "catalog unreachable", err)
	}
	if err := s.r.notifier.Notify(ctx, notifications.EventRunStarted, notifications.Payload{"libraries": len(libraries)}); err != nil {
		s.notifyFailed(err)
	}

	for _, libraryID := range libraries {
		libCtx := services.WithLibraryID(ctx, libraryID)
		items, err := s.r.catalog.ListItems(libCtx, libraryID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.rep.FailedCount++
			logging.ErrorWithContext(logging.WithContext(libCtx, s.r.logger), "failed to list library items", "catalog_list_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the library id and the API token permissions"),
				logging.String(logging.FieldImpact, "library skipped for this run"))
			continue
		}
		s.logger.Info("library listed", logging.String(logging.FieldLibraryID, libraryID), logging.Int("items", len(items)))
		for _, item := range items {
			if err := s.processItem(libCtx, item); err != nil {
				return err
			}
			if s.stopped {
				return nil
			}
		}
	}
	return nil
}

func (s *runState) finish(ctx context.Context, runErr error) (report.Report, error) {
	ctx = context.WithoutCancel(ctx)
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		s.rep.Status = notifications.StatusAborted
		s.rep.Reason = "interrupted"
	default:
		s.rep.Status = notifications.StatusFailed
		s.rep.Reason = runErr.Error()
		if err := s.r.notifier.Notify(ctx, notifications.EventRunFailed, notifications.Payload{"error": runErr.Error()}); err != nil {
			s.notifyFailed(err)
		}
	}

	if err := s.ledger.Flush(ctx); err != nil {
		logging.ErrorWithContext(s.logger, "failed to flush ledger", "ledger_flush_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions of the state directory"),
			logging.String(logging.FieldImpact, "items from this run are processed again next run"))
	}
	if !s.dryRun {
		if err := s.unmatched.Save(); err != nil {
			logging.WarnWithContext(s.logger, "failed to save unmatched list", "report_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions of the report directory"),
				logging.String(logging.FieldImpact, "unmatched.json is out of date"))
		}
	}

	end := s.r.now()
	duration := end.Sub(s.started)
	s.rep.Timestamp = end
	s.rep.Duration = duration.Round(time.Second).String()
	path, err := report.Write(s.r.cfg.Paths.ReportDir, s.rep)
	if err != nil {
		logging.WarnWithContext(s.logger, "failed to write run report", "report_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions of the report directory"),
			logging.String(logging.FieldImpact, "no report for this run"))
	}

	summary := notifications.Summary{
		RunID:     s.id,
		Status:    s.rep.Status,
		Processed: s.rep.ProcessedCount,
		Updated:   s.rep.UpdatedCount,
		Recycled:  s.rep.RecycledCount,
		Stale:     s.rep.StaleCount,
		Failed:    s.rep.FailedCount,
		Skipped:   s.rep.SkippedCount,
		Unmatched: len(s.rep.Unmatched),
		NewASINs:  s.rep.NewASINCount,
		NewISBNs:  s.rep.NewISBNCount,
		Duration:  duration,
		DryRun:    s.dryRun,
		LogFile:   s.logFile,
		Reason:    s.rep.Reason,
	}
	if err := s.r.notifier.NotifyRun(ctx, summary); err != nil {
		s.notifyFailed(err)
	}

	s.logger.Info("enrichment run finished",
		logging.String("status", s.rep.Status),
		logging.String("reason", s.rep.Reason),
		logging.Int("processed", s.rep.ProcessedCount),
		logging.Int("updated", s.rep.UpdatedCount),
		logging.Int("recycled", s.rep.RecycledCount),
		logging.Int("stale", s.rep.StaleCount),
		logging.Int("failed", s.rep.FailedCount),
		logging.Int("skipped", s.rep.SkippedCount),
		logging.Int("unmatched", len(s.rep.Unmatched)),
		logging.Duration("duration", duration),
		logging.String("report", path))

	if runErr == nil && s.rep.Status == notifications.StatusAborted {
		runErr = fmt.Errorf("%w: %s", ErrRateLimitAbort, s.rep.Reason)
	}
	return s.rep, runErr
}

func (s *runState) notifyFailed(err error) {
	logging.WarnWithContext(s.logger, "notification delivery failed", "notification_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and notifications.env_file"),
		logging.String(logging.FieldImpact, "the run continues without this notification"))
}

// abort stops the run after the current item.
func (s *runState) abort(reason string) {
	s.stopped = true
	s.rep.Status = notifications.StatusAborted
	s.rep.Reason = reason
}

// pace flushes the ledger and sleeps the between-item pause.
func (s *runState) pace(ctx context.Context, searched bool) error {
	d := s.pacer.afterItem(searched)
	if d <= 0 {
		return nil
	}
	s.flush(ctx)
	return s.pacer.wait(ctx, d)
}

func (s *runState) flush(ctx context.Context) {
	if err := s.ledger.Flush(ctx); err != nil {
		logging.WarnWithContext(s.logger, "failed to flush ledger", "ledger_flush_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions of the state directory"),
			logging.String(logging.FieldImpact, "progress is kept in memory until the next flush"))
	}
}

// rateLimited handles an item that ended on throttling. No ledger failure
// is recorded.
func (s *runState) rateLimited(ctx context.Context, source string, hard bool) error {
	s.consecutive++
	limit := s.r.cfg.Run.MaxConsecutiveRateLimits
	logging.WarnWithContext(logging.WithContext(ctx, s.r.logger), "rate limit detected", "source_rate_limited",
		logging.String(logging.FieldSource, source),
		logging.Bool("hard", hard),
		logging.Int("consecutive", s.consecutive),
		logging.Int("max_consecutive", limit),
		logging.String(logging.FieldErrorHint, "lower run.batch_size or raise run.pause_seconds"),
		logging.String(logging.FieldImpact, "item retried on the next run"))
	switch {
	case hard:
		s.abort("hard rate limit")
		return nil
	case limit > 0 && s.consecutive >= limit:
		s.abort(fmt.Sprintf("%d consecutive rate limits", s.consecutive))
		return nil
	}
	s.flush(ctx)
	return s.pacer.wait(ctx, s.pacer.recoveryFor(s.consecutive))
}

func (s *runState) batchReached() bool {
	return s.batch > 0 && s.rep.ProcessedCount >= s.batch
}

func authorOf(item catalog.Item) string {
	return strings.Join(item.Authors, ", ")
}
