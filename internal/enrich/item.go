package enrich

import (
	"context"
	"log/slog"

	"shelfrate/internal/catalog"
	"shelfrate/internal/ledger"
	"shelfrate/internal/logging"
	"shelfrate/internal/match"
	"shelfrate/internal/merge"
	"shelfrate/internal/notifications"
	"shelfrate/internal/ratings"
	"shelfrate/internal/report"
	"shelfrate/internal/resolver"
	"shelfrate/internal/services"
	"shelfrate/internal/sources"
)

// Ledger failure reasons besides those reported by the resolver.
const (
	reasonNoRatings = "no_ratings"
)

// processItem runs one catalog item end to end. Only context cancellation
// is returned; every other failure is counted and logged.
func (s *runState) processItem(ctx context.Context, listed catalog.Item) error {
	ctx = services.WithItemID(ctx, listed.ID)
	logger := logging.WithContext(ctx, s.r.logger)

	if listed.Locks().All {
		s.skip(logger, listed, "lock_all")
		return nil
	}
	entry, _, err := s.ledger.Lookup(ctx, listed)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.rep.FailedCount++
		logging.ErrorWithContext(logger, "ledger lookup failed", "ledger_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the ledger backend settings"),
			logging.String(logging.FieldImpact, "item skipped for this run"))
		return nil
	}
	now := s.r.now()
	if !s.ledger.Due(entry, s.r.cfg.Staleness(), now) {
		s.skip(logger, listed, "fresh")
		return nil
	}
	if (listed.ASIN == "" && listed.ISBN == "") || entry.LastFailureReason == reasonNoRatings {
		if _, waiting := s.ledger.Cooldown(entry, now); waiting {
			s.skip(logger, listed, "cooldown")
			return nil
		}
	}
	if s.batchReached() {
		s.stopped = true
		s.logger.Info("batch size reached", logging.Int("batch_size", s.batch))
		return nil
	}

	item, err := s.r.catalog.GetItem(ctx, listed.ID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.rep.FailedCount++
		logging.ErrorWithContext(logger, "failed to load item", "catalog_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check audiobookshelf availability"),
			logging.String(logging.FieldImpact, "item skipped for this run"))
		return nil
	}
	if item.LibraryID == "" {
		item.LibraryID = listed.LibraryID
	}
	if item.Locks().All {
		s.skip(logger, item, "lock_all")
		return nil
	}
	s.rep.ProcessedCount++
	logger.Info("processing item",
		logging.String("title", item.Title),
		logging.String("author", authorOf(item)),
		logging.String("asin", item.ASIN),
		logging.String("isbn", item.ISBN))

	outcome, err := s.resolver.Resolve(ctx, item, entry)
	if err != nil {
		return err
	}
	switch {
	case outcome.Status == resolver.StatusTransient:
		return s.rateLimited(ctx, "resolver", outcome.HardLimit)
	case outcome.Failed():
		return s.unresolved(ctx, item, entry, outcome)
	}

	working := item
	working.ASIN = outcome.ASIN
	working.ISBN = outcome.ISBN
	result, err := s.aggregator.Collect(ctx, working, ratings.Known{
		Records: outcome.Prefetched,
		Missed:  outcome.Missed,
	}, entry.Snapshot)
	if err != nil {
		return err
	}

	records := result.Records
	if len(records) == 0 {
		records = result.Snapshot
	}
	merged := s.merger.Merge(merge.Input{
		Item:    item,
		Records: records,
		Block:   result.Block,
		ASIN:    outcome.ASIN,
		ISBN:    outcome.ISBN,
	})
	if !merged.Patch.IsEmpty() {
		if err := s.write(ctx, item, merged.Patch); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.rep.FailedCount++
			return s.pace(ctx, outcome.Searched)
		}
		if merged.Patch.ASIN != nil {
			s.rep.NewASINCount++
		}
		if merged.Patch.ISBN != nil {
			s.rep.NewISBNCount++
		}
	}

	switch result.Status {
	case ratings.StatusUpdated:
		s.rep.UpdatedCount++
		if _, err := s.ledger.RecordSuccess(ctx, working, result.Snapshot, s.r.now()); err != nil {
			s.ledgerWriteFailed(logger, err)
		}
		s.unmatched.Remove(item.ID)
	case ratings.StatusStale:
		s.rep.StaleCount++
		if !result.Throttled() {
			// Every source answered NotFound; the snapshot stays and retries back off.
			if _, err := s.ledger.RecordFailure(ctx, working, reasonNoRatings, s.r.now()); err != nil {
				s.ledgerWriteFailed(logger, err)
			}
		}
	case ratings.StatusEmpty:
		if !result.Transient {
			s.recordMiss(ctx, item, entry, reasonNoRatings, nil)
		}
	}
	if len(result.Recycled) > 0 {
		s.rep.RecycledCount++
	}

	logger.Info("item decision",
		logging.Args(append(logging.DecisionAttrs("item_enrichment", result.Status.String(), outcome.Status.String()),
			logging.Any("fields", merged.Patch.Fields()),
			logging.Int("source_calls", outcome.Calls+result.Calls),
			logging.Bool("dry_run", s.dryRun))...)...)

	if result.Transient || result.HardLimit {
		return s.rateLimited(ctx, s.firstTransient(result), result.HardLimit)
	}
	s.consecutive = 0
	return s.pace(ctx, outcome.Searched)
}

func (s *runState) skip(logger *slog.Logger, item catalog.Item, reason string) {
	s.rep.SkippedCount++
	logger.Debug("item skipped",
		logging.Args(append(logging.DecisionAttrs("item_selection", "skipped", reason),
			logging.String("title", item.Title))...)...)
}

// write applies patch, or records it in the report during a dry run.
func (s *runState) write(ctx context.Context, item catalog.Item, patch catalog.Patch) error {
	logger := logging.WithContext(ctx, s.r.logger)
	if s.dryRun {
		s.rep.Patches = append(s.rep.Patches, report.Patch{
			ItemID: item.ID,
			Title:  item.Title,
			Fields: patch.Fields(),
			Patch:  patch,
		})
		logger.Info("dry run: patch not written", logging.Any("fields", patch.Fields()))
		return nil
	}
	if err := s.r.catalog.UpdateItem(ctx, item.ID, patch); err != nil {
		wrapped := services.Wrap(ErrCatalogWrite, stageEnrich, "update item", item.Title, err)
		logging.ErrorWithContext(logger, "catalog write failed", "catalog_write_failed",
			logging.Error(wrapped),
			logging.Any("fields", patch.Fields()),
			logging.String(logging.FieldErrorHint, "check the API token has update permission"),
			logging.String(logging.FieldImpact, "item retried on the next run"))
		return wrapped
	}
	logger.Info("metadata updated", logging.Any("fields", patch.Fields()))
	return nil
}

// unresolved records a NoMatch or Ambiguous resolution.
func (s *runState) unresolved(ctx context.Context, item catalog.Item, entry ledger.Entry, outcome resolver.Outcome) error {
	s.recordMiss(ctx, item, entry, outcome.Reason, outcome.NearMisses)
	s.consecutive = 0
	return s.pace(ctx, outcome.Searched)
}

func (s *runState) recordMiss(ctx context.Context, item catalog.Item, entry ledger.Entry, reason string, nearMisses []match.Scored) {
	logger := logging.WithContext(ctx, s.r.logger)
	now := s.r.now()
	if _, err := s.ledger.RecordFailure(ctx, item, reason, now); err != nil {
		s.ledgerWriteFailed(logger, err)
	}
	miss := report.Unmatched{
		ItemID:     item.ID,
		LibraryID:  item.LibraryID,
		Title:      item.Title,
		Author:     authorOf(item),
		Reason:     reason,
		Candidates: candidates(nearMisses),
		LastCheck:  now.UTC(),
	}
	s.rep.Unmatched = append(s.rep.Unmatched, miss)
	s.unmatched.Upsert(miss)
	if entry.ConsecutiveFailures == 0 {
		payload := notifications.Payload{"title": item.Title, "author": miss.Author, "reason": reason}
		if err := s.r.notifier.Notify(ctx, notifications.EventUnmatched, payload); err != nil {
			s.notifyFailed(err)
		}
	}
}

func (s *runState) ledgerWriteFailed(logger *slog.Logger, err error) {
	logging.WarnWithContext(logger, "ledger update failed", "ledger_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the ledger backend settings"),
		logging.String(logging.FieldImpact, "item is processed again next run"))
}

func candidates(scored []match.Scored) []report.Candidate {
	if len(scored) == 0 {
		return nil
	}
	out := make([]report.Candidate, 0, len(scored))
	for _, s := range scored {
		out = append(out, report.Candidate{
			Source:     s.Candidate.Source,
			Identifier: s.Candidate.Identifier,
			Title:      s.Candidate.Title,
			Author:     s.Candidate.Author,
			Score:      s.Score,
		})
	}
	return out
}

// firstTransient names the first source, in configured order, that was
// throttled.
func (s *runState) firstTransient(result ratings.Result) string {
	for _, src := range s.r.sources {
		if status, ok := result.Outcomes[src.Name()]; ok && status == sources.Transient {
			return src.Name()
		}
	}
	return "ratings"
}
