package main

import (
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"shelfrate/internal/catalog"
	"shelfrate/internal/enrich"
	"shelfrate/internal/ledger"
	"shelfrate/internal/logging"
	"shelfrate/internal/notifications"
	"shelfrate/internal/report"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var libraries []string
	var batch int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve identifiers and refresh ratings for every library item",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireCatalog(); err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			store, err := ledger.Open(runCtx, cfg.Ledger, logger)
			if err != nil {
				return err
			}
			history := ledger.New(store, ledger.PolicyFromConfig(cfg.Resolver))
			defer func() {
				if err := history.Close(); err != nil {
					logging.ErrorWithContext(logger, "failed to close ledger", "ledger_close_failed",
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "check the ledger backend settings"),
						logging.String(logging.FieldImpact, "the last items of this run may be processed again"))
				}
			}()

			client, err := catalog.New(cfg.Catalog.URL, cfg.Catalog.Token, catalog.WithTimeout(cfg.CatalogTimeout()))
			if err != nil {
				return err
			}
			srcs, err := enrich.BuildSources(cfg, nil, logger)
			if err != nil {
				return err
			}
			runner, err := enrich.New(cfg, client, history, srcs,
				enrich.WithNotifier(notifications.NewService(cfg)),
				enrich.WithLogger(logger))
			if err != nil {
				return err
			}

			logFile := ""
			if cfg.Paths.LogDir != "" {
				logFile = filepath.Join(cfg.Paths.LogDir, "shelfrate.log")
			}
			rep, runErr := runner.Run(runCtx, enrich.RunOptions{
				DryRun:     dryRun,
				LibraryIDs: libraries,
				BatchSize:  batch,
				LogFile:    logFile,
			})
			if rep.RunID != "" {
				printRunSummary(cmd.OutOrStdout(), rep)
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute patches and write the report without updating audiobookshelf")
	cmd.Flags().StringSliceVar(&libraries, "library", nil, "Library ID to process (repeatable, default catalog.library_ids)")
	cmd.Flags().IntVar(&batch, "batch", 0, "Maximum items to process (default run.batch_size)")
	return cmd
}

func printRunSummary(out io.Writer, rep report.Report) {
	rows := [][]string{
		{"status", rep.Status},
		{"processed", strconv.Itoa(rep.ProcessedCount)},
		{"updated", strconv.Itoa(rep.UpdatedCount)},
		{"recycled", strconv.Itoa(rep.RecycledCount)},
		{"stale", strconv.Itoa(rep.StaleCount)},
		{"failed", strconv.Itoa(rep.FailedCount)},
		{"skipped", strconv.Itoa(rep.SkippedCount)},
		{"unmatched", strconv.Itoa(len(rep.Unmatched))},
		{"new asin", strconv.Itoa(rep.NewASINCount)},
		{"new isbn", strconv.Itoa(rep.NewISBNCount)},
		{"dry run", yesNo(rep.DryRun)},
		{"duration", rep.Duration},
	}
	if rep.Reason != "" {
		rows = append(rows, []string{"reason", rep.Reason})
	}
	fmt.Fprintln(out, renderTable([]string{"run " + rep.RunID, "value"}, rows, []columnAlignment{alignLeft, alignRight}, shouldColorize(out)))
}
