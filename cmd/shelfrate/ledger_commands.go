package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shelfrate/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and edit the enrichment history",
	}
	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	ledgerCmd.AddCommand(newLedgerShowCommand(ctx))
	ledgerCmd.AddCommand(newLedgerForgetCommand(ctx))
	return ledgerCmd
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	var failedOnly bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger entries, most recent attempt first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(cmd.Context(), func(store ledger.Store) error {
				entries, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if failedOnly {
					filtered := entries[:0]
					for _, entry := range entries {
						if entry.ConsecutiveFailures > 0 {
							filtered = append(filtered, entry)
						}
					}
					entries = filtered
				}
				if asJSON {
					if entries == nil {
						entries = []ledger.Entry{}
					}
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No ledger entries")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						entry.Key,
						entry.Title,
						formatTime(entry.LastUpdated),
						strconv.Itoa(len(entry.Snapshot)),
						strconv.Itoa(entry.ConsecutiveFailures),
						entry.LastFailureReason,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"key", "title", "last updated", "records", "failures", "reason"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
					shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show entries with consecutive failures")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func newLedgerShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show KEY",
		Short: "Print one ledger entry as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			return ctx.withLedger(cmd.Context(), func(store ledger.Store) error {
				entry, ok, err := store.Get(cmd.Context(), key)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no ledger entry for %q", key)
				}
				return writeJSON(cmd, entry)
			})
		},
	}
}

func newLedgerForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget KEY",
		Short: "Delete a ledger entry so the item is processed on the next run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			return ctx.withLedger(cmd.Context(), func(store ledger.Store) error {
				if _, ok, err := store.Get(cmd.Context(), key); err != nil {
					return err
				} else if !ok {
					return fmt.Errorf("no ledger entry for %q", key)
				}
				if err := store.Delete(cmd.Context(), key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", key)
				return nil
			})
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
