package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"shelfrate/internal/report"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Run report utilities",
	}
	reportCmd.AddCommand(newReportShowCommand(ctx))
	return reportCmd
}

func newReportShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the latest run report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rep, err := report.Latest(cfg.Paths.ReportDir)
			if errors.Is(err, report.ErrNoReport) {
				fmt.Fprintf(out, "No run report found in %s\n", cfg.Paths.ReportDir)
				return nil
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, rep)
			}

			fmt.Fprintf(out, "Run %s at %s\n", rep.RunID, rep.Timestamp.Local().Format("2006-01-02 15:04:05"))
			printRunSummary(out, rep)
			if len(rep.Unmatched) > 0 {
				printUnmatched(out, rep.Unmatched)
			}
			if len(rep.Patches) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Dry-run patches:")
				for _, patch := range rep.Patches {
					fmt.Fprintf(out, "  %s: %s\n", patch.Title, strings.Join(patch.Fields, ", "))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func printUnmatched(out io.Writer, misses []report.Unmatched) {
	rows := make([][]string, 0, len(misses))
	for _, miss := range misses {
		best := ""
		if len(miss.Candidates) > 0 {
			c := miss.Candidates[0]
			best = fmt.Sprintf("%s %.2f", c.Identifier, c.Score)
		}
		rows = append(rows, []string{miss.Title, miss.Author, miss.Reason, best})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"unmatched title", "author", "reason", "best candidate"},
		rows, nil, shouldColorize(out)))
}
