package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shelfrate/internal/enrich"
	"shelfrate/internal/ratings"
	"shelfrate/internal/sources"
)

type lookupResult struct {
	Source string          `json:"source"`
	Status string          `json:"status"`
	Record *sources.Record `json:"record,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func newLookupCommand(ctx *commandContext) *cobra.Command {
	var query sources.Query
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Query every rating source for one book and print the records found",
		RunE: func(cmd *cobra.Command, args []string) error {
			query.ASIN = strings.ToUpper(strings.TrimSpace(query.ASIN))
			query.ISBN = strings.TrimSpace(query.ISBN)
			query.Title = strings.TrimSpace(query.Title)
			query.Author = strings.TrimSpace(query.Author)
			if query.ASIN == "" && query.ISBN == "" && query.Title == "" {
				return errors.New("lookup needs --asin, --isbn, or --title")
			}
			if query.ASIN != "" && !sources.IsASIN(query.ASIN) {
				return fmt.Errorf("invalid ASIN %q", query.ASIN)
			}
			if query.ISBN != "" {
				isbn, ok := sources.NormalizeISBN(query.ISBN)
				if !ok {
					return fmt.Errorf("invalid ISBN %q", query.ISBN)
				}
				query.ISBN = isbn
			}
			if query.Author != "" {
				query.Authors = []string{query.Author}
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			srcs, err := enrich.BuildSources(cfg, nil, ctx.quietLogger())
			if err != nil {
				return err
			}

			results := make([]lookupResult, 0, len(srcs))
			var records []sources.Record
			for _, src := range srcs {
				callCtx, cancel := context.WithTimeout(cmd.Context(), cfg.SourceTimeout())
				record, err := src.Fetch(callCtx, query)
				cancel()
				if err != nil && cmd.Context().Err() != nil {
					return cmd.Context().Err()
				}
				result := lookupResult{Source: src.Name(), Status: sources.Outcome(err).String()}
				if err != nil && !errors.Is(err, sources.ErrNotFound) {
					result.Error = err.Error()
				}
				if err == nil && record != nil {
					result.Record = record
					records = append(records, *record)
				}
				results = append(results, result)
			}

			if asJSON {
				return writeJSON(cmd, results)
			}
			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(results))
			for _, result := range results {
				rows = append(rows, lookupRow(result))
			}
			fmt.Fprintln(out, renderTable(
				[]string{"source", "status", "identifier", "title", "rating", "ratings"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				shouldColorize(out)))
			if block := ratings.BlockFor(records); block != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, strings.ReplaceAll(block, ratings.LineBreak, "\n"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&query.ASIN, "asin", "", "Audible ASIN")
	cmd.Flags().StringVar(&query.ISBN, "isbn", "", "ISBN-10 or ISBN-13")
	cmd.Flags().StringVar(&query.Title, "title", "", "Book title for a search lookup")
	cmd.Flags().StringVar(&query.Author, "author", "", "Author used to rank search results")
	cmd.Flags().StringVar(&query.Language, "language", "", "Item language, e.g. German")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func lookupRow(result lookupResult) []string {
	row := []string{result.Source, result.Status, "", "", "", ""}
	if r := result.Record; r != nil {
		row[2] = r.Identifier
		row[3] = r.Title
		if r.Overall != nil {
			row[4] = strconv.FormatFloat(*r.Overall, 'f', 1, 64)
		}
		if r.RatingCount != nil {
			row[5] = ratings.FormatCount(*r.RatingCount)
		}
	}
	if result.Error != "" {
		row[3] = result.Error
	}
	return row
}
