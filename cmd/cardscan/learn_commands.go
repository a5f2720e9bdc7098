package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cardscan/internal/app"
)

func newLearnCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Inspect and train the recognized-text pattern learner",
	}
	cmd.AddCommand(newLearnRecordCommand(ctx))
	cmd.AddCommand(newLearnLookupCommand(ctx))
	cmd.AddCommand(newLearnListCommand(ctx))
	return cmd
}

func newLearnRecordCommand(ctx *commandContext) *cobra.Command {
	var failed bool
	cmd := &cobra.Command{
		Use:   "record <text> <name>",
		Short: "Record one observation of text resolving to a card name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Patterns.Record(cmd.Context(), args[0], args[1], !failed); err != nil {
					return err
				}
				p, err := a.Patterns.Get(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if p == nil {
					return fmt.Errorf("pattern %q -> %q not found after recording", args[0], args[1])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%q -> %s: confidence %.2f (%d/%d)\n", p.RawText, p.Name, p.Confidence, p.SuccessCount, p.ScanCount)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "Record the observation as a failure")
	return cmd
}

func newLearnLookupCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "lookup <text>",
		Short: "Resolve text through the learned patterns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				res, ok := a.Patterns.Lookup(cmd.Context(), args[0])
				if jsonOut {
					if !ok {
						return writeJSON(cmd, map[string]any{"resolution": nil})
					}
					return writeJSON(cmd, map[string]any{"resolution": res})
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "No learned pattern")
					return nil
				}
				kind := "fuzzy"
				if res.Exact {
					kind = "exact"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, confidence %.2f, score %.2f)\n", res.Name, kind, res.Confidence, res.Score)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newLearnListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List learned patterns, most confident first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				items, err := a.Patterns.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No learned patterns")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, p := range items {
					rows = append(rows, []string{
						p.RawText,
						p.Name,
						fmt.Sprintf("%.2f", p.Confidence),
						strconv.Itoa(p.ScanCount),
						humanize.Time(p.LastUsed),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Text", "Name", "Confidence", "Scans", "Last used"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
