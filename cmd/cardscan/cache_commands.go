package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cardscan/internal/app"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the fuzzy name cache",
	}
	cmd.AddCommand(newCacheLookupCommand(ctx))
	cmd.AddCommand(newCacheCountCommand(ctx))
	cmd.AddCommand(newCacheClearCommand(ctx))
	return cmd
}

func newCacheLookupCommand(ctx *commandContext) *cobra.Command {
	var threshold float64
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "lookup <text>",
		Short: "Rank cached card names against text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				floor := threshold
				if floor <= 0 {
					floor = a.Config.Learning.FuzzyThreshold
				}
				candidates := a.Names.Lookup(cmd.Context(), args[0], floor)
				if jsonOut {
					return writeJSON(cmd, candidates)
				}
				if len(candidates) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No cached names above the threshold")
					return nil
				}
				rows := make([][]string, 0, len(candidates))
				for _, c := range candidates {
					rows = append(rows, []string{c.Name, fmt.Sprintf("%.3f", c.Score)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Score"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum score (default learning.fuzzy_threshold)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newCacheCountCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Show how many cards are cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Names.Count(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s cached cards\n", humanize.Comma(int64(n)))
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached card name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear the name cache without --yes")
			}
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Names.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s cached cards\n", humanize.Comma(n))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the removal")
	return cmd
}
