package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cardscan/internal/app"
	"cardscan/internal/scanstats"
)

func newCorrectCommand(ctx *commandContext) *cobra.Command {
	var cardID string
	cmd := &cobra.Command{
		Use:   "correct <text> <name>",
		Short: "Record that recognized text belongs to a card name",
		Long: `Appends a correction to the ledger and resets the learned pattern for this
text and name to full confidence. Patterns that mapped the same text to other
names are kept and keep competing on confidence.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Corrections.Record(cmd.Context(), args[0], args[1], cardID); err != nil {
					return err
				}
				if err := a.Stats.Record(cmd.Context(), scanstats.KindCorrection, args[1], true); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded correction %q -> %s\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cardID, "card-id", "", "Catalog id of the corrected card")
	return cmd
}

func newCorrectionsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "corrections <text>",
		Short: "Show the latest corrections recorded for recognized text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				n := limit
				if n <= 0 {
					n = a.Config.Learning.CorrectionHistory
				}
				items, err := a.Corrections.Recent(cmd.Context(), args[0], n)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No corrections recorded")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, c := range items {
					rows = append(rows, []string{c.CorrectedName, c.CardID, humanize.Time(c.Date)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Corrected name", "Card", "When"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows (default learning.correction_history)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
