package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"cardscan/internal/app"
)

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var threshold int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "match <image>",
		Short: "Find the catalog card closest to an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				limit := threshold
				if limit <= 0 {
					limit = a.Config.Matching.HashThreshold
				}
				match, ok := a.Matcher.MatchBytes(cmd.Context(), data, limit)
				if jsonOut {
					if !ok {
						return writeJSON(cmd, map[string]any{"match": nil, "threshold": limit})
					}
					return writeJSON(cmd, map[string]any{"match": match, "variant": match.Slot.Column(), "threshold": limit})
				}
				out := cmd.OutOrStdout()
				if !ok {
					fmt.Fprintf(out, "No catalog card within distance %d\n", limit)
					return nil
				}
				e := match.Entry
				rows := [][]string{
					{"Card", e.CardID},
					{"Name", e.Name},
					{"Set", fmt.Sprintf("%s (%s)", e.SetName, e.SetCode)},
					{"Number", e.Number},
					{"Rarity", e.Rarity},
					{"Distance", strconv.Itoa(match.Distance)},
					{"Confidence", fmt.Sprintf("%.0f%%", match.Confidence)},
					{"Matched hash", match.Slot.Column()},
				}
				fmt.Fprintln(out, renderTable([]string{"Image match", ""}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&threshold, "threshold", 0, "Largest accepted Hamming distance (default matching.hash_threshold)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
