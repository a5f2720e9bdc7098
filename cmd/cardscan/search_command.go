package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cardscan/internal/app"
	"cardscan/internal/search"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var setName string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "search <name>",
		Short: "Search the Pokémon TCG API and cache every card it returns",
		Long: `Searches for an exact name first and falls back to a prefix search. Every
card returned is written to the fuzzy name cache used during identification.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.Search.Search(cmd.Context(), args[0], setName)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if result.Mode == search.ModeNone {
					fmt.Fprintf(out, "No cards found for %q\n", args[0])
					return nil
				}
				rows := make([][]string, 0, len(result.Cards))
				for _, card := range result.Cards {
					price := ""
					if value, currency, ok := card.MarketPrice(); ok {
						price = fmt.Sprintf("%.2f %s", value, currency)
					}
					rows = append(rows, []string{card.ID, card.Name, card.SetName(), card.Number, card.Rarity, price})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Name", "Set", "Number", "Rarity", "Market"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
				))
				fmt.Fprintf(out, "%d cards (%s search), %d cached\n", len(result.Cards), result.Mode, result.Cached)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&setName, "set", "", "Restrict the exact search to a set name")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
