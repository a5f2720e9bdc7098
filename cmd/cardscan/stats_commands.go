package main

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cardscan/internal/app"
	"cardscan/internal/identify"
	"cardscan/internal/scanstats"
)

type statsView struct {
	Summary identify.Statistics    `json:"summary"`
	ByKind  map[scanstats.Kind]int `json:"by_kind"`
	Recent  []scanstats.Stat       `json:"recent"`
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var recent int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show learning and scan statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				summary := a.Engine.Statistics(cmd.Context())
				byKind, err := a.Stats.ByKind(cmd.Context())
				if err != nil {
					return err
				}
				latest, err := a.Stats.Recent(cmd.Context(), recent)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, statsView{Summary: summary, ByKind: byKind, Recent: latest})
				}

				out := cmd.OutOrStdout()
				rows := [][]string{
					{"Cached cards", humanize.Comma(int64(summary.CachedCards))},
					{"Total scans", humanize.Comma(int64(summary.TotalScans))},
					{"Successful scans", humanize.Comma(int64(summary.SuccessfulScans))},
					{"Success rate", fmt.Sprintf("%.2f%%", summary.SuccessRate)},
					{"Learned patterns", humanize.Comma(int64(summary.LearnedPatterns))},
					{"High confidence patterns", humanize.Comma(int64(summary.HighConfidence))},
					{"Corrections", humanize.Comma(int64(summary.Corrections))},
				}
				fmt.Fprintln(out, renderTable([]string{"Statistics", ""}, rows, []columnAlignment{alignLeft, alignRight}))

				if len(byKind) > 0 {
					kinds := make([]string, 0, len(byKind))
					for k := range byKind {
						kinds = append(kinds, string(k))
					}
					sort.Strings(kinds)
					kindRows := make([][]string, 0, len(kinds))
					for _, k := range kinds {
						kindRows = append(kindRows, []string{k, humanize.Comma(int64(byKind[scanstats.Kind(k)]))})
					}
					fmt.Fprintln(out, renderTable([]string{"Scan kind", "Scans"}, kindRows, []columnAlignment{alignLeft, alignRight}))
				}
				if len(latest) > 0 {
					recentRows := make([][]string, 0, len(latest))
					for _, s := range latest {
						recentRows = append(recentRows, []string{humanize.Time(s.Date), string(s.Kind), s.CardName, yesNo(s.Success)})
					}
					fmt.Fprintln(out, renderTable([]string{"When", "Kind", "Card", "Success"}, recentRows, nil))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 10, "Number of recent scans to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.AddCommand(newStatsExportCommand(ctx))
	return cmd
}

func newStatsExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the plain-text statistics report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				fmt.Fprint(cmd.OutOrStdout(), a.Engine.Statistics(cmd.Context()).Export())
				return nil
			})
		},
	}
}
