package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"cardscan/internal/app"
	"cardscan/internal/catalog"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Build and inspect the perceptual hash catalog",
	}
	cmd.AddCommand(newCatalogBuildCommand(ctx))
	cmd.AddCommand(newCatalogStatsCommand(ctx))
	cmd.AddCommand(newCatalogClearCommand(ctx))
	return cmd
}

func newCatalogBuildCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var noProgress bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Download reference images and fingerprint every card not yet in the catalog",
		Long: `Lists cards from the Pokémon TCG API, downloads each card image, and stores
its perceptual hashes. Cards already in the catalog are skipped, so an
interrupted build can simply be run again. Press Ctrl-C to stop after the
current card.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return errors.New("--limit must be zero or positive")
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return ctx.withApp(runCtx, func(a *app.App) error {
				showBar := !noProgress && !jsonOut && isTerminal(cmd.ErrOrStderr())
				result, err := runBuild(runCtx, a, limit, cmd.ErrOrStderr(), showBar)
				if jsonOut {
					if jsonErr := writeJSON(cmd, result); jsonErr != nil {
						return jsonErr
					}
					return err
				}
				printBuildResult(cmd.OutOrStdout(), result)
				if errors.Is(err, context.Canceled) {
					fmt.Fprintln(cmd.OutOrStdout(), "Build interrupted; run it again to resume.")
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of cards to process (0 for all)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the build result as JSON")
	return cmd
}

// runBuild runs the build as a background job and renders its progress on
// this goroutine.
func runBuild(ctx context.Context, a *app.App, limit int, errOut io.Writer, showBar bool) (catalog.BuildResult, error) {
	job := catalog.StartBuild(ctx, a.Builder, a.Client, limit)
	var bar *progressbar.ProgressBar
	for p := range job.Progress() {
		if !showBar || p.Total == 0 {
			continue
		}
		if bar == nil {
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetWriter(errOut),
				progressbar.OptionSetDescription("Fingerprinting"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionClearOnFinish(),
			)
		}
		if p.Label != "" {
			bar.Describe(truncateLabel(p.Label, 24))
		}
		_ = bar.Set(p.Current)
		if p.Done {
			_ = bar.Finish()
		}
	}
	return job.Wait()
}

func truncateLabel(label string, width int) string {
	runes := []rune(label)
	if len(runes) <= width {
		return label + strings.Repeat(" ", width-len(runes))
	}
	return string(runes[:width-1]) + "…"
}

func printBuildResult(out io.Writer, result catalog.BuildResult) {
	rows := [][]string{
		{"Added", humanize.Comma(int64(result.Added))},
		{"Skipped (already present)", humanize.Comma(int64(result.Skipped))},
		{"Failed", humanize.Comma(int64(result.Failed))},
		{"Processed", fmt.Sprintf("%s of %s", humanize.Comma(int64(result.Processed)), humanize.Comma(int64(result.Total)))},
		{"Elapsed", result.Elapsed.Round(time.Second).String()},
	}
	fmt.Fprintln(out, renderTable([]string{"Catalog build", ""}, rows, []columnAlignment{alignLeft, alignRight}))
}

type catalogStatsView struct {
	catalog.Stats
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

func newCatalogStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				stats, err := a.Catalog.Stats(cmd.Context())
				if err != nil {
					return err
				}
				view := catalogStatsView{Stats: stats, Path: a.Catalog.Path()}
				if info, err := os.Stat(view.Path); err == nil {
					view.SizeBytes = info.Size()
				}
				if jsonOut {
					return writeJSON(cmd, view)
				}
				rows := [][]string{
					{"Cards", humanize.Comma(int64(stats.Total))},
					{"Downloaded", humanize.Comma(int64(stats.Downloaded))},
					{"Sets", humanize.Comma(int64(stats.Sets))},
					{"Database size", humanize.Bytes(uint64(view.SizeBytes))},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Catalog", ""}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n", view.Path)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newCatalogClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every fingerprint from the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				if !isTerminal(cmd.InOrStdin()) {
					return errors.New("refusing to clear the catalog without --yes")
				}
				ok, err := promptYesNo(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete all catalog fingerprints? This cannot be undone")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Catalog left unchanged")
					return nil
				}
			}
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				removed, err := a.Catalog.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s catalog entries\n", humanize.Comma(removed))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func promptYesNo(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
