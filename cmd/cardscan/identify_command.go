package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cardscan/internal/app"
	"cardscan/internal/identify"
	"cardscan/internal/scanstats"
)

type identifyOptions struct {
	imagePath string
	text      string
	textFile  string
	action    string
	name      string
	method    string
	cardID    string
	jsonOut   bool
}

func newIdentifyCommand(ctx *commandContext) *cobra.Command {
	var opts identifyOptions

	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Identify a captured card from its image and recognized text",
		Long: `Runs one identification pass: the image is matched against the hash catalog
while the recognized text is resolved through extraction, learned patterns and
the fuzzy name cache. The recommendation is never applied on its own; choose
an action with --action, or answer the prompt when running in a terminal.

Examples:
  cardscan identify --image card.png --text-file ocr.txt
  cardscan identify --text "Charizrd 120 HP" --action confirm
  cardscan identify --text "Xyz123" --action correct --name Charizard`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			capture, err := opts.capture(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				session := a.Engine.Identify(cmd.Context(), capture)
				action := strings.ToLower(strings.TrimSpace(opts.action))
				if action == "" && !opts.jsonOut && isTerminal(cmd.InOrStdin()) {
					renderSession(cmd.OutOrStdout(), session.View())
					action, err = promptAction(cmd.InOrStdin(), cmd.OutOrStdout(), &opts)
					if err != nil {
						return err
					}
				} else if !opts.jsonOut {
					renderSession(cmd.OutOrStdout(), session.View())
				}
				if err := applyAction(cmd.Context(), a.Engine, session, action, opts); err != nil {
					return err
				}
				if opts.jsonOut {
					return writeJSON(cmd, session.View())
				}
				fmt.Fprintln(cmd.OutOrStdout(), describeOutcome(session.View()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.imagePath, "image", "", "Captured card image")
	cmd.Flags().StringVar(&opts.text, "text", "", "Recognized text for the card")
	cmd.Flags().StringVar(&opts.textFile, "text-file", "", "File holding the recognized text (- for stdin)")
	cmd.Flags().StringVar(&opts.action, "action", "", "Operator action: confirm, correct, retry or cancel")
	cmd.Flags().StringVar(&opts.name, "name", "", "Card name for confirm or correct (confirm defaults to the recommendation)")
	cmd.Flags().StringVar(&opts.method, "method", "", "Confirm method: text, manual or image_hash")
	cmd.Flags().StringVar(&opts.cardID, "card-id", "", "Card id recorded with a correction")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output the session as JSON")
	return cmd
}

func (o identifyOptions) capture(stdin io.Reader) (identify.Capture, error) {
	capture := identify.Capture{RawText: o.text, Source: "cli"}
	if o.textFile != "" {
		if o.text != "" {
			return capture, errors.New("use either --text or --text-file")
		}
		var (
			data []byte
			err  error
		)
		if o.textFile == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(o.textFile)
		}
		if err != nil {
			return capture, fmt.Errorf("read text: %w", err)
		}
		capture.RawText = string(data)
	}
	if o.imagePath != "" {
		data, err := os.ReadFile(o.imagePath)
		if err != nil {
			return capture, fmt.Errorf("read image: %w", err)
		}
		capture.ImageBytes = data
	}
	if strings.TrimSpace(capture.RawText) == "" && len(capture.ImageBytes) == 0 {
		return capture, errors.New("provide --image, --text or --text-file")
	}
	return capture, nil
}

func applyAction(ctx context.Context, engine *identify.Engine, session *identify.Session, action string, opts identifyOptions) error {
	switch action {
	case "":
		return nil
	case "confirm":
		var method scanstats.Kind
		if strings.TrimSpace(opts.method) != "" {
			kind, err := scanstats.ParseKind(opts.method)
			if err != nil {
				return err
			}
			method = kind
		}
		return engine.Confirm(ctx, session, opts.name, method)
	case "correct":
		return engine.Correct(ctx, session, opts.name, opts.cardID)
	case "retry":
		return engine.Retry(ctx, session)
	case "cancel":
		return engine.Cancel(session)
	default:
		return fmt.Errorf("unknown action %q (use confirm, correct, retry or cancel)", action)
	}
}

// promptAction asks the operator what to do with the session. A manual
// correction also asks for the name.
func promptAction(in io.Reader, out io.Writer, opts *identifyOptions) (string, error) {
	reader := bufio.NewReader(in)
	fmt.Fprint(out, "[c]onfirm, [m]anual correction, [r]etry, or [q]uit: ")
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "c", "confirm":
		return "confirm", nil
	case "m", "manual", "correct":
		fmt.Fprint(out, "Card name: ")
		name, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		opts.name = strings.TrimSpace(name)
		return "correct", nil
	case "r", "retry":
		return "retry", nil
	default:
		return "cancel", nil
	}
}

func renderSession(out io.Writer, view identify.View) {
	rows := [][]string{{"Session", view.ID}}
	text := view.Text
	switch {
	case text.Name != "":
		rows = append(rows, []string{"Text candidate", fmt.Sprintf("%s (%s)", text.Name, text.Origin)})
	case text.Extracted != nil && text.Weak:
		rows = append(rows, []string{"Text candidate", fmt.Sprintf("none (weak: %q)", text.Extracted.Text)})
	default:
		rows = append(rows, []string{"Text candidate", "none"})
	}
	for i, alt := range text.Alternatives {
		if i >= 3 {
			break
		}
		rows = append(rows, []string{"  alternative", fmt.Sprintf("%s %.2f", alt.Name, alt.Score)})
	}
	if h := view.Hash; h != nil {
		rows = append(rows,
			[]string{"Image match", fmt.Sprintf("%s [%s]", h.Name, h.CardID)},
			[]string{"  set", strings.TrimSpace(h.SetName + " " + h.Number)},
			[]string{"  distance", strconv.Itoa(h.Distance)},
			[]string{"  confidence", fmt.Sprintf("%.0f%%", h.Confidence)},
		)
	} else {
		rows = append(rows, []string{"Image match", "none"})
	}
	d := view.Details
	if d.HP != "" {
		rows = append(rows, []string{"HP", d.HP})
	}
	if d.Type != "" {
		rows = append(rows, []string{"Type", d.Type})
	}
	if d.Rarity != "" {
		rows = append(rows, []string{"Rarity", d.Rarity})
	}
	if d.SetNumber != "" {
		rows = append(rows, []string{"Set number", d.SetNumber})
	}
	fmt.Fprintln(out, renderTable([]string{"Identification", ""}, rows, nil))
	fmt.Fprintln(out, view.Recommendation.Message)
	if view.Recommendation.Name != "" {
		fmt.Fprintf(out, "Recommended: %s\n", view.Recommendation.Name)
	}
}

func describeOutcome(view identify.View) string {
	res := view.Resolution
	switch view.State {
	case identify.StateConfirmed:
		return fmt.Sprintf("Confirmed %s (%s)", res.Name, res.Method)
	case identify.StateCorrected:
		return fmt.Sprintf("Recorded correction: %s", res.Name)
	case identify.StateRetried:
		return "Retry requested; capture the card again"
	case identify.StateCancelled:
		return "Cancelled; nothing recorded"
	default:
		return "Session left pending; nothing recorded (use --action to confirm or correct)"
	}
}
