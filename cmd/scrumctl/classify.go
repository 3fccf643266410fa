package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ashureev/scrum-ai/internal/directive"
	"github.com/spf13/cobra"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [text...]",
		Short: "Show the directive and display text derived from an assistant message",
		Long: `Classifies assistant text with the same rules the gateway uses.
Without arguments the text is read from stdin.

Example:
  scrumctl classify "¿En qué área deseas trabajar?"
  pbpaste | scrumctl classify --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}
			return runClassify(cmd.OutOrStdout(), text, flagJSON)
		},
	}
}

func runClassify(w io.Writer, text string, asJSON bool) error {
	d, stage := directive.Default.ClassifyTrace(text)
	rendered := directive.Rendered{Text: directive.Default.Sanitize(text, d), Directive: d}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			directive.Rendered
			Stage string `json:"stage,omitempty"`
		}{rendered, stage})
	}

	if stage == "" {
		stage = "-"
	}
	fmt.Fprintf(w, "kind:  %s\nstage: %s\n", d.Kind, stage)
	fmt.Fprintln(w, "---")
	fmt.Fprintln(w, rendered.Text)
	if !d.IsNone() {
		fmt.Fprintln(w, "---")
		writeWidgets(w, d)
	}
	return nil
}

// writeWidgets prints the clickable parts of a directive.
func writeWidgets(w io.Writer, d directive.Directive) {
	switch d.Kind {
	case directive.KindSectionMenu:
		for _, o := range d.Menu {
			fmt.Fprintf(w, "  [%d] %s\n", o.Number, o.Title)
		}
	case directive.KindActionMenu:
		for i, a := range d.Actions {
			fmt.Fprintf(w, "  (%d) %s: %s\n", i, a.Label, a.ContextPhrase)
		}
	case directive.KindInputForm:
		for _, f := range d.Fields {
			line := fmt.Sprintf("  %s: %s (%s)", f.ID, f.Label, f.Kind)
			if len(f.Options) > 0 {
				line += " " + strings.Join(f.Options, " | ")
			}
			fmt.Fprintln(w, line)
		}
	}
}
