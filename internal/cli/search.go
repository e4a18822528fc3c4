package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/arran4/mdzen/markdown"
)

// contextBytes is how much text is shown on each side of a match.
const contextBytes = 30

func newCmdSearch() *cobra.Command {
	var caseSensitive bool
	cmd := &cobra.Command{
		Use:   "search FILE QUERY",
		Short: "List the matches of a query in a Markdown file",
		Example: `  mdzen search README.md install
  mdzen search notes.md TODO --case-sensitive`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("case-sensitive") {
				e.cfg.Search.CaseSensitive = caseSensitive
			}
			r := e.reader()
			defer r.Close()
			if err := r.LoadFile(args[0]); err != nil {
				return err
			}
			r.SetCaseSensitive(e.cfg.Search.CaseSensitive)

			w := cmd.OutOrStdout()
			n := r.SetQuery(args[1])
			if n == 0 {
				fmt.Fprintln(w, "No matches.")
				return nil
			}
			doc := r.Document()
			dim := color.New(color.Faint)
			hit := color.New(color.FgBlack, color.BgYellow)
			for i, m := range r.Matches() {
				node, ok := doc.Node(m.Node)
				if !ok {
					continue
				}
				pos, _ := doc.Position(m.Node)
				text := markdown.TextOf(node)
				before, match, after := excerpt(text, m.Start, m.End)
				fmt.Fprintf(w, "%s %s%s%s\n",
					dim.Sprintf("[%d/%d] block %d %s:", i+1, n, pos.Block+1, node.Kind()),
					before, hit.Sprint(match), after)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&caseSensitive, "case-sensitive", "s", false, "match case exactly")
	return cmd
}

// excerpt cuts text around [start, end) to one line of context.
func excerpt(text string, start, end int) (before, match, after string) {
	from := max(start-contextBytes, 0)
	to := min(end+contextBytes, len(text))
	for from > 0 && !isRuneStart(text[from]) {
		from--
	}
	for to < len(text) && !isRuneStart(text[to]) {
		to++
	}
	before = flatten(text[from:start])
	after = flatten(text[end:to])
	if from > 0 {
		before = "…" + before
	}
	if to < len(text) {
		after += "…"
	}
	return before, flatten(text[start:end]), after
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func flatten(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ", "\t", " ").Replace(s)
}
