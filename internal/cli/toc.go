package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/arran4/mdzen/toc"
)

func newCmdTOC() *cobra.Command {
	return &cobra.Command{
		Use:   "toc FILE",
		Short: "Print the table of contents of a Markdown file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			r := e.reader()
			defer r.Close()
			if err := r.LoadFile(args[0]); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			entries := r.TOC()
			if len(entries) == 0 {
				fmt.Fprintln(w, "No headings.")
				return nil
			}
			bold := color.New(color.Bold)
			dim := color.New(color.Faint)
			for _, entry := range entries {
				indent := strings.Repeat("  ", toc.Indent(entries, entry))
				title := entry.Title
				if toc.Indent(entries, entry) == 0 {
					title = bold.Sprint(title)
				}
				fmt.Fprintf(w, "%s%s %s\n", indent, title, dim.Sprint("#"+entry.Target.Anchor))
			}
			return nil
		},
	}
}
