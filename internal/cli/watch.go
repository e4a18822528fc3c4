package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/arran4/mdzen/internal/watch"
)

func newCmdWatch() *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Re-render a Markdown file whenever it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := opts.apply(e); err != nil {
				return err
			}
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt)
			defer stop()

			r := e.reader()
			defer r.Close()
			path := args[0]
			rerender := func() {
				if err := r.LoadFile(path); err != nil {
					e.log.WithError(err).Error("mdzen: reload failed")
					return
				}
				if opts.query != "" {
					r.SetQuery(opts.query)
				}
				if err := renderFile(ctx, e, r, opts); err != nil {
					e.log.WithError(err).Error("mdzen: render failed")
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (generation %d)\n", opts.output, r.Generation())
			}
			rerender()
			return watch.File(ctx, path, 0, e.log, rerender)
		},
	}
	opts.bind(cmd)
	return cmd
}
