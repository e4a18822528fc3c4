package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/arran4/mdzen"
	"github.com/arran4/mdzen/raster"
)

type renderOptions struct {
	output   string
	query    string
	theme    string
	width    int
	fontSize int
	wide     bool
	footnote bool
	timeout  time.Duration
}

func (o *renderOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.output, "output", "o", "out.png", "output image (.png or .jpg)")
	cmd.Flags().StringVarP(&o.query, "query", "q", "", "highlight matches of this query")
	cmd.Flags().StringVar(&o.theme, "theme", "", "theme: light or dark (default from config)")
	cmd.Flags().IntVar(&o.width, "width", 0, "image width in pixels (default from config)")
	cmd.Flags().IntVar(&o.fontSize, "font-size", 0, "base font size in points (default from config)")
	cmd.Flags().BoolVar(&o.wide, "wide", false, "use nearly the full width for text")
	cmd.Flags().BoolVar(&o.footnote, "link-footnotes", true, "list link targets as footnotes")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 30*time.Second, "how long to wait for images and highlighting")
}

// apply folds flags over the loaded configuration.
func (o *renderOptions) apply(e *env) error {
	if o.theme != "" {
		e.cfg.View.Theme = o.theme
	}
	if o.width > 0 {
		e.cfg.View.Width = o.width
	}
	if o.fontSize > 0 {
		e.cfg.View.FontSize = o.fontSize
	}
	if o.wide {
		e.cfg.View.Wide = true
	}
	return e.cfg.View.Validate()
}

func newCmdRender() *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render a Markdown file to an image",
		Example: `  mdzen render README.md -o readme.png
  mdzen render notes.md --theme dark --wide --query TODO -o notes.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			if err := opts.apply(e); err != nil {
				return err
			}
			r := e.reader()
			defer r.Close()
			if err := r.LoadFile(args[0]); err != nil {
				return err
			}
			if opts.query != "" {
				r.SetQuery(opts.query)
			}
			if err := renderFile(cmd.Context(), e, r, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.output)
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

// renderFile waits for background work to settle and writes the current
// document to opts.output.
func renderFile(ctx context.Context, e *env, r *mdzen.Reader, opts *renderOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	settleCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	if err := r.Settle(settleCtx); err != nil {
		e.log.WithError(err).Warn("mdzen: rendering before background work finished")
	}

	th, err := raster.ThemeByName(e.cfg.View.Theme)
	if err != nil {
		return err
	}
	start := time.Now()
	img, err := raster.Render(r.Document(), r, raster.RenderOptions{
		Width:          e.cfg.View.Width,
		Wide:           e.cfg.View.Wide,
		BaseFontSize:   float64(e.cfg.View.FontSize),
		Theme:          th,
		LinkFootnotes:  &opts.footnote,
		CodeBackground: r.Highlighter().Background(),
	})
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	f, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("creating %s: %w", opts.output, err)
	}
	if err := raster.Encode(f, img, filepath.Ext(opts.output)); err != nil {
		_ = f.Close()
		return fmt.Errorf("encoding %s: %w", opts.output, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", opts.output, err)
	}
	e.log.WithFields(logrus.Fields{
		"output":     opts.output,
		"generation": r.Generation(),
		"height":     img.Bounds().Dy(),
		"elapsed":    time.Since(start),
	}).Info("mdzen: rendered")
	return nil
}
