// Package cli implements the mdzen command line.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/arran4/mdzen"
	"github.com/arran4/mdzen/highlight"
	"github.com/arran4/mdzen/imagecache"
	"github.com/arran4/mdzen/internal/config"
	"github.com/arran4/mdzen/search"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

// NewCmdRoot creates the root command for mdzen.
func NewCmdRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mdzen",
		Short: "Read, search and preview Markdown documents",
		Long: `mdzen parses a Markdown document once and derives a table of contents,
search matches, highlighted code and resolved images from it.

The render and watch commands paint the document to a PNG or JPEG preview.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "config file (default: ~/.config/mdzen/config.yml)")
	cmd.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	cmd.AddCommand(newCmdRender())
	cmd.AddCommand(newCmdTOC())
	cmd.AddCommand(newCmdSearch())
	cmd.AddCommand(newCmdWatch())
	cmd.AddCommand(newCmdVersion())
	return cmd
}

func newCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mdzen version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mdzen version %s\n", Version)
		},
	}
}

// env is the state every subcommand starts from.
type env struct {
	cfg *config.Config
	log *logrus.Logger
}

func setup(cmd *cobra.Command) (*env, error) {
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		color.NoColor = true
	}
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
		if err := cfg.Log.Validate(); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}

	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetLevel(cfg.Log.Logrus())
	log.WithField("config", path).Debug("mdzen: config loaded")
	return &env{cfg: cfg, log: log}, nil
}

func (e *env) reader() *mdzen.Reader {
	return mdzen.New(mdzen.Options{
		Highlight: highlight.Options{
			Style:     e.cfg.Highlight.Style,
			Threshold: e.cfg.Highlight.Threshold,
			CacheSize: e.cfg.Highlight.CacheSize,
		},
		Images: imagecache.Options{
			MaxEntries:   e.cfg.Images.CacheSize,
			Workers:      e.cfg.Images.Workers,
			FetchTimeout: e.cfg.Images.FetchTimeout,
		},
		Search: search.Options{CaseSensitive: e.cfg.Search.CaseSensitive},
		Logger: e.log,
	})
}
