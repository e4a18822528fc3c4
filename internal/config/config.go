// Package config holds the mdzen settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Font size limits for the reading view, in points.
const (
	MinFontSize     = 8
	MaxFontSize     = 32
	FontSizeStep    = 2
	DefaultFontSize = 14
)

// Themes.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Config represents the application configuration.
type Config struct {
	View      ViewConfig      `yaml:"view"`
	Highlight HighlightConfig `yaml:"highlight"`
	Images    ImageConfig     `yaml:"images"`
	Search    SearchConfig    `yaml:"search"`
	Log       LogConfig       `yaml:"log"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.View.Validate(); err != nil {
		return fmt.Errorf("view: %w", err)
	}
	if err := c.Highlight.Validate(); err != nil {
		return fmt.Errorf("highlight: %w", err)
	}
	if err := c.Images.Validate(); err != nil {
		return fmt.Errorf("images: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// ViewConfig holds the reading view settings.
type ViewConfig struct {
	FontSize int `yaml:"font_size"`
	// Wide trades the centred reading column for nearly full-width text.
	Wide  bool   `yaml:"wide"`
	Width int    `yaml:"width"`
	Theme string `yaml:"theme"`
}

// Validate validates the view configuration.
func (c *ViewConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FontSize, validation.Required, validation.Min(MinFontSize), validation.Max(MaxFontSize)),
		validation.Field(&c.Width, validation.Required, validation.Min(200), validation.Max(10000)),
		validation.Field(&c.Theme, validation.Required, validation.In(ThemeLight, ThemeDark)),
	)
}

// ZoomIn grows the font by one step up to MaxFontSize.
func (c *ViewConfig) ZoomIn() {
	c.FontSize = min(c.FontSize+FontSizeStep, MaxFontSize)
}

// ZoomOut shrinks the font by one step down to MinFontSize.
func (c *ViewConfig) ZoomOut() {
	c.FontSize = max(c.FontSize-FontSizeStep, MinFontSize)
}

func (c *ViewConfig) ResetZoom() { c.FontSize = DefaultFontSize }

// HighlightConfig holds syntax highlighting settings.
type HighlightConfig struct {
	Style string `yaml:"style"`
	// Threshold is the code size in bytes above which highlighting runs in
	// the background.
	Threshold int `yaml:"threshold"`
	CacheSize int `yaml:"cache_size"`
}

// Validate validates the highlight configuration.
func (c *HighlightConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Style, validation.Required),
		validation.Field(&c.Threshold, validation.Required, validation.Min(1)),
		validation.Field(&c.CacheSize, validation.Required, validation.Min(1)),
	)
}

// ImageConfig holds image cache settings. CacheSize 0 keeps every image for
// the life of the process; FetchTimeout 0 disables the timeout.
type ImageConfig struct {
	CacheSize    int           `yaml:"cache_size"`
	Workers      int           `yaml:"workers"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// Validate validates the image configuration.
func (c *ImageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CacheSize, validation.Min(0)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.FetchTimeout, validation.Min(time.Duration(0))),
	)
}

type SearchConfig struct {
	CaseSensitive bool `yaml:"case_sensitive"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.Required, validation.In("trace", "debug", "info", "warn", "warning", "error")),
	)
}

// Logrus returns the configured level, defaulting to info.
func (c *LogConfig) Logrus() logrus.Level {
	lvl, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		View: ViewConfig{
			FontSize: DefaultFontSize,
			Width:    800,
			Theme:    ThemeLight,
		},
		Highlight: HighlightConfig{
			Style:     "onedark",
			Threshold: 32 << 10,
			CacheSize: 256,
		},
		Images: ImageConfig{
			Workers: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validator is implemented by configuration types that check themselves.
type Validator interface {
	Validate() error
}

// Load reads a YAML file into target with ${VAR} expansion and validates
// the result when target implements Validator.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// LoadWithEnv loads path over the defaults, applies MDZEN_* overrides and
// validates. A missing file is not an error.
func LoadWithEnv(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv applies MDZEN_* environment overrides. Unset or empty
// variables leave the current value alone.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("MDZEN_THEME"); v != "" {
		c.View.Theme = v
	}
	if v := os.Getenv("MDZEN_HIGHLIGHT_STYLE"); v != "" {
		c.Highlight.Style = v
	}
	if v := os.Getenv("MDZEN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"MDZEN_FONT_SIZE", &c.View.FontSize},
		{"MDZEN_WIDTH", &c.View.Width},
		{"MDZEN_HIGHLIGHT_THRESHOLD", &c.Highlight.Threshold},
		{"MDZEN_IMAGE_CACHE_SIZE", &c.Images.CacheSize},
		{"MDZEN_IMAGE_WORKERS", &c.Images.Workers},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = n
	}
	bools := []struct {
		name string
		dst  *bool
	}{
		{"MDZEN_WIDE", &c.View.Wide},
		{"MDZEN_CASE_SENSITIVE", &c.Search.CaseSensitive},
	}
	for _, e := range bools {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = b
	}
	if v := os.Getenv("MDZEN_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MDZEN_FETCH_TIMEOUT: %w", err)
		}
		c.Images.FetchTimeout = d
	}
	return nil
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mdzen", "config.yml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".mdzen", "config.yml")
	}
	return filepath.Join(home, ".config", "mdzen", "config.yml")
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
