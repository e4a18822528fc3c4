package raster

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

type Theme struct {
	BG       color.Color
	FG       color.Color
	CodeBG   color.Color
	QuoteBar color.Color
	HRule    color.Color
	Link     color.Color
	Warning  color.Color
	// Match is painted behind search matches, Current behind the active one.
	Match   color.Color
	Current color.Color
}

var (
	LightTheme = Theme{
		BG:       color.RGBA{0xFF, 0xFF, 0xFF, 0xFF},
		FG:       color.RGBA{0x11, 0x11, 0x11, 0xFF},
		CodeBG:   color.RGBA{0xF5, 0xF5, 0xF7, 0xFF},
		QuoteBar: color.RGBA{0xCC, 0xCC, 0xCC, 0xFF},
		HRule:    color.RGBA{0xDD, 0xDD, 0xDD, 0xFF},
		Link:     color.RGBA{0x06, 0x4F, 0xBD, 0xFF},
		Warning:  color.RGBA{0xD9, 0x51, 0x2C, 0xFF},
		Match:    color.RGBA{0xFF, 0xEB, 0x7A, 0xFF},
		Current:  color.RGBA{0xFF, 0xA5, 0x2E, 0xFF},
	}
	DarkTheme = Theme{
		BG:       color.RGBA{0x12, 0x12, 0x14, 0xFF},
		FG:       color.RGBA{0xEE, 0xEE, 0xF0, 0xFF},
		CodeBG:   color.RGBA{0x1E, 0x1E, 0x22, 0xFF},
		QuoteBar: color.RGBA{0x44, 0x44, 0x48, 0xFF},
		HRule:    color.RGBA{0x33, 0x33, 0x36, 0xFF},
		Link:     color.RGBA{0x6C, 0xA8, 0xFF, 0xFF},
		Warning:  color.RGBA{0xF0, 0x7A, 0x55, 0xFF},
		Match:    color.RGBA{0x6B, 0x5B, 0x12, 0xFF},
		Current:  color.RGBA{0xB0, 0x6A, 0x10, 0xFF},
	}
)

// ThemeByName returns a built-in theme by name ("light" or "dark").
func ThemeByName(name string) (Theme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "light", "":
		return LightTheme, nil
	case "dark":
		return DarkTheme, nil
	}
	return Theme{}, fmt.Errorf("raster: unknown theme %q", name)
}

// parseHex reads "#rrggbb". ok is false for anything else.
func parseHex(s string) (color.RGBA, bool) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 0xFF}, true
}
