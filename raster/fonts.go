package raster

import (
	"fmt"
	"os"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

type FontAndFace struct {
	Font     *truetype.Font
	Face     font.Face
	baseSize float64
}

type Fonts struct {
	Regular *FontAndFace
	Bold    *FontAndFace
	Italic  *FontAndFace
	Mono    *FontAndFace
}

func (f Fonts) complete() bool {
	return f.Regular != nil && f.Bold != nil && f.Italic != nil && f.Mono != nil
}

// FontConfig names TTF files to use instead of the bundled Go fonts. Empty
// paths select the bundled face.
type FontConfig struct {
	RegularPath string
	BoldPath    string
	ItalicPath  string
	MonoPath    string
	SizeBase    float64 // paragraph font size in pt
}

func loadFontAndFace(ttf []byte, size float64) (*FontAndFace, error) {
	ft, err := truetype.Parse(ttf)
	if err != nil {
		return nil, err
	}
	face := truetype.NewFace(ft, &truetype.Options{Size: size, DPI: 96, Hinting: font.HintingFull})
	return &FontAndFace{Font: ft, Face: face, baseSize: size}, nil
}

func loadFace(path string, bundled []byte, size float64) (*FontAndFace, error) {
	data := bundled
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("raster: reading font: %w", err)
		}
		data = b
	}
	ff, err := loadFontAndFace(data, size)
	if err != nil {
		return nil, fmt.Errorf("raster: parsing font %s: %w", path, err)
	}
	return ff, nil
}

// LoadFonts returns a Fonts set using the provided FontConfig.
func LoadFonts(cfg FontConfig) (Fonts, error) {
	var f Fonts
	var err error
	if f.Regular, err = loadFace(cfg.RegularPath, goregular.TTF, cfg.SizeBase); err != nil {
		return f, err
	}
	if f.Bold, err = loadFace(cfg.BoldPath, gobold.TTF, cfg.SizeBase); err != nil {
		return f, err
	}
	if f.Italic, err = loadFace(cfg.ItalicPath, goitalic.TTF, cfg.SizeBase); err != nil {
		return f, err
	}
	if f.Mono, err = loadFace(cfg.MonoPath, gomono.TTF, cfg.SizeBase); err != nil {
		return f, err
	}
	return f, nil
}
