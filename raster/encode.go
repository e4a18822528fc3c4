package raster

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
)

// Encode writes img as PNG or JPEG, chosen by a file extension such as
// ".png" or "jpg".
func Encode(w io.Writer, img image.Image, ext string) error {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png", "":
		return png.Encode(w, img)
	case "jpg", "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 92})
	}
	return fmt.Errorf("raster: unsupported output extension %q", ext)
}
