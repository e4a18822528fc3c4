package raster

import (
	"image"
	"image/color"
	"image/draw"
	"sort"
	"strings"
	"unicode"

	"github.com/arran4/mdzen/highlight"
	"github.com/arran4/mdzen/markdown"
	"github.com/golang/freetype"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
)

const initialHeight = 2048

type canvas struct {
	img         *image.RGBA
	dc          *freetype.Context
	w, h        int
	margin      int
	left, right int
	cursorY     int
	th          Theme
	fonts       Fonts
	ptSize      float64
}

func newCanvas(width, margin, side int, th Theme, fonts Fonts, ptSize float64) *canvas {
	img := image.NewRGBA(image.Rect(0, 0, width, initialHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(th.BG), image.Point{}, draw.Src)
	dc := freetype.NewContext()
	dc.SetDPI(96)
	dc.SetClip(img.Bounds())
	dc.SetDst(img)
	dc.SetSrc(image.NewUniform(th.FG))
	dc.SetFontSize(ptSize)
	return &canvas{
		img:     img,
		dc:      dc,
		w:       width,
		h:       initialHeight,
		margin:  margin,
		left:    side,
		right:   width - side,
		cursorY: margin,
		th:      th,
		fonts:   fonts,
		ptSize:  ptSize,
	}
}

// ensure grows the backing image so that rows up to y are drawable.
func (c *canvas) ensure(y int) {
	if y < c.h {
		return
	}
	h := c.h * 2
	for h <= y {
		h *= 2
	}
	img := image.NewRGBA(image.Rect(0, 0, c.w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c.th.BG), image.Point{}, draw.Src)
	draw.Draw(img, c.img.Bounds(), c.img, image.Point{}, draw.Src)
	c.img = img
	c.h = h
	c.dc.SetDst(img)
	c.dc.SetClip(img.Bounds())
}

func (c *canvas) fillRect(r image.Rectangle, col color.Color) {
	if r.Empty() {
		return
	}
	c.ensure(r.Max.Y)
	draw.Draw(c.img, r, image.NewUniform(col), image.Point{}, draw.Src)
}

func (c *canvas) setFace(fnt *FontAndFace, col color.Color, size float64) {
	c.dc.SetFontSize(size)
	c.dc.SetSrc(image.NewUniform(col))
	c.dc.SetFont(fnt.Font)
}

func (c *canvas) drawString(s string, x, baseline int, size float64) {
	c.ensure(baseline + int(size))
	_, _ = c.dc.DrawString(s, freetype.Pt(x, baseline))
}

func measureWidth(fnt *FontAndFace, size float64, s string) float64 {
	if fnt == nil || s == "" {
		return 0
	}
	d := font.Drawer{Face: fnt.Face}
	width := float64(d.MeasureString(s).Round())
	base := fnt.baseSize
	if base <= 0 {
		base = size
	}
	if size <= 0 || base <= 0 {
		return width
	}
	if size != base {
		width *= size / base
	}
	return width
}

func (c *canvas) addVSpace(px int) { c.cursorY += px }

func (c *canvas) drawHRule(left, right int) {
	y := c.cursorY + 4
	c.fillRect(image.Rect(left, y, right, y+2), c.th.HRule)
	c.cursorY = y + 10
}

func (c *canvas) drawBlockquoteBar(x, topY, height int) {
	c.fillRect(image.Rect(x, topY, x+4, topY+height), c.th.QuoteBar)
}

func scaleImageToWidth(img image.Image, maxWidth int) image.Image {
	if img == nil || maxWidth <= 0 {
		return img
	}
	bounds := img.Bounds()
	if bounds.Dx() <= maxWidth {
		return img
	}
	scale := float64(maxWidth) / float64(bounds.Dx())
	height := int(float64(bounds.Dy()) * scale)
	if height <= 0 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

// mark is the search highlight state of a run of text.
type mark int

const (
	markNone mark = iota
	markMatch
	markCurrent
)

// markRange marks text[start:end] of one node.
type markRange struct {
	start, end int
	kind       mark
}

func markAt(marks []markRange, off int) mark {
	for _, m := range marks {
		if off >= m.start && off < m.end {
			return m.kind
		}
	}
	return markNone
}

func (c *canvas) markColor(m mark) color.Color {
	if m == markCurrent {
		return c.th.Current
	}
	return c.th.Match
}

// codeLine is one visual line of a code block: code[start:start+len(text)].
type codeLine struct {
	text  string
	start int
}

// wrapCode splits code into visual lines no wider than maxWidth, keeping
// every byte's offset. Concatenating the pieces of one source line gives the
// line back.
func wrapCode(ff *FontAndFace, size float64, code string, maxWidth float64) []codeLine {
	var out []codeLine
	off := 0
	for _, ln := range strings.Split(code, "\n") {
		text := strings.TrimSuffix(ln, "\r")
		if text == "" || maxWidth <= 0 || measureWidth(ff, size, text) <= maxWidth {
			out = append(out, codeLine{text: text, start: off})
		} else {
			pos := off
			for _, piece := range wrapLinePreservingSpaces(ff, size, text, maxWidth) {
				out = append(out, codeLine{text: piece, start: pos})
				pos += len(piece)
			}
		}
		off += len(ln) + 1
	}
	return out
}

func wrapLinePreservingSpaces(ff *FontAndFace, size float64, line string, maxWidth float64) []string {
	if line == "" {
		return []string{""}
	}
	var result []string
	var current strings.Builder
	var currentWidth float64

	flush := func() {
		result = append(result, current.String())
		current.Reset()
		currentWidth = 0
	}

	for _, token := range splitTextPreserveSpaces(line) {
		tokenWidth := measureWidth(ff, size, token)
		if tokenWidth > maxWidth {
			if current.Len() > 0 {
				flush()
			}
			result = append(result, breakLongToken(ff, size, token, maxWidth)...)
			continue
		}
		if currentWidth+tokenWidth > maxWidth && current.Len() > 0 {
			flush()
		}
		current.WriteString(token)
		currentWidth += tokenWidth
	}
	if current.Len() > 0 {
		flush()
	}
	if len(result) == 0 {
		result = append(result, "")
	}
	return result
}

func breakLongToken(ff *FontAndFace, size float64, token string, maxWidth float64) []string {
	var parts []string
	var current strings.Builder
	var width float64
	for _, r := range token {
		ch := string(r)
		charWidth := measureWidth(ff, size, ch)
		if width+charWidth > maxWidth && current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
			width = 0
		}
		current.WriteString(ch)
		width += charWidth
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	if len(parts) == 0 {
		parts = append(parts, token)
	}
	return parts
}

func splitTextPreserveSpaces(s string) []string {
	var parts []string
	var current strings.Builder
	lastSpace := false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if i > 0 && space != lastSpace {
			parts = append(parts, current.String())
			current.Reset()
		}
		current.WriteRune(r)
		lastSpace = space
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// drawCodeBlock paints a code block. spans colour the text; marks paint
// search highlights behind it.
func (c *canvas) drawCodeBlock(code string, spans []highlight.Span, marks []markRange, left, right int, size float64) {
	pad := 10
	top := c.cursorY
	mono := c.fonts.Mono
	lines := wrapCode(mono, size, code, float64(right-left-2*pad))
	lineHeight := int(size * 1.4)
	height := len(lines)*lineHeight + 2*pad + 6
	c.fillRect(image.Rect(left, top, right, top+height), c.th.CodeBG)

	y := top + pad + int(size)
	for _, ln := range lines {
		c.drawCodeLine(ln, spans, marks, left+pad, y, size)
		y += lineHeight
	}
	c.cursorY = top + height + 6
}

func (c *canvas) drawCodeLine(ln codeLine, spans []highlight.Span, marks []markRange, x, baseline int, size float64) {
	end := ln.start + len(ln.text)
	cuts := []int{ln.start, end}
	for _, s := range spans {
		if s.Start > ln.start && s.Start < end {
			cuts = append(cuts, s.Start)
		}
	}
	for _, m := range marks {
		for _, p := range []int{m.start, m.end} {
			if p > ln.start && p < end {
				cuts = append(cuts, p)
			}
		}
	}
	sort.Ints(cuts)
	mono := c.fonts.Mono
	for i := 0; i+1 < len(cuts); i++ {
		a, b := cuts[i], cuts[i+1]
		if a == b {
			continue
		}
		run := ln.text[a-ln.start : b-ln.start]
		width := int(measureWidth(mono, size, run))
		if m := markAt(marks, a); m != markNone {
			c.fillRect(image.Rect(x, baseline-int(size), x+width, baseline+int(size*0.35)), c.markColor(m))
		}
		c.setFace(mono, c.spanColor(spans, a), size)
		c.drawString(run, x, baseline, size)
		x += width
	}
}

func (c *canvas) spanColor(spans []highlight.Span, off int) color.Color {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].End > off })
	if i < len(spans) && spans[i].Start <= off {
		if col, ok := parseHex(spans[i].Style.Color); ok {
			return col
		}
	}
	return c.th.FG
}

type textToken struct {
	text      string
	font      *FontAndFace
	size      float64
	color     color.Color
	underline bool
	strike    bool
	mark      mark
	newline   bool
	image     image.Image
	center    bool
}

type styledWord struct {
	text      string
	font      *FontAndFace
	size      float64
	color     color.Color
	underline bool
	strike    bool
	mark      mark
	width     float64
}

type lineMetric struct {
	baseline int
	height   int
}

func (c *canvas) drawTokens(tokens []textToken, left, right int) []lineMetric {
	return c.drawTokensAligned(tokens, left, right, markdown.AlignNone)
}

// drawTokensAligned lays tokens out in wrapped lines between left and right.
func (c *canvas) drawTokensAligned(tokens []textToken, left, right int, align markdown.Alignment) []lineMetric {
	if len(tokens) == 0 {
		return nil
	}
	maxWidth := float64(right - left)
	var line []styledWord
	var lineWidth float64
	var lineMaxSize float64
	var metrics []lineMetric

	flush := func(force bool) {
		if len(line) == 0 {
			if force {
				size := lineMaxSize
				if size == 0 {
					size = c.ptSize
				}
				c.cursorY += int(size * 1.4)
			}
			return
		}
		size := lineMaxSize
		if size == 0 {
			size = c.ptSize
		}
		baseline := c.cursorY + int(size)
		visible := lineWidth
		for i := len(line) - 1; i >= 0 && strings.TrimSpace(line[i].text) == ""; i-- {
			visible -= line[i].width
		}
		x := left
		switch align {
		case markdown.AlignCenter:
			x += int(maxWidth-visible) / 2
		case markdown.AlignRight:
			x += int(maxWidth - visible)
		}
		if x < left {
			x = left
		}
		for _, w := range line {
			width := int(w.width)
			if w.mark != markNone && width > 0 {
				c.fillRect(image.Rect(x, baseline-int(w.size), x+width, baseline+int(w.size*0.35)), c.markColor(w.mark))
			}
			c.setFace(w.font, w.color, w.size)
			c.drawString(w.text, x, baseline, w.size)
			if w.underline && width > 0 {
				y := baseline + int(w.size*0.12)
				if y <= baseline {
					y = baseline + 1
				}
				c.fillRect(image.Rect(x, y, x+width, y+1), w.color)
			}
			if w.strike && width > 0 {
				y := baseline - int(w.size*0.3)
				c.fillRect(image.Rect(x, y, x+width, y+1), w.color)
			}
			x += width
		}
		lineHeight := int(size * 1.4)
		metrics = append(metrics, lineMetric{baseline: baseline, height: lineHeight})
		c.cursorY += lineHeight
		line = line[:0]
		lineWidth = 0
		lineMaxSize = 0
	}

	for _, tok := range tokens {
		if tok.newline {
			flush(true)
			continue
		}
		if tok.image != nil {
			flush(false)
			maxWidthInt := int(maxWidth)
			img := scaleImageToWidth(tok.image, maxWidthInt)
			bounds := img.Bounds()
			startY := c.cursorY
			x := left
			if tok.center && maxWidthInt > bounds.Dx() {
				x += (maxWidthInt - bounds.Dx()) / 2
			}
			rect := image.Rect(x, startY, x+bounds.Dx(), startY+bounds.Dy())
			c.ensure(rect.Max.Y)
			draw.Draw(c.img, rect, img, bounds.Min, draw.Over)
			metrics = append(metrics, lineMetric{baseline: rect.Max.Y, height: bounds.Dy()})
			c.cursorY += bounds.Dy() + int(c.ptSize*0.6)
			continue
		}
		fnt := tok.font
		if fnt == nil {
			fnt = c.fonts.Regular
		}
		for _, seg := range splitTextPreserveSpaces(tok.text) {
			width := measureWidth(fnt, tok.size, seg)
			w := styledWord{
				text:      seg,
				font:      fnt,
				size:      tok.size,
				color:     tok.color,
				underline: tok.underline,
				strike:    tok.strike,
				mark:      tok.mark,
				width:     width,
			}
			if strings.TrimSpace(seg) == "" {
				if len(line) == 0 {
					continue
				}
				line = append(line, w)
				lineWidth += width
				continue
			}
			if lineWidth+width > maxWidth && len(line) > 0 {
				flush(false)
			}
			line = append(line, w)
			if tok.size > lineMaxSize {
				lineMaxSize = tok.size
			}
			lineWidth += width
		}
	}
	flush(false)
	return metrics
}
