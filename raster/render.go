// Package raster paints a parsed document onto an image.
//
// It is a preview surface, not a layout engine: headings, paragraphs, lists,
// block quotes, tables, rules, highlighted code and images are drawn top to
// bottom in a single column, wrapped to the output width.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sort"
	"strings"

	"github.com/arran4/mdzen/highlight"
	"github.com/arran4/mdzen/imagecache"
	"github.com/arran4/mdzen/markdown"
	"github.com/arran4/mdzen/search"
)

// View supplies the derived state a frame is painted from. *mdzen.Reader
// implements it.
type View interface {
	Spans(id markdown.NodeID) ([]highlight.Span, bool)
	Image(source string) imagecache.Entry
	MatchesIn(id markdown.NodeID) []search.Match
	CurrentMatch() (search.Match, int, bool)
}

// staticView renders a bare document: neutral code, no images, no matches.
type staticView struct{ doc *markdown.Document }

func (v staticView) Spans(id markdown.NodeID) ([]highlight.Span, bool) {
	n, ok := v.doc.Node(id)
	if !ok {
		return nil, false
	}
	return highlight.Neutral(markdown.TextOf(n)), true
}

func (staticView) Image(source string) imagecache.Entry {
	return imagecache.Entry{Key: source, State: imagecache.Pending}
}

func (staticView) MatchesIn(markdown.NodeID) []search.Match { return nil }

func (staticView) CurrentMatch() (search.Match, int, bool) { return search.Match{}, -1, false }

const (
	listMarkerWidth = 28
	listMarkerGap   = 8
	quoteIndent     = 14
)

type renderer struct {
	c              *canvas
	view           View
	baseSize       float64
	linkFootnotes  bool
	imageFootnotes bool
	footnoteIndex  map[string]int
	footnotes      []string
}

func (r *renderer) ensureFootnote(raw string) int {
	if strings.TrimSpace(raw) == "" {
		return 0
	}
	if r.footnoteIndex == nil {
		r.footnoteIndex = make(map[string]int)
	}
	if idx, ok := r.footnoteIndex[raw]; ok {
		return idx
	}
	r.footnotes = append(r.footnotes, raw)
	r.footnoteIndex[raw] = len(r.footnotes)
	return len(r.footnotes)
}

func (r *renderer) appendFootnoteMarker(out *[]textToken, size float64, index int) {
	if index <= 0 {
		return
	}
	*out = append(*out, textToken{
		text:  fmt.Sprintf("[%d]", index),
		font:  r.c.fonts.Regular,
		size:  size * 0.75,
		color: r.c.th.FG,
	})
}

// marksFor returns the search highlights inside node id.
func (r *renderer) marksFor(id markdown.NodeID) []markRange {
	matches := r.view.MatchesIn(id)
	if len(matches) == 0 {
		return nil
	}
	cur, _, hasCur := r.view.CurrentMatch()
	out := make([]markRange, 0, len(matches))
	for _, m := range matches {
		kind := markMatch
		if hasCur && m == cur {
			kind = markCurrent
		}
		out = append(out, markRange{start: m.Start, end: m.End, kind: kind})
	}
	return out
}

// inlineStyle is the styling inherited by nested inline nodes.
type inlineStyle struct {
	font      *FontAndFace
	size      float64
	color     color.Color
	underline bool
	strike    bool
}

// inlineWriter turns inline nodes into tokens while tracking the byte offset
// into the owning node's flattened text so search marks line up.
type inlineWriter struct {
	r     *renderer
	out   []textToken
	off   int
	marks []markRange
}

func (r *renderer) inlineTokens(owner markdown.NodeID, nodes []markdown.Node, st inlineStyle) []textToken {
	w := &inlineWriter{r: r, marks: r.marksFor(owner)}
	w.collect(nodes, st)
	return w.out
}

func (w *inlineWriter) text(s string, st inlineStyle) {
	if s == "" {
		return
	}
	start, end := w.off, w.off+len(s)
	cuts := []int{start}
	for _, m := range w.marks {
		for _, p := range []int{m.start, m.end} {
			if p > start && p < end {
				cuts = append(cuts, p)
			}
		}
	}
	cuts = append(cuts, end)
	sort.Ints(cuts)
	for i := 0; i+1 < len(cuts); i++ {
		a, b := cuts[i], cuts[i+1]
		if a == b {
			continue
		}
		w.out = append(w.out, textToken{
			text:      s[a-start : b-start],
			font:      st.font,
			size:      st.size,
			color:     st.color,
			underline: st.underline,
			strike:    st.strike,
			mark:      markAt(w.marks, a),
		})
	}
	w.off = end
}

func (w *inlineWriter) collect(nodes []markdown.Node, st inlineStyle) {
	r := w.r
	for _, n := range nodes {
		switch v := n.(type) {
		case *markdown.Text:
			w.text(v.Value, st)
		case *markdown.CodeSpan:
			mono := st
			mono.font = r.c.fonts.Mono
			mono.size = st.size * 0.95
			w.text(v.Value, mono)
		case *markdown.LineBreak:
			if v.Hard {
				w.off++
				w.out = append(w.out, textToken{newline: true})
			} else {
				w.text(" ", st)
			}
		case *markdown.Styled:
			next := st
			switch v.Style {
			case markdown.Bold:
				next.font = r.c.fonts.Bold
			case markdown.Italic:
				next.font = r.c.fonts.Italic
			case markdown.Strikethrough:
				next.strike = true
			}
			w.collect(v.Children, next)
		case *markdown.Link:
			next := st
			next.color = r.c.th.Link
			next.underline = true
			w.collect(v.Inlines, next)
			if r.linkFootnotes {
				r.appendFootnoteMarker(&w.out, st.size, r.ensureFootnote(v.Destination))
			}
		case *markdown.Image:
			w.image(v, st)
		default:
			w.collect(markdown.Children(n), st)
		}
	}
}

func (w *inlineWriter) image(img *markdown.Image, st inlineStyle) {
	r := w.r
	label := strings.TrimSpace(img.Alt)
	if label == "" {
		label = strings.TrimSpace(img.Title)
	}
	if label == "" {
		label = img.Source
	}
	e := r.view.Image(img.Source)
	switch e.State {
	case imagecache.Loaded:
		if e.Image == nil {
			break
		}
		w.out = append(w.out, textToken{image: e.Image, center: true})
	case imagecache.Failed:
		w.out = append(w.out, textToken{text: "[image failed: " + label + "]", font: st.font, size: st.size, color: r.c.th.Warning})
	default:
		w.out = append(w.out, textToken{text: "[loading image: " + label + "]", font: st.font, size: st.size, color: r.c.th.QuoteBar})
	}
	if r.imageFootnotes {
		r.appendFootnoteMarker(&w.out, st.size, r.ensureFootnote(img.Source))
	}
}

func (r *renderer) plain(size float64) inlineStyle {
	return inlineStyle{font: r.c.fonts.Regular, size: size, color: r.c.th.FG}
}

func headingSize(base float64, level int) float64 {
	switch level {
	case 1:
		return base * 1.9
	case 2:
		return base * 1.6
	case 3:
		return base * 1.4
	case 4:
		return base * 1.25
	}
	return base * 1.15
}

// renderBlock draws one block between left and right and returns the
// baseline of its first text line, or 0 if it has none.
func (r *renderer) renderBlock(n markdown.Node, left, right int) int {
	switch v := n.(type) {
	case *markdown.Heading:
		st := r.plain(headingSize(r.baseSize, v.Level))
		st.font = r.c.fonts.Bold
		r.c.addVSpace(int(r.baseSize * 0.75))
		metrics := r.c.drawTokens(r.inlineTokens(v.ID(), v.Inlines, st), left, right)
		r.c.addVSpace(int(r.baseSize * 0.5))
		return firstBaseline(metrics)
	case *markdown.Paragraph:
		tokens := r.inlineTokens(v.ID(), v.Inlines, r.plain(r.baseSize))
		if len(tokens) == 0 {
			return 0
		}
		metrics := r.c.drawTokens(tokens, left, right)
		r.c.addVSpace(int(r.baseSize * 0.9))
		return firstBaseline(metrics)
	case *markdown.CodeBlock:
		spans, _ := r.view.Spans(v.ID())
		r.c.addVSpace(4)
		top := r.c.cursorY
		size := r.baseSize * 0.95
		r.c.drawCodeBlock(v.Code, spans, r.marksFor(v.ID()), left, right, size)
		return top + 10 + int(size)
	case *markdown.List:
		return r.renderList(v, left, right)
	case *markdown.Blockquote:
		start := r.c.cursorY
		r.c.addVSpace(2)
		first := 0
		for _, child := range v.Children {
			if b := r.renderBlock(child, left+quoteIndent, right); first == 0 {
				first = b
			}
		}
		r.c.addVSpace(6)
		r.c.drawBlockquoteBar(left, start+2, r.c.cursorY-start-2)
		return first
	case *markdown.Table:
		r.renderTable(v, left, right)
	case *markdown.ThematicBreak:
		r.c.drawHRule(left, right)
	default:
		r.renderUnsupported(n, left, right)
	}
	return 0
}

func firstBaseline(metrics []lineMetric) int {
	if len(metrics) == 0 {
		return 0
	}
	return metrics[0].baseline
}

func listMarker(list *markdown.List, index int) string {
	if list.Ordered {
		marker := list.Marker
		if marker == 0 {
			marker = '.'
		}
		return fmt.Sprintf("%d%c", list.Start+index, marker)
	}
	if list.Depth%2 == 1 {
		return "–"
	}
	return "•"
}

func (r *renderer) drawListMarker(marker string, baseline, markerLeft, markerRight int) {
	fnt := r.c.fonts.Regular
	r.c.setFace(fnt, r.c.th.FG, r.baseSize)
	x := markerRight - int(measureWidth(fnt, r.baseSize, marker))
	if x < markerLeft {
		x = markerLeft
	}
	r.c.drawString(marker, x, baseline, r.baseSize)
}

func (r *renderer) renderList(list *markdown.List, left, right int) int {
	markerLeft := left
	markerRight := markerLeft + listMarkerWidth
	contentLeft := markerRight + listMarkerGap
	itemSpacing := int(r.baseSize * 0.6)
	if list.Tight {
		itemSpacing = int(r.baseSize * 0.3)
	}
	first := 0
	for i, item := range list.Items {
		startY := r.c.cursorY
		baseline := 0
		for _, child := range item {
			b := r.renderBlock(child, contentLeft, right)
			if baseline == 0 {
				baseline = b
			}
		}
		if baseline == 0 {
			baseline = startY + int(r.baseSize)
			if r.c.cursorY < baseline {
				r.c.cursorY = startY + int(r.baseSize*1.4)
			}
		}
		r.drawListMarker(listMarker(list, i), baseline, markerLeft, markerRight)
		if first == 0 {
			first = baseline
		}
		if i < len(list.Items)-1 {
			r.c.addVSpace(itemSpacing)
		}
	}
	r.c.addVSpace(int(r.baseSize * 0.4))
	return first
}

func (r *renderer) renderTable(tbl *markdown.Table, left, right int) {
	rows := make([][]*markdown.TableCell, 0, len(tbl.Rows)+1)
	if len(tbl.Header) > 0 {
		rows = append(rows, tbl.Header)
	}
	rows = append(rows, tbl.Rows...)
	colCount := len(tbl.Align)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}
	if len(rows) == 0 || colCount == 0 {
		return
	}

	border := 1
	cellPadding := int(r.baseSize * 0.6)
	if cellPadding < 8 {
		cellPadding = 8
	}
	available := right - left
	colWidth := (available - border*(colCount+1)) / colCount
	if colWidth < 60 {
		colWidth = 60
	}
	tableRight := left + colCount*colWidth + border*(colCount+1)
	minRow := int(r.baseSize * 1.1)

	r.c.addVSpace(int(r.baseSize * 0.3))
	tableTop := r.c.cursorY
	r.c.fillRect(image.Rect(left, tableTop, tableRight, tableTop+border), r.c.th.HRule)
	y := tableTop + border

	for ri, row := range rows {
		st := r.plain(r.baseSize)
		if ri == 0 && len(tbl.Header) > 0 {
			st.font = r.c.fonts.Bold
		}
		maxHeight := minRow
		for col := 0; col < colCount && col < len(row); col++ {
			cellLeft := left + border + col*(colWidth+border)
			contentLeft := cellLeft + cellPadding
			contentRight := cellLeft + colWidth - cellPadding
			if contentRight <= contentLeft {
				contentRight = cellLeft + colWidth - 2
			}
			align := markdown.AlignNone
			if col < len(tbl.Align) {
				align = tbl.Align[col]
			}
			start := y + cellPadding
			r.c.cursorY = start
			cell := row[col]
			r.c.drawTokensAligned(r.inlineTokens(cell.ID(), cell.Inlines, st), contentLeft, contentRight, align)
			if h := r.c.cursorY - start; h > maxHeight {
				maxHeight = h
			}
		}
		rowBottom := y + maxHeight + 2*cellPadding
		r.c.fillRect(image.Rect(left, rowBottom, tableRight, rowBottom+border), r.c.th.HRule)
		y = rowBottom + border
	}

	tableBottom := y - border
	for col := 0; col <= colCount; col++ {
		x := left + col*(colWidth+border)
		r.c.fillRect(image.Rect(x, tableTop, x+border, tableBottom+border), r.c.th.HRule)
	}
	r.c.cursorY = tableBottom + int(r.baseSize*0.7)
}

func (r *renderer) renderUnsupported(n markdown.Node, left, right int) {
	msg := "Unsupported: " + n.Kind().String()
	tokens := []textToken{{text: msg, font: r.c.fonts.Regular, size: r.baseSize * 0.9, color: r.c.th.Warning}}
	_ = r.c.drawTokens(tokens, left, right)
	r.c.addVSpace(int(r.baseSize * 0.6))
}

func (r *renderer) drawFootnotes() {
	if len(r.footnotes) == 0 {
		return
	}
	r.c.drawHRule(r.c.left, r.c.right)
	size := r.baseSize * 0.85
	for i, note := range r.footnotes {
		tokens := []textToken{{text: fmt.Sprintf("[%d] %s", i+1, note), font: r.c.fonts.Regular, size: size, color: r.c.th.FG}}
		_ = r.c.drawTokens(tokens, r.c.left, r.c.right)
	}
}

// Side padding as a fraction of the width, per column mode.
const (
	narrowPadding = 0.25
	widePadding   = 0.05
)

// RenderOptions configure how a document is painted.
type RenderOptions struct {
	Width int
	// Margin is the top and bottom margin and the minimum side margin.
	Margin int
	// Wide shrinks the side padding from a quarter of the width to 5%.
	Wide           bool
	BaseFontSize   float64
	Theme          Theme
	Fonts          Fonts
	LinkFootnotes  *bool
	ImageFootnotes *bool
	// CodeBackground overrides Theme.CodeBG with a "#rrggbb" colour, usually
	// the highlight style's own background.
	CodeBackground string
}

// Render paints doc using view for code spans, images and search marks. A nil
// view draws neutral code and image placeholders. Zero options select 1024px
// width, 48px margin, 16pt text, the light theme and the bundled Go fonts.
func Render(doc *markdown.Document, view View, opts RenderOptions) (*image.RGBA, error) {
	if doc == nil {
		return nil, errors.New("raster: nil document")
	}
	if view == nil {
		view = staticView{doc: doc}
	}
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Margin <= 0 {
		opts.Margin = 48
	}
	if opts.BaseFontSize <= 0 {
		opts.BaseFontSize = 16
	}
	if opts.Theme == (Theme{}) {
		opts.Theme = LightTheme
	}
	if col, ok := parseHex(opts.CodeBackground); ok {
		opts.Theme.CodeBG = col
	}
	if !opts.Fonts.complete() {
		fallback, err := LoadFonts(FontConfig{SizeBase: opts.BaseFontSize})
		if err != nil {
			return nil, err
		}
		if opts.Fonts.Regular == nil {
			opts.Fonts.Regular = fallback.Regular
		}
		if opts.Fonts.Bold == nil {
			opts.Fonts.Bold = fallback.Bold
		}
		if opts.Fonts.Italic == nil {
			opts.Fonts.Italic = fallback.Italic
		}
		if opts.Fonts.Mono == nil {
			opts.Fonts.Mono = fallback.Mono
		}
	}

	linkFootnotes := true
	if opts.LinkFootnotes != nil {
		linkFootnotes = *opts.LinkFootnotes
	}
	imageFootnotes := false
	if opts.ImageFootnotes != nil {
		imageFootnotes = *opts.ImageFootnotes
	}

	pad := narrowPadding
	if opts.Wide {
		pad = widePadding
	}
	side := int(float64(opts.Width) * pad)
	if side < opts.Margin && opts.Margin*2 < opts.Width {
		side = opts.Margin
	}

	c := newCanvas(opts.Width, opts.Margin, side, opts.Theme, opts.Fonts, opts.BaseFontSize)
	r := &renderer{
		c:              c,
		view:           view,
		baseSize:       opts.BaseFontSize,
		linkFootnotes:  linkFootnotes,
		imageFootnotes: imageFootnotes,
	}
	for _, b := range doc.Blocks {
		r.renderBlock(b, c.left, c.right)
	}
	r.drawFootnotes()

	used := c.cursorY + opts.Margin
	if used < opts.Margin+50 {
		used = opts.Margin + 50
	}
	c.ensure(used)
	img := image.NewRGBA(image.Rect(0, 0, opts.Width, used))
	draw.Draw(img, img.Bounds(), c.img, image.Point{}, draw.Src)
	return img, nil
}
