package raster

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/arran4/mdzen/highlight"
	"github.com/arran4/mdzen/imagecache"
	"github.com/arran4/mdzen/markdown"
	"github.com/arran4/mdzen/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapCodePreservesIndentationAndOffsets(t *testing.T) {
	fonts, err := LoadFonts(FontConfig{SizeBase: 14})
	require.NoError(t, err)

	lines := wrapCode(fonts.Mono, 14, "    spaced  out", 140)
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0].text, "    "), "leading spaces lost: %q", lines[0].text)
	var joined strings.Builder
	for _, ln := range lines {
		joined.WriteString(ln.text)
	}
	assert.Equal(t, "    spaced  out", joined.String())

	long := wrapCode(fonts.Mono, 14, "averyverylongtokenwithoutspaces", 80)
	assert.GreaterOrEqual(t, len(long), 2)
	for i := 1; i < len(long); i++ {
		assert.Equal(t, long[i-1].start+len(long[i-1].text), long[i].start)
	}

	crlf := wrapCode(fonts.Mono, 14, "a\r\nbc\n\nd", 0)
	require.Len(t, crlf, 4)
	assert.Equal(t, codeLine{text: "a", start: 0}, crlf[0])
	assert.Equal(t, codeLine{text: "bc", start: 3}, crlf[1])
	assert.Equal(t, codeLine{text: "", start: 6}, crlf[2])
	assert.Equal(t, codeLine{text: "d", start: 7}, crlf[3])
}

func TestSplitTextPreserveSpaces(t *testing.T) {
	assert.Equal(t, []string{"a", "  ", "b", " "}, splitTextPreserveSpaces("a  b "))
	assert.Nil(t, splitTextPreserveSpaces(""))
}

func TestRenderHandlesEveryBlockKind(t *testing.T) {
	src := `# Title

Paragraph with *italic*, **bold**, ~~gone~~, ` + "`code`" + ` and a [link](https://example.com).

- Item one
  - Nested bullet

3. Third
4. Fourth

> quoted text

| A | B |
| --- | :-: |
| 1 | 2 |

---

![alt](missing.png)

` + "```go\nfunc main() {}\n```\n"

	doc := markdown.Parse([]byte(src))
	img, err := Render(doc, nil, RenderOptions{})
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, 1024, img.Bounds().Dx())
	assert.Greater(t, img.Bounds().Dy(), 200)
}

func TestRenderGrowsForLongDocuments(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 300; i++ {
		sb.WriteString("A paragraph of text that takes a line or two.\n\n")
	}
	img, err := Render(markdown.Parse([]byte(sb.String())), nil, RenderOptions{Width: 400})
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dy(), initialHeight)
}

func TestRenderRejectsNilDocument(t *testing.T) {
	_, err := Render(nil, nil, RenderOptions{})
	assert.Error(t, err)
}

// fakeView serves fixed state for a document.
type fakeView struct {
	spans   map[markdown.NodeID][]highlight.Span
	images  map[string]imagecache.Entry
	matches []search.Match
	current int
}

func (v fakeView) Spans(id markdown.NodeID) ([]highlight.Span, bool) {
	s, ok := v.spans[id]
	return s, ok
}

func (v fakeView) Image(source string) imagecache.Entry {
	if e, ok := v.images[source]; ok {
		return e
	}
	return imagecache.Entry{Key: source, State: imagecache.Failed, Err: errors.New("no such image")}
}

func (v fakeView) MatchesIn(id markdown.NodeID) []search.Match {
	var out []search.Match
	for _, m := range v.matches {
		if m.Node == id {
			out = append(out, m)
		}
	}
	return out
}

func (v fakeView) CurrentMatch() (search.Match, int, bool) {
	if v.current < 0 || v.current >= len(v.matches) {
		return search.Match{}, -1, false
	}
	return v.matches[v.current], v.current, true
}

func countColor(img *image.RGBA, want color.RGBA) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) == want {
				n++
			}
		}
	}
	return n
}

func countReddish(img *image.RGBA) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			if c.R > 0xA0 && c.G < 0x60 && c.B < 0x60 {
				n++
			}
		}
	}
	return n
}

func TestRenderPaintsSearchMatches(t *testing.T) {
	doc := markdown.Parse([]byte("zen and zen\n\n```\nzen code\n```\n"))
	para := doc.Blocks[0].ID()
	code := doc.Blocks[1].ID()
	view := fakeView{
		matches: []search.Match{
			{Node: para, Start: 0, End: 3},
			{Node: para, Start: 8, End: 11},
			{Node: code, Start: 0, End: 3},
		},
		current: 1,
	}
	img, err := Render(doc, view, RenderOptions{Width: 600})
	require.NoError(t, err)

	match := LightTheme.Match.(color.RGBA)
	current := LightTheme.Current.(color.RGBA)
	assert.Greater(t, countColor(img, match), 0)
	assert.Greater(t, countColor(img, current), 0)

	plain, err := Render(doc, nil, RenderOptions{Width: 600})
	require.NoError(t, err)
	assert.Zero(t, countColor(plain, current))
}

func TestRenderColoursCodeSpansAndImages(t *testing.T) {
	doc := markdown.Parse([]byte("```go\nfunc main() {}\n```\n\n![pic](pic.png)\n"))
	code := doc.CodeBlocks()[0]
	green := color.RGBA{0x00, 0xC0, 0x00, 0xFF}
	pic := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			pic.SetRGBA(x, y, green)
		}
	}
	view := fakeView{
		spans: map[markdown.NodeID][]highlight.Span{
			code.ID(): {{Start: 0, End: len(code.Code), Style: highlight.Style{Class: "Keyword", Color: "#ff0000"}}},
		},
		images: map[string]imagecache.Entry{
			"pic.png": {Key: "pic.png", State: imagecache.Loaded, Image: pic, Width: 40, Height: 30},
		},
		current: -1,
	}
	img, err := Render(doc, view, RenderOptions{Width: 600, Theme: DarkTheme, CodeBackground: "#282c34"})
	require.NoError(t, err)
	assert.Greater(t, countReddish(img), 0)
	assert.Equal(t, 40*30, countColor(img, green))
	assert.Greater(t, countColor(img, color.RGBA{0x28, 0x2c, 0x34, 0xFF}), 0)
}

func TestWideModeWidensColumn(t *testing.T) {
	text := strings.Repeat("word ", 200)
	doc := markdown.Parse([]byte(text))
	narrow, err := Render(doc, nil, RenderOptions{Width: 800})
	require.NoError(t, err)
	wide, err := Render(doc, nil, RenderOptions{Width: 800, Wide: true})
	require.NoError(t, err)
	assert.Less(t, wide.Bounds().Dy(), narrow.Bounds().Dy())
}

func TestThemeByName(t *testing.T) {
	th, err := ThemeByName("Dark")
	require.NoError(t, err)
	assert.Equal(t, DarkTheme, th)
	th, err = ThemeByName("")
	require.NoError(t, err)
	assert.Equal(t, LightTheme, th)
	_, err = ThemeByName("sepia")
	assert.Error(t, err)
}

func TestParseHex(t *testing.T) {
	c, ok := parseHex("#0a0b0c")
	require.True(t, ok)
	assert.Equal(t, color.RGBA{0x0a, 0x0b, 0x0c, 0xFF}, c)
	_, ok = parseHex("")
	assert.False(t, ok)
	_, ok = parseHex("#fff")
	assert.False(t, ok)
}

func TestEncode(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, img, ".png"))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	buf.Reset()
	require.NoError(t, Encode(&buf, img, "JPG"))
	assert.NotZero(t, buf.Len())
	assert.Error(t, Encode(&buf, img, ".gif"))
}
