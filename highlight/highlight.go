// Package highlight assigns style spans to code block text.
package highlight

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// DefaultStyle is the chroma style used when none is configured.
const DefaultStyle = "onedark"

// ClassText is the class of neutral spans.
const ClassText = "Text"

// Style is the visual treatment of a span. Color is "#rrggbb" or empty for
// the surface's default foreground.
type Style struct {
	Class     string
	Color     string
	Bold      bool
	Italic    bool
	Underline bool
}

// Span styles code[Start:End]. Offsets are in bytes.
type Span struct {
	Start int
	End   int
	Style Style
}

// Neutral returns a single default-styled span covering code.
func Neutral(code string) []Span {
	if code == "" {
		return nil
	}
	return []Span{{Start: 0, End: len(code), Style: Style{Class: ClassText}}}
}

// Highlighter tokenizes code with chroma lexers.
type Highlighter struct {
	style *chroma.Style
}

// New returns a Highlighter using the named chroma style. Unknown names fall
// back to chroma's default style.
func New(style string) *Highlighter {
	if style == "" {
		style = DefaultStyle
	}
	return &Highlighter{style: styles.Get(style)}
}

// StyleName returns the name of the active chroma style.
func (h *Highlighter) StyleName() string { return h.style.Name }

// Background returns the style's background colour, or "" if it has none.
func (h *Highlighter) Background() string {
	bg := h.style.Get(chroma.Background).Background
	if !bg.IsSet() {
		return ""
	}
	return bg.String()
}

// Lexer returns the lexer for a fence info string, or nil if the language is
// not recognised.
func Lexer(lang string) chroma.Lexer {
	name := normalizeLanguage(lang)
	if name == "" {
		return nil
	}
	return lexers.Get(name)
}

// Highlight returns ordered, non-overlapping spans whose union is exactly
// [0, len(code)). Unknown languages and lexer failures yield Neutral(code).
func (h *Highlighter) Highlight(code, lang string) []Span {
	if code == "" {
		return nil
	}
	lexer := Lexer(lang)
	if lexer == nil {
		return Neutral(code)
	}
	it, err := chroma.Coalesce(lexer).Tokenise(&chroma.TokeniseOptions{State: "root"}, code)
	if err != nil {
		return Neutral(code)
	}

	var spans []Span
	off := 0
	for tok := it(); tok != chroma.EOF; tok = it() {
		if tok.Value == "" || off >= len(code) {
			continue
		}
		end := off + len(tok.Value)
		if end > len(code) {
			// Some lexers append a trailing newline.
			end = len(code)
		}
		if code[off:end] != tok.Value[:end-off] {
			return Neutral(code)
		}
		spans = appendSpan(spans, Span{Start: off, End: end, Style: h.styleFor(tok.Type)})
		off = end
	}
	if off < len(code) {
		spans = appendSpan(spans, Span{Start: off, End: len(code), Style: Style{Class: ClassText}})
	}
	return spans
}

func (h *Highlighter) styleFor(tt chroma.TokenType) Style {
	entry := h.style.Get(tt)
	st := Style{
		Class:     tt.String(),
		Bold:      entry.Bold == chroma.Yes,
		Italic:    entry.Italic == chroma.Yes,
		Underline: entry.Underline == chroma.Yes,
	}
	if entry.Colour.IsSet() {
		st.Color = entry.Colour.String()
	}
	return st
}

func appendSpan(spans []Span, s Span) []Span {
	if n := len(spans); n > 0 && spans[n-1].Style == s.Style && spans[n-1].End == s.Start {
		spans[n-1].End = s.End
		return spans
	}
	return append(spans, s)
}

// normalizeLanguage reduces a fence info string such as "{.rust}" or
// "python title=x" to a lexer name.
func normalizeLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.Trim(tag, "{}")
	if i := strings.IndexAny(tag, " \t,"); i >= 0 {
		tag = tag[:i]
	}
	tag = strings.TrimPrefix(tag, ".")
	return strings.ToLower(tag)
}
