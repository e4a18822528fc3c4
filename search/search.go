// Package search finds query matches in the flattened text of a document and
// keeps a circular cursor over them.
package search

import (
	"strings"
	"unicode/utf8"

	"github.com/arran4/mdzen/markdown"
	"golang.org/x/text/language"
	xsearch "golang.org/x/text/search"
)

// Match is a byte range inside the flattened text of one node. It is only
// meaningful against the Document it was found in.
type Match struct {
	Node  markdown.NodeID
	Start int
	End   int
}

// Options control matching.
type Options struct {
	CaseSensitive bool
}

type matcher interface {
	index(s string) (start, end int)
}

type exact string

func (q exact) index(s string) (int, int) {
	i := strings.Index(s, string(q))
	if i < 0 {
		return -1, -1
	}
	return i, i + len(q)
}

// folded finds candidates by collation, which also skips ignorable runes and
// folds width, then keeps only those equal to the query ignoring case.
type folded struct {
	p     *xsearch.Pattern
	query string
}

func (f folded) index(s string) (int, int) {
	for off := 0; off < len(s); {
		start, end := f.p.IndexString(s[off:])
		if start < 0 {
			break
		}
		start, end = off+start, off+end
		if strings.EqualFold(s[start:end], f.query) {
			return start, end
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		off = start + max(size, 1)
	}
	return -1, -1
}

func newMatcher(query string, opts Options) matcher {
	if opts.CaseSensitive {
		return exact(query)
	}
	m := xsearch.New(language.Und, xsearch.IgnoreCase)
	return folded{p: m.CompileString(query), query: query}
}

// Find returns every non-overlapping match of query in document order.
// Code blocks are searched by their raw text. An empty query matches nothing.
func Find(doc *markdown.Document, query string, opts Options) []Match {
	if doc == nil || query == "" {
		return nil
	}
	m := newMatcher(query, opts)
	var out []Match
	for _, seg := range doc.Segments() {
		off := 0
		for off < len(seg.Text) {
			s, e := m.index(seg.Text[off:])
			if s < 0 || e <= s {
				break
			}
			out = append(out, Match{Node: seg.Node, Start: off + s, End: off + e})
			off += e
		}
	}
	return out
}

// Engine holds the active query and its matches for one document at a time.
// It is not safe for concurrent use.
type Engine struct {
	opts    Options
	doc     *markdown.Document
	query   string
	matches []Match
	byNode  map[markdown.NodeID][]Match
	cursor  int
}

func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts}
}

// SetDocument replaces the searched document. Matches from the previous
// document are discarded, the active query is run again and the cursor
// returns to the first match.
func (e *Engine) SetDocument(doc *markdown.Document) {
	e.doc = doc
	e.rerun()
}

// SetQuery changes the query and returns the number of matches. Setting the
// same query again keeps the cursor where it is.
func (e *Engine) SetQuery(q string) int {
	if q == e.query && e.matches != nil {
		return len(e.matches)
	}
	e.query = q
	e.rerun()
	return len(e.matches)
}

// SetOptions changes matching options and re-runs the query.
func (e *Engine) SetOptions(opts Options) {
	if opts == e.opts {
		return
	}
	e.opts = opts
	e.rerun()
}

func (e *Engine) Options() Options { return e.opts }

// Clear drops the query and all matches.
func (e *Engine) Clear() {
	e.query = ""
	e.matches = nil
	e.byNode = nil
	e.cursor = 0
}

func (e *Engine) rerun() {
	e.matches = Find(e.doc, e.query, e.opts)
	e.byNode = make(map[markdown.NodeID][]Match)
	for _, m := range e.matches {
		e.byNode[m.Node] = append(e.byNode[m.Node], m)
	}
	e.cursor = 0
}

func (e *Engine) Query() string { return e.query }

func (e *Engine) Matches() []Match { return e.matches }

func (e *Engine) Len() int { return len(e.matches) }

// Index returns the cursor position, or -1 when there are no matches.
func (e *Engine) Index() int {
	if len(e.matches) == 0 {
		return -1
	}
	return e.cursor
}

// Current returns the match under the cursor.
func (e *Engine) Current() (Match, bool) {
	if len(e.matches) == 0 {
		return Match{}, false
	}
	return e.matches[e.cursor], true
}

// Next advances the cursor, wrapping after the last match. It does nothing
// when there are no matches.
func (e *Engine) Next() (Match, bool) {
	if len(e.matches) == 0 {
		return Match{}, false
	}
	e.cursor = (e.cursor + 1) % len(e.matches)
	return e.matches[e.cursor], true
}

// Previous moves the cursor back, wrapping before the first match.
func (e *Engine) Previous() (Match, bool) {
	if len(e.matches) == 0 {
		return Match{}, false
	}
	e.cursor = (e.cursor - 1 + len(e.matches)) % len(e.matches)
	return e.matches[e.cursor], true
}

// InNode returns the matches inside one node, in order.
func (e *Engine) InNode(id markdown.NodeID) []Match {
	return e.byNode[id]
}
