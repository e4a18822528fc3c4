// Package toc derives a table of contents from a parsed document.
package toc

import (
	"strings"

	"github.com/arran4/mdzen/markdown"
)

// Entry is one heading. Levels are kept exactly as written; an H1 followed
// by an H3 is not normalized into a strict tree.
type Entry struct {
	Title  string
	Level  int
	Target markdown.Position
}

// Build lists the document's headings in document order, including headings
// nested in blockquotes and list items. Headings with no visible text are
// skipped.
func Build(doc *markdown.Document) []Entry {
	if doc == nil {
		return nil
	}
	var entries []Entry
	markdown.Walk(doc.Blocks, func(n markdown.Node, _ int) bool {
		h, ok := n.(*markdown.Heading)
		if !ok {
			return true
		}
		title := strings.TrimSpace(markdown.TextOf(h))
		if title == "" {
			return false
		}
		pos, _ := doc.Position(h.ID())
		entries = append(entries, Entry{Title: title, Level: h.Level, Target: pos})
		return false
	})
	return entries
}

// Find returns the entry whose target anchor matches.
func Find(entries []Entry, anchor string) (Entry, bool) {
	for _, e := range entries {
		if e.Target.Anchor == anchor {
			return e, true
		}
	}
	return Entry{}, false
}

// Indent returns the nesting of e relative to the shallowest heading in
// entries, for surfaces that indent the list.
func Indent(entries []Entry, e Entry) int {
	min := 0
	for _, x := range entries {
		if min == 0 || x.Level < min {
			min = x.Level
		}
	}
	if min == 0 || e.Level < min {
		return 0
	}
	return e.Level - min
}
