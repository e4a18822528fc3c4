package markdown

import "strings"

// Segment is the flattened visible text of one text-bearing node.
type Segment struct {
	Node NodeID
	Text string
}

// TextOf returns the flattened visible text of n. Soft breaks become a space,
// hard breaks a newline, images contribute nothing and code blocks return
// their raw code.
func TextOf(n Node) string {
	if cb, ok := n.(*CodeBlock); ok {
		return cb.Code
	}
	var sb strings.Builder
	writeText(&sb, n)
	return sb.String()
}

// InlineText flattens a run of inline nodes.
func InlineText(nodes []Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		writeText(&sb, n)
	}
	return sb.String()
}

func writeText(sb *strings.Builder, n Node) {
	switch v := n.(type) {
	case *Text:
		sb.WriteString(v.Value)
	case *CodeSpan:
		sb.WriteString(v.Value)
	case *LineBreak:
		if v.Hard {
			sb.WriteByte('\n')
		} else {
			sb.WriteByte(' ')
		}
	case *Image:
	case *CodeBlock:
		sb.WriteString(v.Code)
	default:
		for _, c := range Children(n) {
			writeText(sb, c)
		}
	}
}

// Segments returns the text stream of the document: headings, paragraphs,
// code blocks and table cells in document order.
func (d *Document) Segments() []Segment {
	var out []Segment
	Walk(d.Blocks, func(n Node, _ int) bool {
		switch n.(type) {
		case *Heading, *Paragraph, *CodeBlock, *TableCell:
			out = append(out, Segment{Node: n.ID(), Text: TextOf(n)})
			return false
		}
		return true
	})
	return out
}
