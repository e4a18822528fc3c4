package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// mdParser is shared by every Parse call; each call gets its own parser
// context, so heading ids are deterministic per document.
var mdParser = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

type options struct {
	generation uint64
}

// Option configures Parse.
type Option func(*options)

// WithGeneration stamps the resulting Document, and every Position taken from
// it, with the given load generation.
func WithGeneration(gen uint64) Option {
	return func(o *options) { o.generation = gen }
}

// Parse converts src into a Document. It never fails: malformed constructs
// degrade to literal text and parsing continues with the rest of the input.
// The same input and options always produce a structurally identical tree.
func Parse(src []byte, opts ...Option) *Document {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	src = repairFences(src)
	root := mdParser.Parser().Parse(text.NewReader(src))
	c := &converter{src: src}
	return newDocument(o.generation, c.blocks(root, 0))
}

type converter struct {
	src  []byte
	next NodeID
}

func (c *converter) id() base {
	c.next++
	return base{id: c.next}
}

func (c *converter) blocks(parent ast.Node, depth int) []Node {
	var out []Node
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		out = append(out, c.block(child, depth)...)
	}
	return out
}

func (c *converter) block(n ast.Node, depth int) []Node {
	switch v := n.(type) {
	case *ast.Heading:
		h := &Heading{base: c.id(), Level: v.Level, Anchor: headingAnchor(v)}
		h.Inlines = c.inlines(v)
		return []Node{h}
	case *ast.Paragraph, *ast.TextBlock:
		p := &Paragraph{base: c.id()}
		p.Inlines = c.inlines(v)
		return []Node{p}
	case *ast.FencedCodeBlock:
		cb := &CodeBlock{base: c.id(), Fenced: true, Code: c.linesText(v)}
		if lang := v.Language(c.src); lang != nil {
			cb.Language = string(lang)
		}
		return []Node{cb}
	case *ast.CodeBlock:
		return []Node{&CodeBlock{base: c.id(), Code: c.linesText(v)}}
	case *ast.List:
		return []Node{c.list(v, depth)}
	case *ast.Blockquote:
		q := &Blockquote{base: c.id()}
		q.Children = c.blocks(v, depth)
		return []Node{q}
	case *ast.ThematicBreak:
		return []Node{&ThematicBreak{base: c.id()}}
	case *extast.Table:
		return []Node{c.table(v)}
	case *ast.HTMLBlock:
		raw := c.linesText(v)
		if v.HasClosure() {
			raw += string(v.ClosureLine.Value(c.src))
		}
		return c.literal(strings.TrimRight(raw, "\n"))
	}
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 && !n.HasChildren() {
		return c.literal(strings.TrimRight(c.linesText(n), "\n"))
	}
	return c.blocks(n, depth)
}

// literal keeps source we cannot structure as a plain paragraph.
func (c *converter) literal(s string) []Node {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	p := &Paragraph{base: c.id()}
	p.Inlines = []Node{&Text{base: c.id(), Value: s}}
	return []Node{p}
}

func (c *converter) list(v *ast.List, depth int) *List {
	l := &List{
		base:    c.id(),
		Ordered: v.IsOrdered(),
		Start:   v.Start,
		Marker:  v.Marker,
		Tight:   v.IsTight,
		Depth:   depth,
	}
	for item := v.FirstChild(); item != nil; item = item.NextSibling() {
		l.Items = append(l.Items, c.blocks(item, depth+1))
	}
	return l
}

func (c *converter) table(v *extast.Table) *Table {
	t := &Table{base: c.id()}
	for _, a := range v.Alignments {
		t.Align = append(t.Align, alignment(a))
	}
	for child := v.FirstChild(); child != nil; child = child.NextSibling() {
		switch row := child.(type) {
		case *extast.TableHeader:
			for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
				switch x := cell.(type) {
				case *extast.TableCell:
					t.Header = append(t.Header, c.cell(x))
				case *extast.TableRow:
					t.Header = append(t.Header, c.row(x)...)
				}
			}
		case *extast.TableRow:
			t.Rows = append(t.Rows, c.row(row))
		}
	}
	return t
}

func (c *converter) row(r *extast.TableRow) []*TableCell {
	var cells []*TableCell
	for cell := r.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if tc, ok := cell.(*extast.TableCell); ok {
			cells = append(cells, c.cell(tc))
		}
	}
	return cells
}

func (c *converter) cell(tc *extast.TableCell) *TableCell {
	cell := &TableCell{base: c.id()}
	cell.Inlines = c.inlines(tc)
	return cell
}

func alignment(a extast.Alignment) Alignment {
	switch a {
	case extast.AlignLeft:
		return AlignLeft
	case extast.AlignCenter:
		return AlignCenter
	case extast.AlignRight:
		return AlignRight
	}
	return AlignNone
}

func (c *converter) inlines(parent ast.Node) []Node {
	var out []Node
	for child := parent.FirstChild(); child != nil; child = child.NextSibling() {
		out = c.inline(child, out)
	}
	return out
}

func (c *converter) inline(n ast.Node, out []Node) []Node {
	switch v := n.(type) {
	case *ast.Text:
		value := v.Segment.Value(c.src)
		if !v.IsRaw() {
			value = unescape(value)
		}
		out = c.appendText(out, string(value))
		switch {
		case v.HardLineBreak():
			out = append(out, &LineBreak{base: c.id(), Hard: true})
		case v.SoftLineBreak():
			out = append(out, &LineBreak{base: c.id()})
		}
	case *ast.String:
		out = c.appendText(out, string(v.Value))
	case *ast.Emphasis:
		style := Italic
		if v.Level >= 2 {
			style = Bold
		}
		s := &Styled{base: c.id(), Style: style}
		s.Children = c.inlines(v)
		out = append(out, s)
	case *extast.Strikethrough:
		s := &Styled{base: c.id(), Style: Strikethrough}
		s.Children = c.inlines(v)
		out = append(out, s)
	case *ast.CodeSpan:
		out = append(out, &CodeSpan{base: c.id(), Value: c.codeSpanText(v)})
	case *ast.Link:
		l := &Link{base: c.id(), Destination: string(v.Destination), Title: string(v.Title)}
		l.Inlines = c.inlines(v)
		out = append(out, l)
	case *ast.AutoLink:
		dest := string(v.URL(c.src))
		label := string(v.Label(c.src))
		if v.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(strings.ToLower(dest), "mailto:") {
			dest = "mailto:" + dest
		}
		l := &Link{base: c.id(), Destination: dest}
		l.Inlines = []Node{&Text{base: c.id(), Value: label}}
		out = append(out, l)
	case *ast.Image:
		out = append(out, &Image{
			base:   c.id(),
			Source: strings.TrimSpace(string(v.Destination)),
			Alt:    strings.TrimSpace(c.rawText(v)),
			Title:  string(v.Title),
		})
	case *ast.RawHTML:
		var buf bytes.Buffer
		for i := 0; i < v.Segments.Len(); i++ {
			seg := v.Segments.At(i)
			buf.Write(seg.Value(c.src))
		}
		out = c.appendText(out, buf.String())
	case *extast.TaskCheckBox:
		box := "[ ] "
		if v.IsChecked {
			box = "[x] "
		}
		out = c.appendText(out, box)
	default:
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			out = c.inline(child, out)
		}
	}
	return out
}

// appendText merges adjacent text runs so that literal delimiters left over
// from unmatched emphasis do not fragment the tree.
func (c *converter) appendText(out []Node, s string) []Node {
	if s == "" {
		return out
	}
	if len(out) > 0 {
		if prev, ok := out[len(out)-1].(*Text); ok {
			prev.Value += s
			return out
		}
	}
	return append(out, &Text{base: c.id(), Value: s})
}

func (c *converter) codeSpanText(n ast.Node) string {
	var buf bytes.Buffer
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch t := child.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(c.src))
		case *ast.String:
			buf.Write(t.Value)
		}
	}
	return strings.ReplaceAll(buf.String(), "\n", " ")
}

// rawText flattens goldmark inline children without allocating node ids.
func (c *converter) rawText(n ast.Node) string {
	var buf bytes.Buffer
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch t := child.(type) {
		case *ast.Text:
			buf.Write(unescape(t.Segment.Value(c.src)))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			buf.WriteString(c.rawText(child))
		}
	}
	return buf.String()
}

func (c *converter) linesText(n ast.Node) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(c.src))
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func headingAnchor(h *ast.Heading) string {
	v, ok := h.AttributeString("id")
	if !ok {
		return ""
	}
	switch id := v.(type) {
	case []byte:
		return string(id)
	case string:
		return id
	}
	return ""
}

func unescape(b []byte) []byte {
	b = util.UnescapePunctuations(b)
	b = util.ResolveNumericReferences(b)
	return util.ResolveEntityNames(b)
}
