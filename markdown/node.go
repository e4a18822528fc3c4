// Package markdown turns Markdown source into an owned, back-reference-free
// document tree.
//
// The tree is built once per load and never mutated afterwards. Parent and
// position lookups go through the Document's side index rather than pointers
// stored in the nodes.
package markdown

// NodeID identifies a node within one Document. IDs are assigned in pre-order
// starting at 1 and are meaningless against any other Document.
type NodeID int

// Kind tags the concrete type of a Node.
type Kind int

const (
	KindHeading Kind = iota + 1
	KindParagraph
	KindCodeBlock
	KindList
	KindBlockquote
	KindImage
	KindLink
	KindTable
	KindTableCell
	KindThematicBreak
	KindText
	KindStyled
	KindCodeSpan
	KindLineBreak
)

var kindNames = map[Kind]string{
	KindHeading:       "Heading",
	KindParagraph:     "Paragraph",
	KindCodeBlock:     "CodeBlock",
	KindList:          "List",
	KindBlockquote:    "Blockquote",
	KindImage:         "Image",
	KindLink:          "Link",
	KindTable:         "Table",
	KindTableCell:     "TableCell",
	KindThematicBreak: "ThematicBreak",
	KindText:          "Text",
	KindStyled:        "Styled",
	KindCodeSpan:      "CodeSpan",
	KindLineBreak:     "LineBreak",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Node is implemented by every element of the tree.
type Node interface {
	ID() NodeID
	Kind() Kind
}

type base struct {
	id NodeID
}

func (b base) ID() NodeID { return b.id }

// Heading is an ATX or setext heading. Anchor holds the generated id used for
// scroll targets.
type Heading struct {
	base
	Level   int
	Anchor  string
	Inlines []Node
}

func (*Heading) Kind() Kind { return KindHeading }

type Paragraph struct {
	base
	Inlines []Node
}

func (*Paragraph) Kind() Kind { return KindParagraph }

// CodeBlock holds raw code. Styling lives in the highlighter, not here.
type CodeBlock struct {
	base
	Language string
	Code     string
	Fenced   bool
}

func (*CodeBlock) Kind() Kind { return KindCodeBlock }

// List is an ordered or bullet list. Each item is a sequence of blocks.
// Depth is 0 for a top-level list and grows by one per enclosing list.
type List struct {
	base
	Ordered bool
	Start   int
	Marker  byte
	Tight   bool
	Depth   int
	Items   [][]Node
}

func (*List) Kind() Kind { return KindList }

type Blockquote struct {
	base
	Children []Node
}

func (*Blockquote) Kind() Kind { return KindBlockquote }

// Image refers to its bitmap only through Source; the bitmap itself lives in
// the image cache.
type Image struct {
	base
	Source string
	Alt    string
	Title  string
}

func (*Image) Kind() Kind { return KindImage }

type Link struct {
	base
	Destination string
	Title       string
	Inlines     []Node
}

func (*Link) Kind() Kind { return KindLink }

// Alignment of a table column.
type Alignment int

const (
	AlignNone Alignment = iota
	AlignLeft
	AlignCenter
	AlignRight
)

type Table struct {
	base
	Align  []Alignment
	Header []*TableCell
	Rows   [][]*TableCell
}

func (*Table) Kind() Kind { return KindTable }

type TableCell struct {
	base
	Inlines []Node
}

func (*TableCell) Kind() Kind { return KindTableCell }

type ThematicBreak struct {
	base
}

func (*ThematicBreak) Kind() Kind { return KindThematicBreak }

type Text struct {
	base
	Value string
}

func (*Text) Kind() Kind { return KindText }

// InlineStyle is the emphasis applied by a Styled node.
type InlineStyle int

const (
	Italic InlineStyle = iota + 1
	Bold
	Strikethrough
)

type Styled struct {
	base
	Style    InlineStyle
	Children []Node
}

func (*Styled) Kind() Kind { return KindStyled }

type CodeSpan struct {
	base
	Value string
}

func (*CodeSpan) Kind() Kind { return KindCodeSpan }

// LineBreak is a soft (source newline) or hard break inside inline content.
type LineBreak struct {
	base
	Hard bool
}

func (*LineBreak) Kind() Kind { return KindLineBreak }

// Children returns the direct children of n in order. List items and table
// rows are flattened.
func Children(n Node) []Node {
	switch v := n.(type) {
	case *Heading:
		return v.Inlines
	case *Paragraph:
		return v.Inlines
	case *List:
		var out []Node
		for _, item := range v.Items {
			out = append(out, item...)
		}
		return out
	case *Blockquote:
		return v.Children
	case *Link:
		return v.Inlines
	case *Table:
		out := make([]Node, 0, len(v.Header))
		for _, c := range v.Header {
			out = append(out, c)
		}
		for _, row := range v.Rows {
			for _, c := range row {
				out = append(out, c)
			}
		}
		return out
	case *TableCell:
		return v.Inlines
	case *Styled:
		return v.Children
	}
	return nil
}

// Walk visits nodes and their descendants in pre-order. Returning false from
// fn skips the node's children.
func Walk(nodes []Node, fn func(n Node, depth int) bool) {
	walk(nodes, 0, fn)
}

func walk(nodes []Node, depth int, fn func(Node, int) bool) {
	for _, n := range nodes {
		if !fn(n, depth) {
			continue
		}
		walk(Children(n), depth+1, fn)
	}
}
