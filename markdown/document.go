package markdown

// Position is an opaque scroll target. It is only valid for the Document
// generation it was taken from.
type Position struct {
	Generation uint64
	Node       NodeID
	// Block is the index of the top-level block containing Node.
	Block  int
	Anchor string
}

type indexEntry struct {
	node   Node
	parent NodeID
	block  int
}

// Document is the parsed form of one source buffer.
type Document struct {
	Generation uint64
	Blocks     []Node

	index      map[NodeID]indexEntry
	images     []*Image
	codeBlocks []*CodeBlock
}

func newDocument(gen uint64, blocks []Node) *Document {
	d := &Document{
		Generation: gen,
		Blocks:     blocks,
		index:      make(map[NodeID]indexEntry),
	}
	for i, b := range blocks {
		d.indexNode(b, 0, i)
	}
	return d
}

func (d *Document) indexNode(n Node, parent NodeID, block int) {
	d.index[n.ID()] = indexEntry{node: n, parent: parent, block: block}
	switch v := n.(type) {
	case *Image:
		d.images = append(d.images, v)
	case *CodeBlock:
		d.codeBlocks = append(d.codeBlocks, v)
	}
	for _, c := range Children(n) {
		d.indexNode(c, n.ID(), block)
	}
}

// Len returns the number of nodes in the document.
func (d *Document) Len() int { return len(d.index) }

// Node looks a node up by identity.
func (d *Document) Node(id NodeID) (Node, bool) {
	e, ok := d.index[id]
	if !ok {
		return nil, false
	}
	return e.node, true
}

// Parent returns the parent of id. Top-level blocks have no parent.
func (d *Document) Parent(id NodeID) (Node, bool) {
	e, ok := d.index[id]
	if !ok || e.parent == 0 {
		return nil, false
	}
	return d.Node(e.parent)
}

// Position returns the scroll target for id.
func (d *Document) Position(id NodeID) (Position, bool) {
	e, ok := d.index[id]
	if !ok {
		return Position{}, false
	}
	pos := Position{Generation: d.Generation, Node: id, Block: e.block}
	if h, ok := e.node.(*Heading); ok {
		pos.Anchor = h.Anchor
	}
	return pos, true
}

// Valid reports whether pos was taken from this document.
func (d *Document) Valid(pos Position) bool {
	if pos.Generation != d.Generation {
		return false
	}
	_, ok := d.index[pos.Node]
	return ok
}

// Images lists image nodes in document order.
func (d *Document) Images() []*Image { return d.images }

// CodeBlocks lists code blocks in document order.
func (d *Document) CodeBlocks() []*CodeBlock { return d.codeBlocks }
