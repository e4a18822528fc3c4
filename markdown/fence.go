package markdown

import (
	"bytes"
	"strconv"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// repairFences escapes every opening code fence that is never closed and so
// runs to the end of the input. CommonMark would otherwise swallow the rest of
// the document into the code block; escaped, the fence line reads as literal
// text and the lines after it are parsed as Markdown again.
//
// A fence inside a list item or blockquote ends with its container, so it
// loses nothing and is left alone.
func repairFences(src []byte) []byte {
	sentinel := eofSentinel(src)
	out := src
	copied := false
	// Each pass escapes one opener, so there are at most as many passes as
	// fence characters.
	for limit := bytes.Count(src, []byte("`")) + bytes.Count(src, []byte("~")); limit > 0; limit-- {
		at := swallowingFence(out, sentinel)
		if at < 0 {
			break
		}
		if !copied {
			out = append([]byte(nil), src...)
			copied = true
		}
		out = append(out[:at], append([]byte{'\\'}, out[at:]...)...)
	}
	return out
}

// eofSentinel returns a line of text that does not occur in src.
func eofSentinel(src []byte) []byte {
	for i := 0; ; i++ {
		s := []byte("mdzen-end-of-input-" + strconv.Itoa(i))
		if !bytes.Contains(src, s) {
			return s
		}
	}
}

// swallowingFence parses src with the sentinel appended as a final
// unindented line. A fenced code block that absorbs the sentinel has no
// closing fence and nothing ends it before the input does. The result is the
// byte offset of that block's opening fence character, or -1.
func swallowingFence(src, sentinel []byte) int {
	buf := make([]byte, 0, len(src)+len(sentinel)+1)
	buf = append(buf, src...)
	if len(buf) > 0 && buf[len(buf)-1] != '\n' {
		buf = append(buf, '\n')
	}
	buf = append(buf, sentinel...)

	root := mdParser.Parser().Parse(text.NewReader(buf))
	at := -1
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := fcb.Lines()
		if lines.Len() == 0 {
			return ast.WalkSkipChildren, nil
		}
		last := lines.At(lines.Len() - 1)
		if !bytes.Equal(bytes.TrimSpace(last.Value(buf)), sentinel) {
			return ast.WalkSkipChildren, nil
		}
		at = openingFenceAt(buf, lines.At(0).Start)
		return ast.WalkStop, nil
	})
	if at >= len(src) {
		return -1
	}
	return at
}

// openingFenceAt finds the fence character on the line before the one that
// holds offset.
func openingFenceAt(buf []byte, offset int) int {
	lineStart := bytes.LastIndexByte(buf[:offset], '\n') + 1
	if lineStart == 0 {
		return -1
	}
	openStart := bytes.LastIndexByte(buf[:lineStart-1], '\n') + 1
	i := bytes.IndexAny(buf[openStart:lineStart], "`~")
	if i < 0 {
		return -1
	}
	return openStart + i
}
