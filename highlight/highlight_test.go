package highlight

import (
	"strings"
	"testing"
	"time"

	"github.com/arran4/mdzen/markdown"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertCovers(t *testing.T, code string, spans []Span) {
	t.Helper()
	if code == "" {
		assert.Empty(t, spans)
		return
	}
	require.NotEmpty(t, spans)
	assert.Equal(t, 0, spans[0].Start)
	for i, s := range spans {
		assert.Less(t, s.Start, s.End, "span %d is empty", i)
		if i > 0 {
			assert.Equal(t, spans[i-1].End, s.Start, "gap or overlap before span %d", i)
		}
	}
	assert.Equal(t, len(code), spans[len(spans)-1].End)
}

func TestHighlightCoversSource(t *testing.T) {
	tests := []struct {
		name string
		lang string
		code string
	}{
		{"go", "go", "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}"},
		{"go trailing newline", "go", "x := 1\n"},
		{"python", "python", "def f(x):\n    return x * 2  # double"},
		{"rust info string", "rust,ignore", "fn main() { let s = \"é\"; }"},
		{"braced", "{.js}", "const a = [1, 2, 3];"},
		{"crlf", "go", "a := 1\r\nb := 2\r\n"},
		{"unknown", "klingon", "Qapla'"},
		{"no language", "", "plain text"},
		{"empty", "go", ""},
	}
	h := New("")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertCovers(t, tt.code, h.Highlight(tt.code, tt.lang))
		})
	}
}

func TestHighlightUnknownLanguageIsNeutral(t *testing.T) {
	h := New("")
	spans := h.Highlight("some text", "no-such-language")
	require.Len(t, spans, 1)
	assert.Equal(t, ClassText, spans[0].Style.Class)
	assert.Equal(t, Neutral("some text"), spans)
}

func TestHighlightAssignsClasses(t *testing.T) {
	h := New("monokai")
	code := "func main() {}"
	spans := h.Highlight(code, "go")
	require.Greater(t, len(spans), 1)

	var classes []string
	for _, s := range spans {
		classes = append(classes, s.Style.Class)
	}
	assert.Equal(t, "func", code[spans[0].Start:spans[0].End])
	assert.True(t, strings.HasPrefix(classes[0], "Keyword"), "got %v", classes)
	assert.NotEmpty(t, spans[0].Style.Color)
}

func TestNormalizeLanguage(t *testing.T) {
	assert.Equal(t, "rust", normalizeLanguage("rust,ignore"))
	assert.Equal(t, "python", normalizeLanguage(" Python title=x "))
	assert.Equal(t, "js", normalizeLanguage("{.js}"))
	assert.Equal(t, "", normalizeLanguage(""))
	assert.Nil(t, Lexer(""))
	assert.NotNil(t, Lexer("go"))
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestServiceSmallBlocksAreSynchronousAndCached(t *testing.T) {
	s := NewService(Options{Logger: quietLogger()})
	defer s.Close()

	code := "x := 1"
	assert.False(t, s.Cached("go", code))
	spans, ready := s.Spans(1, 7, "go", code)
	assert.True(t, ready)
	assertCovers(t, code, spans)
	assert.True(t, s.Cached("go", code))

	again, ready := s.Spans(2, 9, "go", code)
	assert.True(t, ready)
	assert.Equal(t, spans, again)
	assert.Empty(t, s.Poll())
}

func TestServiceLargeBlocksHighlightInBackground(t *testing.T) {
	s := NewService(Options{Threshold: 16, Logger: quietLogger()})
	defer s.Close()

	code := strings.Repeat("fmt.Println(\"hello\")\n", 200)
	for range 3 {
		spans, ready := s.Spans(3, 11, "go", code)
		if ready {
			break
		}
		assert.Equal(t, Neutral(code), spans)
	}

	select {
	case res := <-s.Results():
		assert.Equal(t, Result{Generation: 3, Node: 11}, res)
	case <-time.After(5 * time.Second):
		t.Fatal("background highlight did not finish")
	}

	spans, ready := s.Spans(3, 11, "go", code)
	require.True(t, ready)
	assertCovers(t, code, spans)
	assert.Greater(t, len(spans), 1)

	select {
	case res := <-s.Results():
		t.Fatalf("unexpected duplicate result %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServiceKeepsFinishedSpansPastEviction(t *testing.T) {
	s := NewService(Options{Threshold: 16, CacheSize: 1, Logger: quietLogger()})
	defer s.Close()

	blocks := map[markdown.NodeID]string{
		21: strings.Repeat("a := 1\n", 50),
		22: strings.Repeat("b := 2\n", 50),
		23: strings.Repeat("c := 3\n", 50),
	}
	for id, code := range blocks {
		_, ready := s.Spans(5, id, "go", code)
		require.False(t, ready)
	}
	for range blocks {
		select {
		case <-s.Results():
		case <-time.After(5 * time.Second):
			t.Fatal("background highlight did not finish")
		}
	}

	for id, code := range blocks {
		spans, ready := s.Spans(5, id, "go", code)
		require.True(t, ready, "node %d", id)
		assertCovers(t, code, spans)
	}
	select {
	case res := <-s.Results():
		t.Fatalf("block rescheduled after eviction: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServiceCloseStopsWorkers(t *testing.T) {
	s := NewService(Options{Threshold: 1, Logger: quietLogger()})
	_, _ = s.Spans(1, 1, "go", "package main")
	s.Close()
	assert.LessOrEqual(t, len(s.Poll()), 1)
}
