package cli

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# Guide

Install with go install.

## Usage

Run it and install nothing else.

### Deep

` + "```go\nfunc install() {}\n```\n"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cmd := NewCmdRoot()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--no-color", "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guide.md")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	return path
}

func TestTOCCommand(t *testing.T) {
	out, err := run(t, "toc", writeSample(t))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Guide #guide", lines[0])
	assert.Equal(t, "  Usage #usage", lines[1])
	assert.Equal(t, "    Deep #deep", lines[2])
}

func TestSearchCommand(t *testing.T) {
	path := writeSample(t)
	out, err := run(t, "search", path, "INSTALL")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "[1/4] block 2 Paragraph:")
	assert.Contains(t, lines[0], "Install with go install.")
	assert.Contains(t, lines[2], "block 4 Paragraph:")
	assert.Contains(t, lines[3], "CodeBlock")

	out, err = run(t, "search", path, "INSTALL", "--case-sensitive")
	require.NoError(t, err)
	assert.Equal(t, "No matches.\n", out)
}

func TestRenderCommand(t *testing.T) {
	path := writeSample(t)
	outPath := filepath.Join(t.TempDir(), "guide.png")
	out, err := run(t, "render", path, "-o", outPath, "--width", "640", "--query", "install", "--theme", "dark")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+outPath)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
}

func TestRenderCommandRejectsBadInput(t *testing.T) {
	_, err := run(t, "render", filepath.Join(t.TempDir(), "missing.md"), "-o", filepath.Join(t.TempDir(), "x.png"))
	assert.Error(t, err)

	_, err = run(t, "render", writeSample(t), "--theme", "sepia")
	assert.Error(t, err)

	_, err = run(t, "render", writeSample(t), "-o", filepath.Join(t.TempDir(), "x.gif"))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "mdzen version dev\n", out)
}

func TestExcerpt(t *testing.T) {
	before, match, after := excerpt("short text here", 6, 10)
	assert.Equal(t, "short ", before)
	assert.Equal(t, "text", match)
	assert.Equal(t, " here", after)

	long := strings.Repeat("a", 50) + "X" + strings.Repeat("b", 50)
	before, match, after = excerpt(long, 50, 51)
	assert.True(t, strings.HasPrefix(before, "…"))
	assert.True(t, strings.HasSuffix(after, "…"))
	assert.Equal(t, "X", match)
}
