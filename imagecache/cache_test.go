package imagecache

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{0xFF, 0, 0, 0xFF})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// waitFor blocks until a completion for key arrives.
func waitFor(t *testing.T, c *Cache, key string) Completion {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case comp := <-c.Completions():
			if comp.Key == key {
				return comp
			}
		case <-deadline:
			t.Fatalf("no completion for %s", key)
		}
	}
}

type countingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	data    []byte
	err     error
}

func (f *countingFetcher) Fetch(ctx context.Context, _ string) ([]byte, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.data, f.err
}

func TestResolveDeduplicatesInFlightFetches(t *testing.T) {
	f := &countingFetcher{release: make(chan struct{}), data: pngBytes(t, 3, 2)}
	c := New(Options{BaseDir: "/docs", Local: f, Logger: quietLogger()})
	defer c.Close()

	first := c.Resolve("img/a.png")
	second := c.Resolve("./img/a.png")
	assert.Equal(t, Pending, first.State)
	assert.Equal(t, Pending, second.State)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, filepath.Join("/docs", "img", "a.png"), first.Key)

	close(f.release)
	comp := waitFor(t, c, first.Key)
	assert.Equal(t, Loaded, comp.State)
	assert.Equal(t, int32(1), f.calls.Load())

	e := c.Resolve("img/a.png")
	assert.Equal(t, Loaded, e.State)
	assert.Equal(t, 3, e.Width)
	assert.Equal(t, 2, e.Height)
	assert.NotNil(t, e.Image)
	assert.Equal(t, 1, c.Len())
}

func TestFailedEntriesDoNotRetryUntilReload(t *testing.T) {
	f := &countingFetcher{err: errors.New("permission denied")}
	c := New(Options{BaseDir: "/docs", Local: f, Logger: quietLogger()})
	defer c.Close()

	key := c.Resolve("broken.png").Key
	comp := waitFor(t, c, key)
	assert.Equal(t, Failed, comp.State)

	e := c.Resolve("broken.png")
	assert.Equal(t, Failed, e.State)
	assert.Contains(t, e.Reason(), "permission denied")
	assert.Equal(t, int32(1), f.calls.Load())

	f.err = nil
	f.data = pngBytes(t, 1, 1)
	reloaded := c.Reload("broken.png")
	assert.Equal(t, Pending, reloaded.State)
	assert.Equal(t, Loaded, waitFor(t, c, key).State)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestReloadWhilePendingIsNoop(t *testing.T) {
	f := &countingFetcher{release: make(chan struct{}), data: pngBytes(t, 1, 1)}
	c := New(Options{Local: f, Logger: quietLogger()})
	defer c.Close()

	key := c.Resolve("/x.png").Key
	assert.Equal(t, Pending, c.Reload("/x.png").State)
	close(f.release)
	waitFor(t, c, key)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestLocalFileDecode(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), pngBytes(t, 4, 5), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.png"), []byte("not an image"), 0o600))

	c := New(Options{BaseDir: dir, Logger: quietLogger()})
	defer c.Close()

	key := c.Resolve("a.png").Key
	assert.Equal(t, Loaded, waitFor(t, c, key).State)
	e, ok := c.Lookup("file://" + filepath.Join(dir, "a.png"))
	require.True(t, ok)
	assert.Equal(t, 4, e.Width)
	assert.Equal(t, 5, e.Height)

	bad := c.Resolve("bad.png").Key
	assert.Equal(t, Failed, waitFor(t, c, bad).State)
	e, _ = c.Lookup("bad.png")
	assert.Contains(t, e.Reason(), "decoding")

	missing := c.Resolve("missing.png").Key
	assert.Equal(t, Failed, waitFor(t, c, missing).State)
}

func TestKeyIgnoresFileSchemeCase(t *testing.T) {
	dir := t.TempDir()
	c := New(Options{BaseDir: filepath.Join(dir, "docs"), Logger: quietLogger()})
	defer c.Close()

	abs := filepath.Join(dir, "x.png")
	for _, src := range []string{"file://" + abs, "FILE://" + abs, "File://" + abs, "../x.png"} {
		key, err := c.Key(src)
		require.NoError(t, err, src)
		assert.Equal(t, abs, key, src)
	}
}

func TestRemoteFetch(t *testing.T) {
	body := pngBytes(t, 2, 2)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/ok.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := New(Options{HTTPClient: srv.Client(), Logger: quietLogger()})
	defer c.Close()

	ok := c.Resolve(srv.URL + "/ok.png")
	assert.Equal(t, srv.URL+"/ok.png", ok.Key)
	assert.Equal(t, Loaded, waitFor(t, c, ok.Key).State)

	nf := c.Resolve(srv.URL + "/nope.png")
	assert.Equal(t, Failed, waitFor(t, c, nf.Key).State)
	e, _ := c.Lookup(srv.URL + "/nope.png")
	assert.Contains(t, e.Reason(), "404")
	assert.Equal(t, int32(2), hits.Load())
}

func TestUnsupportedSourcesFailImmediately(t *testing.T) {
	c := New(Options{Logger: quietLogger()})
	defer c.Close()

	e := c.Resolve("ftp://example.com/a.png")
	assert.Equal(t, Failed, e.State)
	assert.True(t, errors.Is(e.Err, ErrUnsupportedScheme))

	e = c.Resolve("   ")
	assert.Equal(t, Failed, e.State)
	assert.True(t, errors.Is(e.Err, ErrEmptySource))
	assert.Empty(t, c.Poll())
}

func TestLRUEvictionKeepsContentAddressing(t *testing.T) {
	f := &countingFetcher{data: pngBytes(t, 1, 1)}
	c := New(Options{BaseDir: "/d", MaxEntries: 1, Local: f, Logger: quietLogger()})
	defer c.Close()

	a := c.Resolve("a.png").Key
	waitFor(t, c, a)
	b := c.Resolve("b.png").Key
	waitFor(t, c, b)

	_, ok := c.Lookup("a.png")
	assert.False(t, ok, "a.png should have been evicted")
	assert.Equal(t, 1, c.Len())

	again := c.Resolve("a.png")
	assert.Equal(t, a, again.Key)
	assert.Equal(t, Pending, again.State)
	assert.Equal(t, Loaded, waitFor(t, c, a).State)
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestFetchTimeout(t *testing.T) {
	f := &countingFetcher{release: make(chan struct{})}
	c := New(Options{FetchTimeout: 20 * time.Millisecond, Local: f, Logger: quietLogger()})
	defer c.Close()

	key := c.Resolve("/slow.png").Key
	assert.Equal(t, Failed, waitFor(t, c, key).State)
	e, _ := c.Lookup("/slow.png")
	assert.True(t, errors.Is(e.Err, context.DeadlineExceeded))
}
