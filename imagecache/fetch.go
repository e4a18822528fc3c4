package imagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// MaxImageBytes bounds how much of a remote response is read.
const MaxImageBytes = 64 << 20

var (
	ErrEmptySource       = errors.New("imagecache: empty image source")
	ErrUnsupportedScheme = errors.New("imagecache: unsupported image scheme")
)

// Fetcher returns the raw bytes behind a reference key.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, key string) ([]byte, error) { return f(ctx, key) }

// FileFetcher reads keys as filesystem paths.
type FileFetcher struct{}

func (FileFetcher) Fetch(_ context.Context, key string) ([]byte, error) {
	return os.ReadFile(key)
}

// HTTPFetcher downloads keys as URLs.
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagecache: fetching image %s: %s", key, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes))
}

// route maps an image source to its reference key and the fetcher for its
// scheme. Local paths are made absolute against baseDir so that different
// spellings of the same file share one entry.
func (c *Cache) route(source string) (string, Fetcher, error) {
	dest := strings.TrimSpace(source)
	if dest == "" {
		return "", nil, ErrEmptySource
	}
	scheme := ""
	if idx := strings.Index(dest, "://"); idx != -1 {
		scheme = strings.ToLower(dest[:idx])
	}
	switch scheme {
	case "":
		return c.localKey(dest), c.local, nil
	case "file":
		return c.localKey(dest[len(scheme)+len("://"):]), c.local, nil
	case "http", "https":
		return dest, c.remote, nil
	}
	return dest, nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
}

func (c *Cache) localKey(path string) string {
	if !filepath.IsAbs(path) && c.baseDir != "" {
		path = filepath.Join(c.baseDir, path)
	}
	cleaned := filepath.Clean(path)
	if !filepath.IsAbs(cleaned) {
		if abs, err := filepath.Abs(cleaned); err == nil {
			cleaned = abs
		}
	}
	return cleaned
}
