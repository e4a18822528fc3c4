// Package imagecache resolves image references to decoded bitmaps in the
// background.
//
// Entries are content-addressed by reference key: a normalized absolute path
// for local images, the URL for remote ones. Resolve never blocks; callers
// poll for completions once per frame.
package imagecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// State of a cache entry.
type State int

const (
	Pending State = iota
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Entry is a snapshot of one cached image.
type Entry struct {
	Key    string
	State  State
	Image  image.Image
	Width  int
	Height int
	Err    error
}

// Reason describes why a Failed entry failed.
func (e Entry) Reason() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Completion reports that the entry for Key reached a terminal state.
type Completion struct {
	Key   string
	State State
}

const DefaultWorkers = 4

// Options configure a Cache.
type Options struct {
	// BaseDir resolves relative local paths. Empty means the working directory.
	BaseDir string
	// MaxEntries bounds the cache with LRU eviction. Zero means unbounded.
	MaxEntries int
	Workers    int
	// FetchTimeout limits a single fetch. Zero means no timeout.
	FetchTimeout time.Duration
	HTTPClient   *http.Client
	// Local and Remote override the default file and HTTP fetchers.
	Local  Fetcher
	Remote Fetcher
	Logger *logrus.Logger
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	store   store
	baseDir string

	local   Fetcher
	remote  Fetcher
	timeout time.Duration
	sem     *semaphore.Weighted
	group   singleflight.Group
	done    chan Completion
	log     *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Cache {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Local == nil {
		opts.Local = FileFetcher{}
	}
	if opts.Remote == nil {
		opts.Remote = HTTPFetcher{Client: opts.HTTPClient}
	}
	var st store = mapStore{}
	if opts.MaxEntries > 0 {
		st = newLRUStore(opts.MaxEntries)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		store:   st,
		baseDir: opts.BaseDir,
		local:   opts.Local,
		remote:  opts.Remote,
		timeout: opts.FetchTimeout,
		sem:     semaphore.NewWeighted(int64(opts.Workers)),
		done:    make(chan Completion, 64),
		log:     opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetBaseDir changes the directory relative local paths resolve against.
// Existing entries keep their keys.
func (c *Cache) SetBaseDir(dir string) {
	c.mu.Lock()
	c.baseDir = dir
	c.mu.Unlock()
}

// Key returns the reference key for source.
func (c *Cache) Key(source string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, _, err := c.route(source)
	return key, err
}

// Resolve returns the current entry for source. Unknown keys start Pending
// and get exactly one background fetch; later calls for a Pending key attach
// to it. Terminal entries are returned as they are.
func (c *Cache) Resolve(source string) Entry {
	c.mu.Lock()
	key, fetcher, err := c.route(source)
	if err != nil {
		e := c.failLocked(key, err)
		c.mu.Unlock()
		return e
	}
	if e, ok := c.store.get(key); ok {
		c.mu.Unlock()
		return *e
	}
	e := &Entry{Key: key, State: Pending}
	c.store.add(key, e)
	snap := *e
	c.mu.Unlock()

	c.fetch(key, fetcher)
	return snap
}

// Reload resets a Loaded or Failed entry to Pending and fetches it again.
// Reloading a Pending entry does nothing.
func (c *Cache) Reload(source string) Entry {
	c.mu.Lock()
	key, fetcher, err := c.route(source)
	if err != nil {
		e := c.failLocked(key, err)
		c.mu.Unlock()
		return e
	}
	e, ok := c.store.get(key)
	if ok && e.State == Pending {
		snap := *e
		c.mu.Unlock()
		return snap
	}
	if !ok {
		e = &Entry{Key: key}
		c.store.add(key, e)
	}
	*e = Entry{Key: key, State: Pending}
	snap := *e
	c.mu.Unlock()

	c.log.WithField("key", key).Debug("imagecache: reload")
	c.fetch(key, fetcher)
	return snap
}

// Lookup returns the entry for source without scheduling anything.
func (c *Cache) Lookup(source string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, _, err := c.route(source)
	if err != nil && key == "" {
		return Entry{}, false
	}
	e, ok := c.store.get(key)
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.len()
}

// Completions exposes the completion channel.
func (c *Cache) Completions() <-chan Completion { return c.done }

// Poll drains pending completions without blocking.
func (c *Cache) Poll() []Completion {
	var out []Completion
	for {
		select {
		case comp := <-c.done:
			out = append(out, comp)
		default:
			return out
		}
	}
}

// Close cancels in-flight fetches and waits for workers to exit.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Cache) failLocked(key string, err error) Entry {
	e := Entry{Key: key, State: Failed, Err: err}
	if key != "" {
		c.store.add(key, &e)
	}
	return e
}

func (c *Cache) fetch(key string, fetcher Fetcher) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ch := c.group.DoChan(key, func() (interface{}, error) {
			return c.load(key, fetcher)
		})
		select {
		case res := <-ch:
			var img image.Image
			if res.Err == nil {
				img = res.Val.(image.Image)
			}
			c.complete(key, img, res.Err)
		case <-c.ctx.Done():
		}
	}()
}

func (c *Cache) load(key string, fetcher Fetcher) (image.Image, error) {
	if err := c.sem.Acquire(c.ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	data, err := fetcher.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imagecache: decoding %s: %w", key, err)
	}
	return img, nil
}

func (c *Cache) complete(key string, img image.Image, err error) {
	if errors.Is(err, context.Canceled) && c.ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	e, ok := c.store.get(key)
	if !ok {
		e = &Entry{Key: key, State: Pending}
		c.store.add(key, e)
	}
	if e.State != Pending {
		c.mu.Unlock()
		return
	}
	if err != nil {
		e.State = Failed
		e.Err = err
	} else {
		b := img.Bounds()
		e.State = Loaded
		e.Image = img
		e.Width = b.Dx()
		e.Height = b.Dy()
	}
	state := e.State
	c.mu.Unlock()

	if err != nil {
		c.log.WithFields(logrus.Fields{"key": key, "error": err}).Warn("imagecache: fetch failed")
	} else {
		c.log.WithField("key", key).Debug("imagecache: loaded")
	}
	select {
	case c.done <- Completion{Key: key, State: state}:
	case <-c.ctx.Done():
	}
}

type store interface {
	get(key string) (*Entry, bool)
	add(key string, e *Entry)
	len() int
}

type mapStore map[string]*Entry

func (m mapStore) get(key string) (*Entry, bool) {
	e, ok := m[key]
	return e, ok
}

func (m mapStore) add(key string, e *Entry) { m[key] = e }

func (m mapStore) len() int { return len(m) }

type lruStore struct {
	c *lru.Cache[string, *Entry]
}

func newLRUStore(size int) lruStore {
	c, _ := lru.New[string, *Entry](size)
	return lruStore{c: c}
}

func (s lruStore) get(key string) (*Entry, bool) { return s.c.Get(key) }

func (s lruStore) add(key string, e *Entry) { s.c.Add(key, e) }

func (s lruStore) len() int { return s.c.Len() }
