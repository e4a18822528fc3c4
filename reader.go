// Package mdzen ties the document model to its derived state: the table of
// contents, search matches, highlighted code and resolved images.
//
// A Reader is owned by one goroutine (the interactive or rendering thread).
// Background work from the highlighter and the image cache is folded in by
// calling Poll once per frame.
package mdzen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/arran4/mdzen/highlight"
	"github.com/arran4/mdzen/imagecache"
	"github.com/arran4/mdzen/markdown"
	"github.com/arran4/mdzen/search"
	"github.com/arran4/mdzen/toc"
	"github.com/sirupsen/logrus"
)

// Options configure a Reader.
type Options struct {
	// BaseDir resolves relative image paths for documents given to Load.
	BaseDir   string
	Highlight highlight.Options
	Images    imagecache.Options
	Search    search.Options
	Logger    *logrus.Logger
}

// Update reports what changed since the previous Poll. Surfaces repaint the
// listed code blocks and images.
type Update struct {
	Generation uint64
	CodeBlocks []markdown.NodeID
	Images     []string
}

// Empty reports whether nothing changed.
func (u Update) Empty() bool {
	return len(u.CodeBlocks) == 0 && len(u.Images) == 0
}

type Reader struct {
	log    *logrus.Logger
	hl     *highlight.Service
	images *imagecache.Cache
	search *search.Engine

	gen    uint64
	doc    *markdown.Document
	toc    []toc.Entry
	keys   map[string]struct{}
	scroll *markdown.Position
}

func New(opts Options) *Reader {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Highlight.Logger == nil {
		opts.Highlight.Logger = opts.Logger
	}
	if opts.Images.Logger == nil {
		opts.Images.Logger = opts.Logger
	}
	if opts.BaseDir != "" {
		opts.Images.BaseDir = opts.BaseDir
	}
	r := &Reader{
		log:    opts.Logger,
		hl:     highlight.NewService(opts.Highlight),
		images: imagecache.New(opts.Images),
		search: search.NewEngine(opts.Search),
	}
	r.Load(nil)
	return r
}

// Load parses src as a new document generation and resets every derived
// view. The active query is kept and re-run against the new document.
func (r *Reader) Load(src []byte) uint64 {
	r.gen++
	start := time.Now()
	r.doc = markdown.Parse(src, markdown.WithGeneration(r.gen))
	r.toc = toc.Build(r.doc)
	r.search.SetDocument(r.doc)
	r.scroll = nil
	r.keys = make(map[string]struct{})
	for _, img := range r.doc.Images() {
		if key, err := r.images.Key(img.Source); err == nil {
			r.keys[key] = struct{}{}
		}
	}
	r.log.WithFields(logrus.Fields{
		"generation": r.gen,
		"bytes":      len(src),
		"nodes":      r.doc.Len(),
		"headings":   len(r.toc),
		"elapsed":    time.Since(start),
	}).Debug("mdzen: document loaded")
	return r.gen
}

// LoadFile reads path and loads it. Relative images resolve against the
// file's directory.
func (r *Reader) LoadFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("mdzen: reading %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("mdzen: resolving %s: %w", path, err)
	}
	r.images.SetBaseDir(filepath.Dir(abs))
	gen := r.Load(src)
	r.log.WithFields(logrus.Fields{"path": abs, "generation": gen}).Info("mdzen: opened")
	return nil
}

func (r *Reader) Document() *markdown.Document { return r.doc }

func (r *Reader) Generation() uint64 { return r.gen }

func (r *Reader) TOC() []toc.Entry { return r.toc }

// Highlighter exposes the colour scheme in use.
func (r *Reader) Highlighter() *highlight.Highlighter { return r.hl.Highlighter() }

// SetQuery runs query against the current document and returns the number of
// matches. The first match becomes the scroll target.
func (r *Reader) SetQuery(query string) int {
	n := r.search.SetQuery(query)
	if m, ok := r.search.Current(); ok {
		r.scrollTo(m.Node)
	}
	return n
}

func (r *Reader) SetCaseSensitive(on bool) {
	opts := r.search.Options()
	opts.CaseSensitive = on
	r.search.SetOptions(opts)
}

func (r *Reader) Query() string { return r.search.Query() }

func (r *Reader) Matches() []search.Match { return r.search.Matches() }

// MatchesIn returns the matches inside one node.
func (r *Reader) MatchesIn(id markdown.NodeID) []search.Match { return r.search.InNode(id) }

// CurrentMatch returns the active match and its index.
func (r *Reader) CurrentMatch() (search.Match, int, bool) {
	m, ok := r.search.Current()
	return m, r.search.Index(), ok
}

func (r *Reader) NextMatch() (search.Match, bool) {
	m, ok := r.search.Next()
	if ok {
		r.scrollTo(m.Node)
	}
	return m, ok
}

func (r *Reader) PreviousMatch() (search.Match, bool) {
	m, ok := r.search.Previous()
	if ok {
		r.scrollTo(m.Node)
	}
	return m, ok
}

// JumpToTOC makes entry's heading the scroll target. Entries from an older
// generation are ignored.
func (r *Reader) JumpToTOC(entry toc.Entry) bool {
	if !r.doc.Valid(entry.Target) {
		r.log.WithFields(logrus.Fields{
			"entry":      entry.Title,
			"generation": entry.Target.Generation,
			"current":    r.gen,
		}).Debug("mdzen: stale toc entry")
		return false
	}
	pos := entry.Target
	r.scroll = &pos
	return true
}

func (r *Reader) scrollTo(id markdown.NodeID) {
	if pos, ok := r.doc.Position(id); ok {
		r.scroll = &pos
	}
}

// ScrollTarget returns the pending scroll request without consuming it.
func (r *Reader) ScrollTarget() (markdown.Position, bool) {
	if r.scroll == nil {
		return markdown.Position{}, false
	}
	return *r.scroll, true
}

// TakeScrollTarget returns and clears the pending scroll request.
func (r *Reader) TakeScrollTarget() (markdown.Position, bool) {
	pos, ok := r.ScrollTarget()
	r.scroll = nil
	return pos, ok
}

// Spans returns the highlight spans for a code block of the current document.
// ready is false while a large block is highlighted in the background; the
// returned neutral spans are replaced once Poll reports the block.
func (r *Reader) Spans(id markdown.NodeID) ([]highlight.Span, bool) {
	n, ok := r.doc.Node(id)
	if !ok {
		return nil, false
	}
	cb, ok := n.(*markdown.CodeBlock)
	if !ok {
		return nil, false
	}
	return r.hl.Spans(r.gen, id, cb.Language, cb.Code)
}

// Image returns the cache entry for source, scheduling a fetch the first time
// it is seen.
func (r *Reader) Image(source string) imagecache.Entry {
	return r.images.Resolve(source)
}

// ReloadImage forces a fresh fetch of source.
func (r *Reader) ReloadImage(source string) imagecache.Entry {
	return r.images.Reload(source)
}

// Poll folds finished background work into the session without blocking.
func (r *Reader) Poll() Update {
	u := Update{Generation: r.gen}
	for _, res := range r.hl.Poll() {
		if res.Generation != r.gen {
			continue
		}
		u.CodeBlocks = append(u.CodeBlocks, res.Node)
	}
	for _, comp := range r.images.Poll() {
		if _, ok := r.keys[comp.Key]; !ok {
			continue
		}
		u.Images = append(u.Images, comp.Key)
	}
	return u
}

// Settle requests spans and images for the whole document and blocks until
// none are outstanding or ctx is done. Headless callers use it before
// rendering a single frame.
func (r *Reader) Settle(ctx context.Context) error {
	waiting := make(map[markdown.NodeID]struct{})
	for _, cb := range r.doc.CodeBlocks() {
		if _, ready := r.Spans(cb.ID()); !ready {
			waiting[cb.ID()] = struct{}{}
		}
	}
	images := make(map[string]struct{})
	for _, img := range r.doc.Images() {
		e := r.Image(img.Source)
		if e.State == imagecache.Pending {
			images[e.Key] = struct{}{}
		}
	}
	for len(waiting) > 0 || len(images) > 0 {
		select {
		case res := <-r.hl.Results():
			if res.Generation == r.gen {
				delete(waiting, res.Node)
			}
		case comp := <-r.images.Completions():
			delete(images, comp.Key)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops background work.
func (r *Reader) Close() {
	r.hl.Close()
	r.images.Close()
}
