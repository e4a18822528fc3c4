package highlight

import (
	"context"
	"strconv"
	"sync"

	"github.com/arran4/mdzen/markdown"
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultThreshold = 32 << 10
	DefaultCacheSize = 256
	DefaultWorkers   = 2
)

// Options configure a Service. Zero values select the defaults.
type Options struct {
	Style string
	// Threshold is the code size in bytes above which highlighting moves to a
	// background worker.
	Threshold int
	CacheSize int
	Workers   int
	Logger    *logrus.Logger
}

// Result announces that spans for a code block finished in the background.
// Call Spans again to fetch them; they are held for that call even if the
// cache has evicted them meanwhile.
type Result struct {
	Generation uint64
	Node       markdown.NodeID
}

// Service highlights lazily and caches spans by (language, content).
type finished struct {
	key   uint64
	spans []Span
}

type Service struct {
	hl        *Highlighter
	cache     *lru.Cache[uint64, []Span]
	threshold int
	sem       *semaphore.Weighted
	group     singleflight.Group
	log       *logrus.Logger

	mu      sync.Mutex
	pending map[Result]struct{}
	done    map[Result]finished
	results chan Result

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(opts Options) *Service {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	cache, _ := lru.New[uint64, []Span](opts.CacheSize)
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		hl:        New(opts.Style),
		cache:     cache,
		threshold: opts.Threshold,
		sem:       semaphore.NewWeighted(int64(opts.Workers)),
		log:       opts.Logger,
		pending:   make(map[Result]struct{}),
		done:      make(map[Result]finished),
		results:   make(chan Result, 64),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Highlighter returns the underlying highlighter.
func (s *Service) Highlighter() *Highlighter { return s.hl }

// Spans returns the spans for a code block of the given generation. Small
// blocks are highlighted on the spot. Blocks over the threshold return
// Neutral(code) and ready=false while a worker highlights them; a Result for
// (gen, node) is posted when the spans are cached.
func (s *Service) Spans(gen uint64, node markdown.NodeID, lang, code string) ([]Span, bool) {
	key := cacheKey(lang, code)
	res := Result{Generation: gen, Node: node}
	if spans, ok := s.takeFinished(key, res); ok {
		s.cache.Add(key, spans)
		return spans, true
	}
	if spans, ok := s.cache.Get(key); ok {
		return spans, true
	}
	if len(code) <= s.threshold {
		spans := s.hl.Highlight(code, lang)
		s.cache.Add(key, spans)
		return spans, true
	}
	s.schedule(key, res, lang, code)
	return Neutral(code), false
}

// takeFinished hands over spans a worker produced for res. Handoffs left by
// older generations are dropped.
func (s *Service) takeFinished(key uint64, res Result) ([]Span, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.done) == 0 {
		return nil, false
	}
	f, ok := s.done[res]
	delete(s.done, res)
	for r := range s.done {
		if r.Generation < res.Generation {
			delete(s.done, r)
		}
	}
	if !ok || f.key != key {
		return nil, false
	}
	return f.spans, true
}

// Cached reports whether spans for (lang, code) are already available.
func (s *Service) Cached(lang, code string) bool {
	return s.cache.Contains(cacheKey(lang, code))
}

func (s *Service) schedule(key uint64, res Result, lang, code string) {
	s.mu.Lock()
	if _, ok := s.pending[res]; ok {
		s.mu.Unlock()
		return
	}
	s.pending[res] = struct{}{}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"generation": res.Generation,
		"node":       res.Node,
		"bytes":      len(code),
	}).Debug("highlight: deferred to background")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.pending, res)
			s.mu.Unlock()
		}()
		ch := s.group.DoChan(strconv.FormatUint(key, 16), func() (interface{}, error) {
			if err := s.sem.Acquire(s.ctx, 1); err != nil {
				return nil, err
			}
			defer s.sem.Release(1)
			spans := s.hl.Highlight(code, lang)
			s.cache.Add(key, spans)
			return spans, nil
		})
		select {
		case r := <-ch:
			if r.Err != nil {
				return
			}
			s.mu.Lock()
			s.done[res] = finished{key: key, spans: r.Val.([]Span)}
			s.mu.Unlock()
		case <-s.ctx.Done():
			return
		}
		select {
		case s.results <- res:
		case <-s.ctx.Done():
		}
	}()
}

// Results exposes the completion channel.
func (s *Service) Results() <-chan Result { return s.results }

// Poll drains completed results without blocking.
func (s *Service) Poll() []Result {
	var out []Result
	for {
		select {
		case r := <-s.results:
			out = append(out, r)
		default:
			return out
		}
	}
}

// Close stops background work and waits for workers to exit.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func cacheKey(lang, code string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(normalizeLanguage(lang))
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(code)
	return d.Sum64()
}
