package pipeline

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/inkdot-dev/inkpress/pkg/book"
	"github.com/inkdot-dev/inkpress/pkg/cache"
	"github.com/inkdot-dev/inkpress/pkg/epub"
	"github.com/inkdot-dev/inkpress/pkg/fonts"
	"github.com/inkdot-dev/inkpress/pkg/hyphen"
	"github.com/inkdot-dev/inkpress/pkg/layout"
	"github.com/inkdot-dev/inkpress/pkg/nav"
	"github.com/inkdot-dev/inkpress/pkg/observability"
	"github.com/inkdot-dev/inkpress/pkg/raster"
	"github.com/inkdot-dev/inkpress/pkg/xtc"
)

// Runner executes conversions with caching. The zero value is not usable;
// construct one with NewRunner.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner. A nil cache disables caching, a nil keyer
// selects the default key scheme, and a nil logger discards output.
func NewRunner(c cache.Cache, k cache.Keyer, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if k == nil {
		k = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Runner{Cache: c, Keyer: k, Logger: logger}
}

// Close releases the cache backend.
func (r *Runner) Close() error {
	return r.Cache.Close()
}

// applyLogger lets per-call options override the runner's logger.
func (r *Runner) applyLogger(opts *Options) *log.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return r.Logger
}

// Execute runs the full conversion: parse, hyphenate, layout, rasterize,
// encode. Recoverable problems land in Result.Warnings; only errors that
// make the output unusable abort the run.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := r.applyLogger(&opts)
	hooks := observability.Pipeline()
	res := &Result{}
	start := time.Now()

	hooks.OnParseStart(ctx, opts.Source)
	t := time.Now()
	b, hit, warns, err := r.ParseWithCacheInfo(ctx, opts)
	res.Stats.ParseTime = time.Since(t)
	hooks.OnParseComplete(ctx, opts.Source, chapterCount(b), res.Stats.ParseTime, err)
	if err != nil {
		return nil, err
	}
	res.Book = b
	res.CacheInfo.BookFromCache = hit
	res.Warnings = append(res.Warnings, warns...)
	res.Stats.ChapterCount = len(b.Chapters)
	logger.Info("parsed book",
		"source", opts.Source,
		"chapters", len(b.Chapters),
		"cached", hit,
		"duration", res.Stats.ParseTime)

	work := b
	if !opts.DisableHyphenation {
		hyphenated, ok := hyphen.Book(b, opts.Language)
		if ok {
			work = hyphenated
		} else {
			logger.Debug("no hyphenation dictionary", "language", b.Language)
		}
	}

	hooks.OnLayoutStart(ctx, len(work.Chapters))
	t = time.Now()
	pages, lhit, lwarns, err := r.LayoutWithCacheInfo(ctx, work, opts)
	res.Stats.LayoutTime = time.Since(t)
	hooks.OnLayoutComplete(ctx, len(pages), res.Stats.LayoutTime, err)
	if err != nil {
		return nil, err
	}
	res.Pages = pages
	res.CacheInfo.LayoutFromCache = lhit
	res.Warnings = append(res.Warnings, lwarns...)
	logger.Info("laid out book",
		"pages", len(pages),
		"cached", lhit,
		"duration", res.Stats.LayoutTime)

	t = time.Now()
	data, ix, ehit, ewarns, err := r.EncodeWithCacheInfo(ctx, work, pages, opts)
	res.Stats.RenderTime = time.Since(t)
	if err != nil {
		return nil, err
	}
	res.Container = data
	res.Index = ix
	res.CacheInfo.ContainerFromCache = ehit
	res.Warnings = append(res.Warnings, ewarns...)
	res.Stats.PageCount = ix.Total
	res.Stats.ContainerBytes = len(data)
	res.Stats.TotalTime = time.Since(start)
	logger.Info("encoded container",
		"pages", ix.Total,
		"bytes", len(data),
		"cached", ehit,
		"duration", res.Stats.RenderTime)
	return res, nil
}

// ParseWithCacheInfo parses the EPUB, serving the book from cache when the
// same source bytes were seen before. When Options.Book is set it is
// returned as-is and the cache is not consulted.
func (r *Runner) ParseWithCacheInfo(ctx context.Context, opts Options) (*book.Book, bool, []error, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, false, nil, err
	}
	if opts.Book != nil {
		return opts.Book, false, nil, nil
	}

	key := r.Keyer.BookKey(cache.Hash(opts.EPUB))
	if !opts.Refresh {
		if data, ok := r.cacheGet(ctx, key, "book"); ok {
			if b, err := book.Unmarshal(data); err == nil {
				return b, true, nil, nil
			}
			// corrupt entry, fall through to a fresh parse
		}
	}

	b, warns, err := epub.Parse(opts.EPUB)
	if err != nil {
		return nil, false, warns, err
	}
	if data, err := book.Marshal(b); err == nil {
		r.cacheSet(ctx, key, "book", data, cache.TTLBook)
	}
	return b, false, warns, nil
}

// Parse is the convenience wrapper around ParseWithCacheInfo.
func (r *Runner) Parse(ctx context.Context, opts Options) (*book.Book, []error, error) {
	b, _, warns, err := r.ParseWithCacheInfo(ctx, opts)
	return b, warns, err
}

// LayoutWithCacheInfo lays out the book into pages. The cache key covers
// the book's content and the layout configuration but not chapter
// visibility, so toggling a chapter reuses the same page sequence.
func (r *Runner) LayoutWithCacheInfo(ctx context.Context, b *book.Book, opts Options) ([]layout.Page, bool, []error, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, false, nil, err
	}

	key := r.Keyer.LayoutKey(contentHash(b), opts.Layout.Fingerprint())
	if !opts.Refresh {
		if data, ok := r.cacheGet(ctx, key, "layout"); ok {
			if pages, err := layout.UnmarshalPages(data); err == nil {
				return pages, true, nil, nil
			}
		}
	}

	src, warns := fontSource(opts)
	engine, err := layout.NewEngine(opts.Layout, src)
	if err != nil {
		return nil, false, warns, err
	}
	pages, lwarns, err := engine.Layout(b)
	warns = append(warns, lwarns...)
	if err != nil {
		return nil, false, warns, err
	}
	if data, err := layout.MarshalPages(pages); err == nil {
		r.cacheSet(ctx, key, "layout", data, cache.TTLLayout)
	}
	return pages, false, warns, nil
}

// Layout is the convenience wrapper around LayoutWithCacheInfo.
func (r *Runner) Layout(ctx context.Context, b *book.Book, opts Options) ([]layout.Page, []error, error) {
	pages, _, warns, err := r.LayoutWithCacheInfo(ctx, b, opts)
	return pages, warns, err
}

// EncodeWithCacheInfo rasterizes the pages, builds the navigation overlay
// and encodes the container. The cache key adds chapter visibility on top
// of the layout identity, since visibility changes the TOC and progress
// tables without changing the pages.
func (r *Runner) EncodeWithCacheInfo(ctx context.Context, b *book.Book, pages []layout.Page, opts Options) ([]byte, *nav.Index, bool, []error, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, nil, false, nil, err
	}

	src, warns := fontSource(opts)
	builder, err := nav.NewBuilder(opts.Layout, src)
	if err != nil {
		return nil, nil, false, warns, err
	}
	ix := builder.Build(b, pages)

	layoutHash := cache.Hash([]byte(contentHash(b) + opts.Layout.Fingerprint()))
	key := r.Keyer.ContainerKey(layoutHash, visibilityHash(b))
	if !opts.Refresh {
		if data, ok := r.cacheGet(ctx, key, "container"); ok {
			return data, ix, true, warns, nil
		}
	}

	data, rwarns, err := r.renderContainer(ctx, b, pages, ix, builder, src, opts)
	warns = append(warns, rwarns...)
	if err != nil {
		return nil, nil, false, warns, err
	}
	r.cacheSet(ctx, key, "container", data, cache.TTLContainer)
	return data, ix, false, warns, nil
}

// renderContainer produces the finished XTC bytes for one navigation
// index. Content pages render in parallel; TOC pages and footer stamping
// are cheap and stay sequential.
func (r *Runner) renderContainer(ctx context.Context, b *book.Book, pages []layout.Page, ix *nav.Index, builder *nav.Builder, src *fonts.Source, opts Options) ([]byte, []error, error) {
	hooks := observability.Pipeline()

	renderer, err := raster.New(opts.Layout, src)
	if err != nil {
		return nil, nil, err
	}

	hooks.OnRasterStart(ctx, ix.Total)
	t := time.Now()

	all := make([]*image.Gray, ix.Total)
	copy(all, builder.RenderTOC(ix))

	var (
		mu    sync.Mutex
		warns []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, pwarns, err := renderer.Render(b, &pages[i])
			if err != nil {
				return err
			}
			mu.Lock()
			warns = append(warns, pwarns...)
			mu.Unlock()
			all[ix.TOCPages+i] = img
			return nil
		})
	}
	err = g.Wait()
	hooks.OnRasterComplete(ctx, ix.Total, time.Since(t), err)
	if err != nil {
		return nil, warns, err
	}

	for abs := range all {
		all[abs] = builder.Stamp(ix, all[abs], abs)
	}

	w, h := opts.Layout.Dimensions()
	container := &xtc.Container{
		Title:    b.Title,
		Author:   b.Author,
		Width:    w,
		Height:   h,
		BitDepth: opts.Layout.BitDepth,
		Pages:    all,
		Meta:     ix.Meta(),
		TOC:      ix.TOCTable(),
	}

	hooks.OnEncodeStart(ctx, ix.Total)
	t = time.Now()
	data, err := xtc.Encode(container)
	hooks.OnEncodeComplete(ctx, len(data), time.Since(t), err)
	if err != nil {
		return nil, warns, err
	}
	return data, warns, nil
}

// cacheGet reads a key, reporting hits and misses to the cache hooks.
// Backend errors degrade to misses.
func (r *Runner) cacheGet(ctx context.Context, key, keyType string) ([]byte, bool) {
	data, ok, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Warn("cache read failed", "type", keyType, "error", err)
		observability.Cache().OnCacheMiss(ctx, keyType)
		return nil, false
	}
	if !ok {
		observability.Cache().OnCacheMiss(ctx, keyType)
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, keyType)
	return data, true
}

// cacheSet stores a key, reporting the write to the cache hooks. Backend
// errors are logged and swallowed; a failed write never fails the run.
func (r *Runner) cacheSet(ctx context.Context, key, keyType string, data []byte, ttl time.Duration) {
	if err := r.Cache.Set(ctx, key, data, ttl); err != nil {
		r.Logger.Warn("cache write failed", "type", keyType, "error", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, keyType, len(data))
}

// fontSource resolves the configured font, downgrading a malformed font to
// a warning plus the built-in fallback.
func fontSource(opts Options) (*fonts.Source, []error) {
	src, err := fonts.Load(opts.Layout.FontData)
	if err != nil {
		return src, []error{err}
	}
	return src, nil
}

// contentHash fingerprints the book with every chapter forced visible, so
// visibility edits do not invalidate layout cache entries.
func contentHash(b *book.Book) string {
	c := b.Clone()
	for i := range c.Chapters {
		c.Chapters[i].Visible = true
	}
	return c.Fingerprint()
}

// visibilityHash condenses the chapter visibility flags into a cache key
// component.
func visibilityHash(b *book.Book) string {
	buf := make([]byte, 0, len(b.Chapters)*8)
	for _, ch := range b.Chapters {
		v := byte('0')
		if ch.Visible {
			v = '1'
		}
		buf = append(buf, ch.ID...)
		buf = append(buf, '=', v, ';')
	}
	return cache.Hash(buf)
}

func chapterCount(b *book.Book) int {
	if b == nil {
		return 0
	}
	return len(b.Chapters)
}
