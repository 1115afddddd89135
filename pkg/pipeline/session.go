package pipeline

import (
	"context"
	"image"
	"sync"

	"github.com/inkdot-dev/inkpress/pkg/book"
	"github.com/inkdot-dev/inkpress/pkg/cache"
	"github.com/inkdot-dev/inkpress/pkg/errors"
	"github.com/inkdot-dev/inkpress/pkg/hyphen"
	"github.com/inkdot-dev/inkpress/pkg/layout"
	"github.com/inkdot-dev/inkpress/pkg/nav"
	"github.com/inkdot-dev/inkpress/pkg/raster"
)

// Session keeps one converted book in memory for interactive preview.
// Pages render on demand; toggling chapter visibility rebuilds only the
// navigation index and TOC pages, never the layout.
//
// Sessions are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	runner   *Runner
	opts     Options
	book     *book.Book
	pages    []layout.Page
	index    *nav.Index
	builder  *nav.Builder
	renderer *raster.Renderer
	toc      []*image.Gray

	layoutHash string
}

// NewSession parses and lays out the book once. Rasterization is deferred
// to RenderPage.
func NewSession(ctx context.Context, runner *Runner, opts Options) (*Session, []error, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, nil, err
	}

	b, _, warns, err := runner.ParseWithCacheInfo(ctx, opts)
	if err != nil {
		return nil, warns, err
	}
	if !opts.DisableHyphenation {
		if hyphenated, ok := hyphen.Book(b, opts.Language); ok {
			b = hyphenated
		}
	}

	pages, _, lwarns, err := runner.LayoutWithCacheInfo(ctx, b, opts)
	warns = append(warns, lwarns...)
	if err != nil {
		return nil, warns, err
	}

	src, fwarns := fontSource(opts)
	warns = append(warns, fwarns...)
	builder, err := nav.NewBuilder(opts.Layout, src)
	if err != nil {
		return nil, warns, err
	}
	renderer, err := raster.New(opts.Layout, src)
	if err != nil {
		return nil, warns, err
	}

	s := &Session{
		runner:     runner,
		opts:       opts,
		book:       b,
		pages:      pages,
		builder:    builder,
		renderer:   renderer,
		layoutHash: cache.Hash([]byte(contentHash(b) + opts.Layout.Fingerprint())),
	}
	s.rebuildIndex()
	return s, warns, nil
}

// rebuildIndex recomputes navigation from current visibility. Callers hold
// the lock or run before the session is shared.
func (s *Session) rebuildIndex() {
	s.index = s.builder.Build(s.book, s.pages)
	s.toc = s.builder.RenderTOC(s.index)
}

// Book returns the session's document. Treat it as read-only; change
// visibility through SetChapterVisibility.
func (s *Session) Book() *book.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book
}

// PageCount returns the total page count including TOC pages.
func (s *Session) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Total
}

// Index returns the current navigation index. It is replaced, not
// mutated, on visibility changes.
func (s *Session) Index() *nav.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// SetChapterVisibility toggles a chapter and rebuilds navigation. The page
// layout is untouched, so hiding or unhiding is instant.
func (s *Session) SetChapterVisibility(id string, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.book.SetVisibility(id, visible) {
		return errors.New(errors.ErrCodeChapterNotFound, "unknown chapter %q", id)
	}
	s.rebuildIndex()
	return nil
}

// RenderPage renders one absolute page, footer included. Content renders
// are served from the page cache when possible; the footer is stamped
// fresh so it always reflects current visibility.
func (s *Session) RenderPage(ctx context.Context, abs int) (*image.Gray, []error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if abs < 0 || abs >= s.index.Total {
		return nil, nil, errors.New(errors.ErrCodePageNotFound, "page %d out of range [0, %d)", abs, s.index.Total)
	}
	if abs < s.index.TOCPages {
		return s.builder.Stamp(s.index, s.toc[abs], abs), nil, nil
	}

	pi := abs - s.index.TOCPages
	img, warns, err := s.renderContent(ctx, pi)
	if err != nil {
		return nil, warns, err
	}
	return s.builder.Stamp(s.index, img, abs), warns, nil
}

// renderContent renders the pi-th content page, consulting the page cache
// keyed by layout identity.
func (s *Session) renderContent(ctx context.Context, pi int) (*image.Gray, []error, error) {
	w, h := s.renderer.Size()
	key := s.runner.Keyer.PageKey(s.layoutHash, pi)
	if !s.opts.Refresh {
		if data, ok := s.runner.cacheGet(ctx, key, "page"); ok && len(data) == w*h {
			img := image.NewGray(image.Rect(0, 0, w, h))
			copy(img.Pix, data)
			return img, nil, nil
		}
	}

	img, warns, err := s.renderer.Render(s.book, &s.pages[pi])
	if err != nil {
		return nil, warns, err
	}
	s.runner.cacheSet(ctx, key, "page", img.Pix, cache.TTLPage)
	return img, warns, nil
}

// Container encodes the session into XTC bytes under current visibility.
func (s *Session) Container(ctx context.Context) ([]byte, []error, error) {
	s.mu.Lock()
	b, pages := s.book, s.pages
	opts := s.opts
	s.mu.Unlock()

	opts.Book = b
	data, _, _, warns, err := s.runner.EncodeWithCacheInfo(ctx, b, pages, opts)
	return data, warns, err
}
