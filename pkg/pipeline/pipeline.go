// Package pipeline orchestrates the EPUB to XTC conversion.
//
// # Architecture
//
// A conversion runs through four stages, each cacheable on its own:
//
//	parse     EPUB bytes -> book.Book        (keyed by source hash)
//	layout    book.Book  -> []layout.Page    (keyed by content + config)
//	raster    layout.Page -> grayscale pages (data parallel)
//	encode    pages + nav -> XTC container   (keyed by layout + visibility)
//
// Hyphenation runs between parse and layout when a dictionary for the
// book's language is available. Layout is sequential because every page
// start depends on where the previous page ended; rasterization is
// embarrassingly parallel and fans out across a worker pool.
//
// # Usage
//
//	runner := pipeline.NewRunner(fileCache, nil, logger)
//	defer runner.Close()
//
//	result, err := runner.Execute(ctx, pipeline.Options{
//		EPUB:   data,
//		Source: "book.epub",
//	})
//
// Result.Container holds the finished XTC bytes; Result.Warnings carries
// recoverable problems (missing images, broken TOC entries) that did not
// stop the conversion.
package pipeline

import (
	"io"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"github.com/inkdot-dev/inkpress/pkg/book"
	"github.com/inkdot-dev/inkpress/pkg/errors"
	"github.com/inkdot-dev/inkpress/pkg/layout"
	"github.com/inkdot-dev/inkpress/pkg/nav"
)

// Options configures a single conversion.
type Options struct {
	// EPUB holds the raw source archive. Ignored when Book is set.
	EPUB []byte `json:"-"`

	// Source labels the input in logs and hooks, typically the filename.
	Source string `json:"source,omitempty"`

	// Book skips parsing and feeds an already assembled document into the
	// pipeline. Used by the preview server after visibility edits.
	Book *book.Book `json:"-"`

	// Layout carries the typography profile. The zero value is replaced
	// by layout.Default().
	Layout layout.Config `json:"layout"`

	// Language overrides the book's declared language when picking a
	// hyphenation dictionary.
	Language string `json:"language,omitempty"`

	// DisableHyphenation skips soft hyphen insertion entirely.
	DisableHyphenation bool `json:"disable_hyphenation,omitempty"`

	// Workers bounds the rasterization pool. Defaults to GOMAXPROCS.
	Workers int `json:"workers,omitempty"`

	// Refresh bypasses cache reads and overwrites stored entries.
	Refresh bool `json:"refresh,omitempty"`

	// Logger receives stage progress. Defaults to a discard logger.
	Logger *log.Logger `json:"-"`

	validated bool
}

// ValidateAndSetDefaults checks the options and fills in defaults. It is
// idempotent; Execute calls it on your behalf.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if len(o.EPUB) == 0 && o.Book == nil {
		return errors.New(errors.ErrCodeParseInput, "no EPUB data or book provided")
	}
	if o.Layout.PageWidth == 0 && o.Layout.PageHeight == 0 {
		fontData := o.Layout.FontData
		o.Layout = layout.Default()
		o.Layout.FontData = fontData
	}
	if err := o.Layout.Validate(); err != nil {
		return err
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// Stats aggregates timing and size information for one conversion.
type Stats struct {
	ChapterCount   int           `json:"chapter_count"`
	PageCount      int           `json:"page_count"`
	ContainerBytes int           `json:"container_bytes"`
	ParseTime      time.Duration `json:"parse_time"`
	LayoutTime     time.Duration `json:"layout_time"`
	RenderTime     time.Duration `json:"render_time"`
	TotalTime      time.Duration `json:"total_time"`
}

// CacheInfo records which stages were served from cache.
type CacheInfo struct {
	BookFromCache      bool `json:"book_from_cache"`
	LayoutFromCache    bool `json:"layout_from_cache"`
	ContainerFromCache bool `json:"container_from_cache"`
}

// Result is the outcome of a successful conversion.
type Result struct {
	// Book is the parsed document, hyphenated when a dictionary matched.
	Book *book.Book

	// Pages is the device independent layout, one entry per content page.
	Pages []layout.Page

	// Index maps pages to chapters and carries TOC targets and progress.
	Index *nav.Index

	// Container holds the encoded XTC file.
	Container []byte

	// Warnings lists recoverable problems encountered along the way.
	Warnings []error

	Stats     Stats     `json:"stats"`
	CacheInfo CacheInfo `json:"cache_info"`
}
