package nav

import (
	"github.com/inkdot-dev/inkpress/pkg/book"
	"github.com/inkdot-dev/inkpress/pkg/fonts"
	"github.com/inkdot-dev/inkpress/pkg/layout"
	"github.com/inkdot-dev/inkpress/pkg/xtc"
)

// Entry is one table-of-contents row. Page is the absolute 0-based index of
// the chapter's first page after TOC insertion.
type Entry struct {
	ChapterID string
	Title     string
	Page      int
}

// Index is the derived navigation state for one laid-out book. It is plain
// data; rebuild it after any visibility change.
type Index struct {
	// Entries lists visible chapters in reading order.
	Entries []Entry
	// TOCPages is the number of generated TOC pages at the front.
	TOCPages int
	// Total is the page count including TOC pages.
	Total int

	// Progress holds one fraction in [0, 1] per absolute page. Pages of
	// hidden chapters carry the fraction of the last visible page before
	// them, so the bar never moves while reading through hidden content.
	Progress []float64

	// Chapter maps each absolute page to its source chapter index, -1 for
	// TOC pages.
	Chapter []int

	pages []layout.Page
	book  *book.Book
}

// Builder computes navigation under a fixed configuration.
type Builder struct {
	cfg layout.Config
	src *fonts.Source
}

// NewBuilder validates the configuration. A nil src falls back to the
// built-in font.
func NewBuilder(cfg layout.Config, src *fonts.Source) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		src = fonts.Fallback()
	}
	return &Builder{cfg: cfg, src: src}, nil
}

// rowsPerTOCPage derives how many entries fit one TOC page from the body
// typography.
func (bl *Builder) rowsPerTOCPage() int {
	_, h := bl.cfg.Dimensions()
	headerSpace := 100 + bl.cfg.TopPadding
	rowH := int(bl.cfg.FontSize * bl.cfg.LineHeight * 1.2)
	available := h - bl.cfg.BottomPadding - headerSpace
	rows := available / rowH
	if rows < 1 {
		rows = 1
	}
	return rows
}

// Build derives the navigation index for a page sequence. Only visible
// chapters appear in Entries; every page, hidden or not, gets a chapter
// assignment and a progress fraction.
func (bl *Builder) Build(b *book.Book, pages []layout.Page) *Index {
	ix := &Index{pages: pages, book: b}

	visible := make(map[int]bool, len(b.Chapters))
	for i, ch := range b.Chapters {
		if ch.Visible {
			visible[i] = true
		}
	}

	// first content page of each chapter, before TOC insertion. Opens covers
	// chapters that start mid-page when chapter page breaks are disabled;
	// page ownership covers sequences laid out before Opens existed.
	first := make(map[int]int)
	for pi, p := range pages {
		for _, ci := range p.Opens {
			if _, ok := first[ci]; !ok {
				first[ci] = pi
			}
		}
		if _, ok := first[p.Chapter]; !ok {
			first[p.Chapter] = pi
		}
	}

	var entryChapters []int
	for i, ch := range b.Chapters {
		if ch.Visible {
			if _, ok := first[i]; ok {
				entryChapters = append(entryChapters, i)
			}
		}
	}

	if bl.cfg.GenerateTOC && len(entryChapters) > 0 {
		rows := bl.rowsPerTOCPage()
		ix.TOCPages = (len(entryChapters) + rows - 1) / rows
	}
	ix.Total = ix.TOCPages + len(pages)

	for _, ci := range entryChapters {
		ix.Entries = append(ix.Entries, Entry{
			ChapterID: b.Chapters[ci].ID,
			Title:     b.Chapters[ci].Title,
			Page:      first[ci] + ix.TOCPages,
		})
	}

	totalVisible := 0
	for _, p := range pages {
		if visible[p.Chapter] {
			totalVisible++
		}
	}

	ix.Progress = make([]float64, ix.Total)
	ix.Chapter = make([]int, ix.Total)
	for i := 0; i < ix.TOCPages; i++ {
		ix.Chapter[i] = -1
	}
	seen := 0
	for pi, p := range pages {
		abs := ix.TOCPages + pi
		ix.Chapter[abs] = p.Chapter
		if visible[p.Chapter] {
			seen++
		}
		if totalVisible > 0 {
			ix.Progress[abs] = float64(seen) / float64(totalVisible)
		}
	}
	return ix
}

// ChapterTitle returns the visible chapter title shown in the footer of an
// absolute page, or "" for TOC pages and hidden chapters.
func (ix *Index) ChapterTitle(page int) string {
	if page < 0 || page >= len(ix.Chapter) {
		return ""
	}
	ci := ix.Chapter[page]
	for _, e := range ix.Entries {
		if ix.book.ChapterIndex(e.ChapterID) == ci {
			return e.Title
		}
	}
	return ""
}

// Meta builds the per-page metadata table stored in the container.
func (ix *Index) Meta() []xtc.PageMeta {
	meta := make([]xtc.PageMeta, ix.Total)
	for i := 0; i < ix.Total; i++ {
		if ix.Chapter[i] < 0 {
			meta[i] = xtc.PageMeta{Chapter: -1, TOC: true}
			continue
		}
		meta[i] = xtc.PageMeta{
			ChapterID: ix.book.Chapters[ix.Chapter[i]].ID,
			Chapter:   ix.Chapter[i],
			Progress:  ix.Progress[i],
		}
	}
	return meta
}

// TOCTable builds the chapter jump table stored in the container.
func (ix *Index) TOCTable() []xtc.TOCEntry {
	out := make([]xtc.TOCEntry, 0, len(ix.Entries))
	for _, e := range ix.Entries {
		out = append(out, xtc.TOCEntry{Title: e.Title, ChapterID: e.ChapterID, Page: e.Page})
	}
	return out
}
