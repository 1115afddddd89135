package pipeline

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/inkdot-dev/inkpress/pkg/book"
	"github.com/inkdot-dev/inkpress/pkg/cache"
	"github.com/inkdot-dev/inkpress/pkg/errors"
	"github.com/inkdot-dev/inkpress/pkg/layout"
	"github.com/inkdot-dev/inkpress/pkg/xtc"
)

func testBook() *book.Book {
	prose := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)
	chapter := func(id, title string) book.Chapter {
		return book.Chapter{
			ID:      id,
			Title:   title,
			Visible: true,
			Blocks: []book.Block{
				book.NewHeadingBlock(book.Run{Text: title}),
				book.NewTextBlock(book.Run{Text: prose}),
			},
		}
	}
	return &book.Book{
		Title:    "Pipeline Test",
		Author:   "Tester",
		Language: "en",
		Chapters: []book.Chapter{
			chapter("c1", "First"),
			chapter("c2", "Second"),
			chapter("c3", "Third"),
		},
	}
}

func testConfig() layout.Config {
	cfg := layout.Default()
	cfg.PageWidth = 240
	cfg.PageHeight = 320
	cfg.FontSize = 14
	cfg.RenderScale = 1
	return cfg
}

func TestExecuteEndToEnd(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	defer r.Close()

	res, err := r.Execute(context.Background(), Options{
		Book:   testBook(),
		Layout: testConfig(),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
	if len(res.Pages) == 0 {
		t.Fatal("no pages laid out")
	}
	if res.Stats.PageCount != res.Index.Total {
		t.Errorf("stats page count %d, index total %d", res.Stats.PageCount, res.Index.Total)
	}

	c, err := xtc.Decode(res.Container)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.Title != "Pipeline Test" || c.Author != "Tester" {
		t.Errorf("metadata = %q by %q", c.Title, c.Author)
	}
	if len(c.Pages) != res.Index.Total {
		t.Errorf("container has %d pages, want %d", len(c.Pages), res.Index.Total)
	}
	if len(c.TOC) != 3 {
		t.Errorf("container TOC has %d entries, want 3", len(c.TOC))
	}
	if len(c.Meta) != len(c.Pages) {
		t.Errorf("meta table has %d entries for %d pages", len(c.Meta), len(c.Pages))
	}
}

func TestExecuteRequiresInput(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	defer r.Close()

	_, err := r.Execute(context.Background(), Options{})
	if !errors.Is(err, errors.ErrCodeParseInput) {
		t.Fatalf("err = %v, want PARSE_INPUT", err)
	}
}

func TestExecuteServesSecondRunFromCache(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	r := NewRunner(fc, nil, nil)
	defer r.Close()

	opts := Options{Book: testBook(), Layout: testConfig()}
	first, err := r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if first.CacheInfo.LayoutFromCache || first.CacheInfo.ContainerFromCache {
		t.Error("first run should not hit the cache")
	}

	second, err := r.Execute(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !second.CacheInfo.LayoutFromCache {
		t.Error("second run should reuse the layout")
	}
	if !second.CacheInfo.ContainerFromCache {
		t.Error("second run should reuse the container")
	}

	refreshed, err := r.Execute(context.Background(), Options{
		Book:    testBook(),
		Layout:  testConfig(),
		Refresh: true,
	})
	if err != nil {
		t.Fatalf("refresh Execute: %v", err)
	}
	if refreshed.CacheInfo.LayoutFromCache || refreshed.CacheInfo.ContainerFromCache {
		t.Error("refresh run should bypass the cache")
	}
}

func TestVisibilityReusesLayoutButNotContainer(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	r := NewRunner(fc, nil, nil)
	defer r.Close()

	all, err := r.Execute(context.Background(), Options{Book: testBook(), Layout: testConfig()})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	hidden := testBook()
	hidden.SetVisibility("c2", false)
	got, err := r.Execute(context.Background(), Options{Book: hidden, Layout: testConfig()})
	if err != nil {
		t.Fatalf("Execute with hidden chapter: %v", err)
	}
	if !got.CacheInfo.LayoutFromCache {
		t.Error("visibility change should not invalidate the layout")
	}
	if got.CacheInfo.ContainerFromCache {
		t.Error("visibility change must produce a different container")
	}
	if len(got.Pages) != len(all.Pages) {
		t.Errorf("page count changed from %d to %d", len(all.Pages), len(got.Pages))
	}

	c, err := xtc.Decode(got.Container)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for _, e := range c.TOC {
		if e.ChapterID == "c2" {
			t.Error("hidden chapter listed in container TOC")
		}
	}
	if len(c.TOC) != 2 {
		t.Errorf("container TOC has %d entries, want 2", len(c.TOC))
	}
}

func TestSessionRenderAndToggle(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	defer r.Close()

	s, warns, err := NewSession(context.Background(), r, Options{
		Book:   testBook(),
		Layout: testConfig(),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if len(warns) != 0 {
		t.Errorf("unexpected warnings: %v", warns)
	}

	total := s.PageCount()
	if total != s.Index().Total {
		t.Errorf("PageCount %d, index total %d", total, s.Index().Total)
	}

	img, _, err := s.RenderPage(context.Background(), 0)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	w, h := testConfig().Dimensions()
	if img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		t.Errorf("page is %v, want %dx%d", img.Bounds(), w, h)
	}

	if _, _, err := s.RenderPage(context.Background(), total); !errors.Is(err, errors.ErrCodePageNotFound) {
		t.Errorf("out of range err = %v, want PAGE_NOT_FOUND", err)
	}

	contentPage := s.Index().TOCPages
	before, _, err := s.RenderPage(context.Background(), contentPage)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}

	entriesBefore := len(s.Index().Entries)
	if err := s.SetChapterVisibility("c2", false); err != nil {
		t.Fatalf("SetChapterVisibility: %v", err)
	}
	if s.PageCount() != total {
		t.Errorf("PageCount changed from %d to %d after hiding", total, s.PageCount())
	}
	if got := len(s.Index().Entries); got != entriesBefore-1 {
		t.Errorf("TOC entries = %d, want %d", got, entriesBefore-1)
	}

	if err := s.SetChapterVisibility("nope", false); !errors.Is(err, errors.ErrCodeChapterNotFound) {
		t.Errorf("unknown chapter err = %v, want CHAPTER_NOT_FOUND", err)
	}

	// hiding and unhiding must restore the exact rendered bitmaps
	if err := s.SetChapterVisibility("c2", true); err != nil {
		t.Fatalf("SetChapterVisibility: %v", err)
	}
	after, _, err := s.RenderPage(context.Background(), contentPage)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	if !bytes.Equal(before.Pix, after.Pix) {
		t.Error("page bitmap changed across hide and unhide")
	}
	if err := s.SetChapterVisibility("c2", false); err != nil {
		t.Fatalf("SetChapterVisibility: %v", err)
	}

	data, _, err := s.Container(context.Background())
	if err != nil {
		t.Fatalf("Container: %v", err)
	}
	c, err := xtc.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c.Pages) != total {
		t.Errorf("container has %d pages, want %d", len(c.Pages), total)
	}
}
