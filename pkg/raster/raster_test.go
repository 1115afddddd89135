package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/inkdot-dev/inkpress/pkg/book"
	"github.com/inkdot-dev/inkpress/pkg/layout"
)

func mustRenderer(t *testing.T, cfg layout.Config) *Renderer {
	t.Helper()
	r, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func layoutBook(t *testing.T, cfg layout.Config, b *book.Book) []layout.Page {
	t.Helper()
	e, err := layout.NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	pages, _, err := e.Layout(b)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if len(pages) == 0 {
		t.Fatal("layout produced no pages")
	}
	return pages
}

func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x * 255) / w)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func countShades(g *image.Gray) (black, white, other int) {
	for _, p := range g.Pix {
		switch p {
		case 0x00:
			black++
		case 0xff:
			white++
		default:
			other++
		}
	}
	return
}

func TestRenderBlankPage(t *testing.T) {
	cfg := layout.Default()
	r := mustRenderer(t, cfg)
	b := &book.Book{Title: "t", Chapters: []book.Chapter{{ID: "c1", Visible: true}}}
	g, warns, err := r.Render(b, &layout.Page{Chapter: 0, ChapterID: "c1"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	w, h := cfg.Dimensions()
	if g.Bounds().Dx() != w || g.Bounds().Dy() != h {
		t.Fatalf("bitmap is %v, want %dx%d", g.Bounds(), w, h)
	}
	black, _, other := countShades(g)
	if black != 0 || other != 0 {
		t.Fatalf("blank page has %d black and %d gray pixels", black, other)
	}
}

func TestRenderTextPageIsBinary(t *testing.T) {
	cfg := layout.Default()
	b := &book.Book{Title: "t", Chapters: []book.Chapter{{
		ID: "c1", Visible: true,
		Blocks: []book.Block{book.NewTextBlock(book.Run{Text: "Ink on paper reads best in pure black."})},
	}}}
	pages := layoutBook(t, cfg, b)
	r := mustRenderer(t, cfg)
	g, _, err := r.Render(b, &pages[0])
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	black, white, other := countShades(g)
	if other != 0 {
		t.Fatalf("1-bit page has %d gray pixels", other)
	}
	if black == 0 {
		t.Fatal("text page rendered no ink")
	}
	if black > white {
		t.Fatalf("page is mostly ink: %d black vs %d white", black, white)
	}
}

func TestRenderImagePageIsDithered(t *testing.T) {
	cfg := layout.Default()
	b := &book.Book{Title: "t", Chapters: []book.Chapter{{
		ID: "c1", Visible: true,
		Blocks: []book.Block{book.NewImageBlock("grad.png", gradientPNG(t, 200, 150), 200, 150)},
	}}}
	pages := layoutBook(t, cfg, b)
	r := mustRenderer(t, cfg)
	g, warns, err := r.Render(b, &pages[0])
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	black, white, other := countShades(g)
	if other != 0 {
		t.Fatalf("dithered page has %d gray pixels", other)
	}
	// the gradient must survive as a mix of ink and paper
	if black == 0 || white == 0 {
		t.Fatalf("gradient collapsed: %d black, %d white", black, white)
	}
}

func TestRenderEightBitKeepsGray(t *testing.T) {
	cfg := layout.Default()
	cfg.BitDepth = 8
	b := &book.Book{Title: "t", Chapters: []book.Chapter{{
		ID: "c1", Visible: true,
		Blocks: []book.Block{book.NewImageBlock("grad.png", gradientPNG(t, 200, 150), 200, 150)},
	}}}
	pages := layoutBook(t, cfg, b)
	r := mustRenderer(t, cfg)
	g, _, err := r.Render(b, &pages[0])
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	_, _, other := countShades(g)
	if other == 0 {
		t.Fatal("8-bit page lost all intermediate shades")
	}
}

func TestRenderCorruptImageWarnsWithPlaceholder(t *testing.T) {
	cfg := layout.Default()
	b := &book.Book{Title: "t", Chapters: []book.Chapter{{
		ID: "c1", Visible: true,
		Blocks: []book.Block{book.NewImageBlock("bad.png", []byte("not an image"), 120, 90)},
	}}}
	pages := layoutBook(t, cfg, b)
	r := mustRenderer(t, cfg)
	g, warns, err := r.Render(b, &pages[0])
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(warns) == 0 {
		t.Fatal("expected a warning for the corrupt image")
	}
	if g == nil {
		t.Fatal("page dropped instead of rendering a placeholder")
	}
}

func TestRenderDeterministic(t *testing.T) {
	cfg := layout.Default()
	b := &book.Book{Title: "t", Chapters: []book.Chapter{{
		ID: "c1", Visible: true,
		Blocks: []book.Block{book.NewTextBlock(book.Run{Text: "same bits every time"})},
	}}}
	pages := layoutBook(t, cfg, b)
	r := mustRenderer(t, cfg)
	first, _, err := r.Render(b, &pages[0])
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	second, _, err := r.Render(b, &pages[0])
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.Equal(first.Pix, second.Pix) {
		t.Fatal("repeated renders differ")
	}
}
