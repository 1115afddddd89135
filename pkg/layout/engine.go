package layout

import (
	"strings"
	"unicode"

	"golang.org/x/image/font"

	"github.com/inkdot-dev/inkpress/pkg/book"
	"github.com/inkdot-dev/inkpress/pkg/errors"
	"github.com/inkdot-dev/inkpress/pkg/fonts"
	"github.com/inkdot-dev/inkpress/pkg/hyphen"
	"github.com/inkdot-dev/inkpress/pkg/imageproc"
)

// Engine reflows books into pages under a fixed configuration. It is safe
// for concurrent use once constructed; Layout does not mutate the engine.
type Engine struct {
	cfg Config

	regular font.Face
	bold    font.Face

	left, right, top, bottom float64
	lineAdv                  float64
	ascent                   float64
	spaceRegular             float64
	spaceBold                float64
}

// NewEngine validates the configuration and prepares measurement faces from
// src. A nil src falls back to the built-in font.
func NewEngine(cfg Config, src *fonts.Source) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		src = fonts.Fallback()
	}
	e := &Engine{
		cfg:     cfg,
		regular: src.Face(cfg.FontSize),
		bold:    src.BoldFace(cfg.FontSize),
	}
	if cfg.FontWeight >= 600 {
		e.regular = e.bold
	}
	box := cfg.ContentBox()
	e.left, e.right = float64(box.Min.X), float64(box.Max.X)
	e.top, e.bottom = float64(box.Min.Y), float64(box.Max.Y)
	e.lineAdv = cfg.FontSize * cfg.LineHeight
	e.ascent = float64(e.regular.Metrics().Ascent) / 64
	e.spaceRegular = e.measure(" ", false)
	e.spaceBold = e.measure(" ", true)
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// Layout reflows every chapter of b into pages. Hidden chapters are laid out
// too: visibility only affects navigation, so toggling it never requires a
// re-layout. The second return value carries recoverable warnings, such as
// image blocks whose dimensions could not be determined.
func (e *Engine) Layout(b *book.Book) ([]Page, []error, error) {
	if err := b.Validate(); err != nil {
		return nil, nil, err
	}
	s := &sheet{e: e}
	for ci, ch := range b.Chapters {
		s.openChapter(ci, ch.ID)
		for bi, blk := range ch.Blocks {
			switch blk.Kind {
			case book.KindText:
				if blk.Text.Heading {
					s.placeHeading(blk.Text)
				} else {
					s.placeParagraph(blk.Text)
				}
			case book.KindImage:
				s.placeImage(ci, bi, blk.Image)
			}
		}
		s.closeChapter(ci, ch.ID)
	}
	s.flush()
	return s.pages, s.warnings, nil
}

func (e *Engine) measure(text string, bold bool) float64 {
	face := e.regular
	if bold {
		face = e.bold
	}
	return float64(font.MeasureString(face, text)) / 64
}

func (e *Engine) spaceFor(bold bool) float64 {
	if bold {
		return e.spaceBold
	}
	return e.spaceRegular
}

// token is a single word with the style of the run it started in. Words that
// straddle a run boundary keep their opening style.
type token struct {
	text   string
	bold   bool
	italic bool
}

func tokenize(tb *book.TextBlock) []token {
	var toks []token
	var cur []rune
	var bold, italic bool
	flush := func() {
		if len(cur) > 0 {
			toks = append(toks, token{string(cur), bold, italic})
			cur = nil
		}
	}
	for _, r := range tb.Runs {
		for _, ch := range r.Text {
			if unicode.IsSpace(ch) {
				flush()
				continue
			}
			if len(cur) == 0 {
				bold, italic = r.Bold, r.Italic
			}
			cur = append(cur, ch)
		}
	}
	flush()
	return toks
}

func stripSoft(s string) string {
	return strings.ReplaceAll(s, string(hyphen.SoftHyphen), "")
}

// hyphenSplit finds the longest soft-hyphen prefix of t that fits in avail,
// rendered with a trailing "-". On a partially filled line the break is only
// taken when it lands within the configured tolerance of the line end.
func (e *Engine) hyphenSplit(t token, avail float64, lineEmpty bool) (head string, headW float64, rest string, ok bool) {
	runes := []rune(t.text)
	best := -1
	var bestW float64
	for i, r := range runes {
		if r != hyphen.SoftHyphen {
			continue
		}
		pre := stripSoft(string(runes[:i])) + "-"
		w := e.measure(pre, t.bold)
		if w > avail {
			break
		}
		best, bestW = i, w
	}
	if best < 0 {
		return "", 0, "", false
	}
	if !lineEmpty && avail-bestW > e.cfg.HyphenTolerance*(e.right-e.left) {
		return "", 0, "", false
	}
	return stripSoft(string(runes[:best])) + "-", bestW, string(runes[best+1:]), true
}

// forceSplit breaks t at rune granularity so the head fits the full line
// width. At least one rune is always taken so layout makes progress even
// when a single glyph overflows a pathologically narrow line.
func (e *Engine) forceSplit(t token, width float64) (head string, headW float64, rest string) {
	runes := []rune(stripSoft(t.text))
	n := 1
	for n < len(runes) {
		w := e.measure(string(runes[:n+1]), t.bold)
		if w > width {
			break
		}
		n++
	}
	head = string(runes[:n])
	return head, e.measure(head, t.bold), string(runes[n:])
}

// sheet threads the layout cursor through chapters, lines and pages.
type sheet struct {
	e *Engine

	pages []Page
	cur   Page
	y     float64

	chapter   int
	chapterID string
	wrote     bool

	warnings []error
}

func (s *sheet) warn(err error) { s.warnings = append(s.warnings, err) }

func (s *sheet) resetPage() {
	s.cur = Page{Chapter: s.chapter, ChapterID: s.chapterID}
	s.y = s.e.top
}

func (s *sheet) breakPage() {
	s.pages = append(s.pages, s.cur)
	s.resetPage()
}

func (s *sheet) openChapter(ci int, id string) {
	if s.e.cfg.BreakChapters && !s.cur.Empty() {
		s.breakPage()
	}
	s.chapter, s.chapterID = ci, id
	s.wrote = false
	if s.cur.Empty() {
		// a fresh page is attributed to the chapter that opens it
		s.cur.Chapter, s.cur.ChapterID = ci, id
		s.y = s.e.top
	}
}

// closeChapter guarantees every chapter owns at least one page, even when it
// has no blocks.
func (s *sheet) closeChapter(ci int, id string) {
	if s.wrote {
		return
	}
	if !s.cur.Empty() {
		s.breakPage()
	}
	s.cur.Chapter, s.cur.ChapterID = ci, id
	s.cur.Opens = append(s.cur.Opens, ci)
	s.breakPage()
}

func (s *sheet) flush() {
	if !s.cur.Empty() {
		s.pages = append(s.pages, s.cur)
		s.cur = Page{}
	}
}

// emitLine positions words on the next baseline, breaking the page first if
// the line box does not fit. Justification widens word gaps so the last word
// ends flush with the right edge; gaps never shrink below the natural space.
func (s *sheet) emitLine(words []Word, justify, centered bool) {
	if len(words) == 0 {
		return
	}
	if s.y+s.e.lineAdv > s.e.bottom && !s.cur.Empty() {
		s.breakPage()
	}
	last := &words[len(words)-1]
	slack := s.e.right - (last.X + last.Width)
	switch {
	case centered && slack > 0:
		for j := range words {
			words[j].X += slack / 2
		}
	case justify && s.e.cfg.Justify && len(words) > 1 && slack > 0:
		per := slack / float64(len(words)-1)
		for j := 1; j < len(words); j++ {
			words[j].X += per * float64(j)
		}
	}
	s.markStart()
	s.cur.Lines = append(s.cur.Lines, Line{
		Baseline: s.y + s.e.ascent,
		Centered: centered,
		Words:    words,
	})
	s.y += s.e.lineAdv
	s.wrote = true
}

// markStart records the open chapter on the page its first content lands on.
// It runs after any page break, so the start always points at the page that
// actually carries the content.
func (s *sheet) markStart() {
	if !s.wrote {
		s.cur.Opens = append(s.cur.Opens, s.chapter)
	}
}

func (s *sheet) placeTokens(tokens []token, justify, centered, bold bool) {
	var words []Word
	x := s.e.left
	for i := 0; i < len(tokens); {
		t := tokens[i]
		if bold {
			t.bold = true
		}
		disp := stripSoft(t.text)
		if disp == "" {
			i++
			continue
		}
		w := s.e.measure(disp, t.bold)
		gap := 0.0
		if len(words) > 0 {
			gap = s.e.spaceFor(t.bold)
		}
		if x+gap+w <= s.e.right {
			words = append(words, Word{X: x + gap, Width: w, Text: disp, Bold: t.bold, Italic: t.italic})
			x += gap + w
			i++
			continue
		}
		avail := s.e.right - (x + gap)
		if head, headW, rest, ok := s.e.hyphenSplit(t, avail, len(words) == 0); ok {
			words = append(words, Word{X: x + gap, Width: headW, Text: head, Bold: t.bold, Italic: t.italic})
			s.emitLine(words, justify, centered)
			words, x = nil, s.e.left
			tokens[i].text = rest
			continue
		}
		if len(words) > 0 {
			s.emitLine(words, justify, centered)
			words, x = nil, s.e.left
			continue
		}
		head, headW, rest := s.e.forceSplit(t, s.e.right-s.e.left)
		words = append(words, Word{X: s.e.left, Width: headW, Text: head, Bold: t.bold, Italic: t.italic})
		s.emitLine(words, false, centered)
		words, x = nil, s.e.left
		if rest == "" {
			i++
		} else {
			tokens[i].text = rest
		}
	}
	// the final line of a block is never justified
	s.emitLine(words, false, centered)
}

func (s *sheet) placeParagraph(tb *book.TextBlock) {
	tokens := tokenize(tb)
	if len(tokens) == 0 {
		return
	}
	s.placeTokens(tokens, true, false, false)
	s.y += s.e.lineAdv * 0.4
}

// placeHeading renders a heading centered and bold with breathing room above
// and below, matching how chapter titles read on small panels.
func (s *sheet) placeHeading(tb *book.TextBlock) {
	tokens := tokenize(tb)
	if len(tokens) == 0 {
		return
	}
	if s.y > s.e.top {
		s.y += s.e.lineAdv * 0.5
	}
	s.placeTokens(tokens, false, true, true)
	s.y += s.e.lineAdv * 0.5
}

// placeImage reserves a centered rectangle for an image block. Images are
// atomic: one that does not fit the remaining space starts a new page, and
// one larger than the content area is scaled to fit exactly one page.
func (s *sheet) placeImage(ci, bi int, img *book.ImageBlock) {
	boxW := s.e.right - s.e.left
	boxH := s.e.bottom - s.e.top
	w, h := img.Width, img.Height
	if w <= 0 || h <= 0 {
		iw, ih, err := imageproc.Size(img.Data)
		if err != nil {
			s.warn(errors.Wrap(errors.ErrCodeAssetImage, err, "image %q has no readable dimensions", img.Name))
			iw, ih = int(boxW), int(boxW*3/4)
		}
		w, h = iw, ih
	}
	scale := 1.0
	if sw := boxW / float64(w); sw < scale {
		scale = sw
	}
	if sh := boxH / float64(h); sh < scale {
		scale = sh
	}
	tw := int(float64(w) * scale)
	th := int(float64(h) * scale)
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	if s.y+float64(th) > s.e.bottom && !s.cur.Empty() {
		s.breakPage()
	}
	s.markStart()
	s.cur.Images = append(s.cur.Images, ImagePlacement{
		X:       s.e.left + (boxW-float64(tw))/2,
		Y:       s.y,
		Width:   tw,
		Height:  th,
		Chapter: ci,
		Block:   bi,
	})
	s.y += float64(th) + s.e.lineAdv*0.5
	s.wrote = true
}
