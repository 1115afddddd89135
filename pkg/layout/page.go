package layout

import "encoding/json"

// Word is a positioned run of glyphs on a line. X is the left edge of the
// first glyph in page coordinates; Width is the measured advance. Text never
// contains soft hyphens, a trailing "-" marks a hyphenation break.
type Word struct {
	X      float64 `json:"x"`
	Width  float64 `json:"w"`
	Text   string  `json:"t"`
	Bold   bool    `json:"b,omitempty"`
	Italic bool    `json:"i,omitempty"`
}

// Line is a baseline-aligned row of words. Baseline is in page coordinates.
type Line struct {
	Baseline float64 `json:"baseline"`
	Centered bool    `json:"centered,omitempty"`
	Words    []Word  `json:"words"`
}

// ImagePlacement reserves a rectangle for an image block. The block is
// addressed by chapter and block index into the source book; pixel work is
// deferred to the rasterizer so page descriptions stay cheap to cache.
type ImagePlacement struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   int     `json:"w"`
	Height  int     `json:"h"`
	Chapter int     `json:"chapter"`
	Block   int     `json:"block"`
}

// Page is one laid-out page. Chapter indexes the source chapter that owns
// the page's first line; ChapterID carries the stable identifier so pages
// survive visibility re-derivation.
type Page struct {
	Chapter   int              `json:"chapter"`
	ChapterID string           `json:"chapter_id"`
	Lines     []Line           `json:"lines,omitempty"`
	Images    []ImagePlacement `json:"images,omitempty"`

	// Opens lists the source chapter indexes whose first content lands on
	// this page. With chapter page breaks disabled several chapters can
	// share one page; navigation uses Opens to point each of them at it.
	Opens []int `json:"opens,omitempty"`
}

// HasImages reports whether any image is placed on the page. The rasterizer
// uses it to pick between dithering and thresholding in 1-bit output.
func (p *Page) HasImages() bool { return len(p.Images) > 0 }

// Empty reports whether the page carries no content at all.
func (p *Page) Empty() bool { return len(p.Lines) == 0 && len(p.Images) == 0 }

// MarshalPages encodes pages for the layout cache.
func MarshalPages(pages []Page) ([]byte, error) {
	return json.Marshal(pages)
}

// UnmarshalPages decodes pages produced by MarshalPages.
func UnmarshalPages(data []byte) ([]Page, error) {
	var pages []Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}
