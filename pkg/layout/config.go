package layout

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"

	"github.com/inkdot-dev/inkpress/pkg/errors"
)

// Orientation selects how the device panel is held.
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// FooterHeight is the vertical band at the bottom of every page reserved for
// the navigation overlay (title, progress bar, page counter). The layout
// engine never places content inside it.
const FooterHeight = 50

// Config holds every knob that affects how a book is reflowed into pages.
// The zero value is not usable; start from Default.
type Config struct {
	// Panel size in device pixels, given for portrait orientation. The
	// effective page size swaps the two in landscape.
	PageWidth  int `json:"page_width" toml:"page_width"`
	PageHeight int `json:"page_height" toml:"page_height"`

	Orientation Orientation `json:"orientation" toml:"orientation"`

	FontSize   float64 `json:"font_size" toml:"font_size"`
	FontWeight int     `json:"font_weight" toml:"font_weight"`
	LineHeight float64 `json:"line_height" toml:"line_height"`

	Margin        int `json:"margin" toml:"margin"`
	TopPadding    int `json:"top_padding" toml:"top_padding"`
	BottomPadding int `json:"bottom_padding" toml:"bottom_padding"`

	// Justify stretches word gaps so both edges of a full line align with
	// the content box. The final line of a paragraph and headings are
	// always ragged.
	Justify bool `json:"justify" toml:"justify"`

	// BreakChapters starts every chapter on a fresh page. When false,
	// chapters pack tightly after the previous chapter's last line and a
	// page is attributed to the chapter that owns its first line.
	BreakChapters bool `json:"break_chapters" toml:"break_chapters"`

	// HyphenTolerance is the fraction of the line width, measured from the
	// right edge, within which a hyphenation break is preferred over
	// wrapping the whole word to the next line.
	HyphenTolerance float64 `json:"hyphen_tolerance" toml:"hyphen_tolerance"`

	// RenderScale supersamples text rendering by this factor before
	// downsampling to the device resolution.
	RenderScale float64 `json:"render_scale" toml:"render_scale"`

	// BitDepth is the output depth per pixel, 1 or 8.
	BitDepth int `json:"bit_depth" toml:"bit_depth"`

	GenerateTOC bool `json:"generate_toc" toml:"generate_toc"`

	// FontData is an optional TTF to use instead of the built-in face. It
	// is excluded from JSON so cached page descriptions stay small; the
	// fingerprint still covers it.
	FontData []byte `json:"-" toml:"-"`
}

// Default returns the configuration tuned for 480x800 e-ink panels.
func Default() Config {
	return Config{
		PageWidth:       480,
		PageHeight:      800,
		Orientation:     Portrait,
		FontSize:        22,
		FontWeight:      400,
		LineHeight:      1.4,
		Margin:          20,
		TopPadding:      15,
		BottomPadding:   15,
		Justify:         true,
		BreakChapters:   true,
		HyphenTolerance: 0.12,
		RenderScale:     3.0,
		BitDepth:        1,
		GenerateTOC:     true,
	}
}

// Dimensions returns the effective page size with orientation applied.
func (c Config) Dimensions() (w, h int) {
	if c.Orientation == Landscape {
		return c.PageHeight, c.PageWidth
	}
	return c.PageWidth, c.PageHeight
}

// ContentBox returns the region of the page available to flowed content, in
// page coordinates. The footer band is excluded.
func (c Config) ContentBox() image.Rectangle {
	w, h := c.Dimensions()
	return image.Rect(c.Margin, c.TopPadding, w-c.Margin, h-c.BottomPadding-FooterHeight)
}

// Validate rejects configurations that cannot produce pages.
func (c Config) Validate() error {
	if c.PageWidth <= 0 || c.PageHeight <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "page size %dx%d is not positive", c.PageWidth, c.PageHeight)
	}
	if c.Orientation != Portrait && c.Orientation != Landscape {
		return errors.New(errors.ErrCodeInvalidConfig, "unknown orientation %q", c.Orientation)
	}
	if c.FontSize <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "font size must be positive")
	}
	if c.FontWeight < 100 || c.FontWeight > 900 {
		return errors.New(errors.ErrCodeInvalidConfig, "font weight %d outside 100..900", c.FontWeight)
	}
	if c.LineHeight <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "line height must be positive")
	}
	if c.HyphenTolerance < 0 || c.HyphenTolerance > 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "hyphen tolerance %g outside 0..1", c.HyphenTolerance)
	}
	if c.RenderScale < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "render scale must be at least 1")
	}
	if c.BitDepth != 1 && c.BitDepth != 8 {
		return errors.New(errors.ErrCodeInvalidConfig, "bit depth %d is not 1 or 8", c.BitDepth)
	}
	box := c.ContentBox()
	if box.Dx() <= 0 || box.Dy() <= 0 {
		return errors.New(errors.ErrCodeLayoutOverflow, "margins and padding leave a %dx%d content area", box.Dx(), box.Dy())
	}
	if float64(box.Dy()) < c.FontSize*c.LineHeight {
		return errors.New(errors.ErrCodeLayoutOverflow, "content area is shorter than one line")
	}
	return nil
}

// Fingerprint returns a stable hash of every layout-affecting input,
// including custom font bytes. Two configs with equal fingerprints produce
// identical pages for the same book.
func (c Config) Fingerprint() string {
	data, err := json.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("layout: marshal config: %v", err))
	}
	h := sha256.New()
	h.Write(data)
	h.Write(c.FontData)
	return hex.EncodeToString(h.Sum(nil))
}
