// Package fonts provides font parsing and face construction for the
// rasterizer, with an embedded fallback font.
//
// Custom TTF bytes supplied by the caller are parsed with freetype; when no
// custom font is given (or parsing fails and the caller opts into fallback),
// the Go Regular font embedded via golang.org/x/image is used, making the
// binary self-contained.
package fonts

import (
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/inkdot-dev/inkpress/pkg/errors"
)

// Source holds a parsed font and derives faces at arbitrary sizes.
type Source struct {
	regular *truetype.Font
	bold    *truetype.Font // nil when the source has no bold variant
}

var (
	fallbackOnce sync.Once
	fallback     *Source
)

// Fallback returns the embedded Go font source. The fonts are parsed once on
// first use; parse failure of embedded data is a programming error and
// panics.
func Fallback() *Source {
	fallbackOnce.Do(func() {
		reg, err := truetype.Parse(goregular.TTF)
		if err != nil {
			panic("fonts: embedded regular font: " + err.Error())
		}
		bld, err := truetype.Parse(gobold.TTF)
		if err != nil {
			panic("fonts: embedded bold font: " + err.Error())
		}
		fallback = &Source{regular: reg, bold: bld}
	})
	return fallback
}

// Parse builds a Source from raw TTF bytes. A parse failure is a recoverable
// ASSET_FONT error; callers typically fall back to [Fallback].
func Parse(ttf []byte) (*Source, error) {
	f, err := truetype.Parse(ttf)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAssetFont, err, "parse font")
	}
	return &Source{regular: f}, nil
}

// Load returns a source for the given TTF bytes, or the embedded fallback
// when data is empty. When data is present but malformed, the fallback is
// returned together with the recoverable error so callers can surface a
// warning.
func Load(data []byte) (*Source, error) {
	if len(data) == 0 {
		return Fallback(), nil
	}
	src, err := Parse(data)
	if err != nil {
		return Fallback(), err
	}
	return src, nil
}

// HasBold reports whether the source carries a real bold variant. Without
// one, the rasterizer synthesizes bold by double-striking.
func (s *Source) HasBold() bool { return s.bold != nil }

// Face derives a regular face at the given point size.
func (s *Source) Face(size float64) font.Face {
	return truetype.NewFace(s.regular, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// BoldFace derives a bold face at the given size. When the source has no
// bold variant the regular face is returned; the caller is responsible for
// synthesis.
func (s *Source) BoldFace(size float64) font.Face {
	f := s.bold
	if f == nil {
		f = s.regular
	}
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
