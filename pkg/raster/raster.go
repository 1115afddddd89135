package raster

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	"github.com/inkdot-dev/inkpress/pkg/book"
	"github.com/inkdot-dev/inkpress/pkg/errors"
	"github.com/inkdot-dev/inkpress/pkg/fonts"
	"github.com/inkdot-dev/inkpress/pkg/imageproc"
	"github.com/inkdot-dev/inkpress/pkg/layout"
)

// textThreshold is the cut point for pure text pages in 1-bit output.
// Anti-aliased edge pixels above it count as paper, below it as ink.
const textThreshold = 140

// Tone adjustments applied to every placed image before depth reduction, in
// percent. Lifting brightness and contrast keeps photos legible after
// dithering on paper-like panels.
const (
	imageBrightness = 15
	imageContrast   = 40
)

// italicShear is the horizontal shear used to synthesize italics.
const italicShear = -0.25

// Renderer rasterizes pages under a fixed configuration. It is safe for
// concurrent use; Render does not mutate the renderer.
type Renderer struct {
	cfg   layout.Config
	scale float64

	pageW, pageH int

	regular  font.Face
	bold     font.Face
	fauxBold bool
}

// New prepares supersampled faces for the configuration. A nil src falls
// back to the built-in font.
func New(cfg layout.Config, src *fonts.Source) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		src = fonts.Fallback()
	}
	r := &Renderer{cfg: cfg, scale: cfg.RenderScale}
	r.pageW, r.pageH = cfg.Dimensions()
	size := cfg.FontSize * r.scale
	r.regular = src.Face(size)
	r.bold = src.BoldFace(size)
	if cfg.FontWeight >= 600 {
		r.regular = r.bold
	}
	// without a real bold variant, bold words are double-struck
	r.fauxBold = !src.HasBold()
	return r, nil
}

// Size returns the output bitmap dimensions in device pixels.
func (r *Renderer) Size() (w, h int) { return r.pageW, r.pageH }

// Render draws one page of b. The second return value carries recoverable
// warnings, such as image blocks replaced by placeholders; the page is still
// produced. The result has the device dimensions and, at bit depth 1, only
// pure black and white pixels.
func (r *Renderer) Render(b *book.Book, p *layout.Page) (*image.Gray, []error, error) {
	base := r.renderText(p)

	var warns []error
	for _, pl := range p.Images {
		data, err := r.imageData(b, pl)
		if err != nil {
			return nil, warns, err
		}
		g, err := imageproc.Process(data, imageproc.Options{
			Width:      pl.Width,
			Height:     pl.Height,
			ExactFit:   true,
			Brightness: imageBrightness,
			Contrast:   imageContrast,
		})
		if err != nil {
			if !errors.Recoverable(err) {
				return nil, warns, err
			}
			warns = append(warns, err)
		}
		x, y := int(pl.X), int(pl.Y)
		draw.Draw(base, image.Rect(x, y, x+pl.Width, y+pl.Height), g, g.Bounds().Min, draw.Src)
	}

	if r.cfg.BitDepth == 1 {
		if p.HasImages() {
			base = imageproc.Dither(base)
		} else {
			base = imageproc.Threshold(base, textThreshold)
		}
	}
	return base, warns, nil
}

// renderText draws every line at RenderScale and downsamples to device
// resolution.
func (r *Renderer) renderText(p *layout.Page) *image.Gray {
	sw := int(float64(r.pageW)*r.scale + 0.5)
	sh := int(float64(r.pageH)*r.scale + 0.5)
	dc := gg.NewContext(sw, sh)
	dc.SetColor(color.White)
	dc.Clear()
	dc.SetColor(color.Black)

	for _, ln := range p.Lines {
		y := ln.Baseline * r.scale
		for _, w := range ln.Words {
			face := r.regular
			if w.Bold {
				face = r.bold
			}
			dc.SetFontFace(face)
			x := w.X * r.scale
			r.drawWord(dc, w, x, y)
		}
	}

	img := dc.Image()
	if sw == r.pageW && sh == r.pageH {
		return imageproc.ToGray(img)
	}
	return imageproc.ToGray(imaging.Resize(img, r.pageW, r.pageH, imaging.Lanczos))
}

func (r *Renderer) drawWord(dc *gg.Context, w layout.Word, x, y float64) {
	if w.Italic {
		dc.Push()
		dc.ShearAbout(italicShear, 0, x, y)
		defer dc.Pop()
	}
	dc.DrawString(w.Text, x, y)
	if w.Bold && r.fauxBold {
		dc.DrawString(w.Text, x+r.scale*0.5, y)
	}
}

func (r *Renderer) imageData(b *book.Book, pl layout.ImagePlacement) ([]byte, error) {
	if pl.Chapter < 0 || pl.Chapter >= len(b.Chapters) {
		return nil, errors.New(errors.ErrCodeInternal, "placement references chapter %d of %d", pl.Chapter, len(b.Chapters))
	}
	ch := b.Chapters[pl.Chapter]
	if pl.Block < 0 || pl.Block >= len(ch.Blocks) {
		return nil, errors.New(errors.ErrCodeInternal, "placement references block %d of %d in chapter %q", pl.Block, len(ch.Blocks), ch.ID)
	}
	blk := ch.Blocks[pl.Block]
	if blk.Kind != book.KindImage || blk.Image == nil {
		return nil, errors.New(errors.ErrCodeInternal, "placement references non-image block %d in chapter %q", pl.Block, ch.ID)
	}
	return blk.Image.Data, nil
}
