package imageproc

import (
	"bytes"
	"image"
	"image/color"

	// Decoders for the image formats commonly found inside EPUB archives.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"

	"github.com/inkdot-dev/inkpress/pkg/errors"
)

// Options controls image preparation.
type Options struct {
	// Width and Height bound the target area in device pixels.
	Width  int
	Height int

	// ExactFit letterboxes the scaled image onto a white Width x Height
	// canvas instead of returning the aspect-fitted size. Content is never
	// cropped.
	ExactFit bool

	// Brightness and Contrast are percentage adjustments in [-100, 100],
	// applied in that order as monotonic tone remaps. Values are clamped to
	// the representable range; no wraparound.
	Brightness float64
	Contrast   float64

	// Dither reduces the result to pure black/white via Floyd-Steinberg
	// error diffusion. Without it the result stays 8-bit grayscale.
	Dither bool
}

// Size decodes only the image header and returns intrinsic dimensions.
func Size(raw []byte) (w, h int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0, 0, errors.Wrap(errors.ErrCodeAssetImage, err, "decode image header")
	}
	return cfg.Width, cfg.Height, nil
}

// Decode decodes raw image bytes in any registered format.
func Decode(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAssetImage, err, "decode image")
	}
	return img, nil
}

// Process decodes, scales, tone-adjusts and optionally dithers an image for
// placement in a Width x Height block. On decode failure it returns a
// placeholder block together with a recoverable ASSET_IMAGE error; callers
// record the error as a warning and keep the page.
func Process(raw []byte, opts Options) (*image.Gray, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, errors.New(errors.ErrCodeInternal, "non-positive target %dx%d", opts.Width, opts.Height)
	}

	src, err := Decode(raw)
	if err != nil {
		return Placeholder(opts.Width, opts.Height), err
	}

	fitted := imaging.Fit(src, opts.Width, opts.Height, imaging.Lanczos)
	if opts.ExactFit {
		canvas := imaging.New(opts.Width, opts.Height, color.White)
		fitted = imaging.PasteCenter(canvas, fitted)
	}

	g := ToGray(fitted)
	g = Adjust(g, opts.Brightness, opts.Contrast)
	if opts.Dither {
		g = Dither(g)
	}
	return g, nil
}

// Placeholder returns a uniform light-gray block used when image data cannot
// be decoded.
func Placeholder(w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = 0xe0
	}
	return g
}

// ToGray converts any image to 8-bit grayscale using the standard luminance
// weights.
func ToGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return g
}

// Adjust applies brightness then contrast as percentage remaps. Both curves
// are monotonic; output is clamped to [0, 255].
func Adjust(g *image.Gray, brightness, contrast float64) *image.Gray {
	if brightness == 0 && contrast == 0 {
		return g
	}
	adjusted := imaging.AdjustBrightness(g, brightness)
	adjusted = imaging.AdjustContrast(adjusted, contrast)
	return ToGray(adjusted)
}

// Threshold maps every pixel above cut to white and the rest to black.
func Threshold(g *image.Gray, cut uint8) *image.Gray {
	out := image.NewGray(g.Bounds())
	for i, p := range g.Pix {
		if p > cut {
			out.Pix[i] = 0xff
		} else {
			out.Pix[i] = 0x00
		}
	}
	return out
}

// Dither reduces a grayscale image to pure black/white using Floyd-Steinberg
// error diffusion. Pixels are visited in raster order; each pixel's
// quantization error is distributed to its right, lower-left, lower, and
// lower-right neighbors with weights 7/16, 3/16, 5/16 and 1/16.
// Contributions that would fall outside the image are dropped. The result is
// deterministic for a given input.
func Dither(g *image.Gray) *image.Gray {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))

	// Working copy with headroom for accumulated error.
	buf := make([]int32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf[y*w+x] = int32(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			old := buf[y*w+x]
			var quantized int32
			if old > 127 {
				quantized = 255
			}
			out.Pix[y*out.Stride+x] = uint8(quantized)

			err := old - quantized
			if x+1 < w {
				buf[y*w+x+1] += err * 7 / 16
			}
			if y+1 < h {
				if x > 0 {
					buf[(y+1)*w+x-1] += err * 3 / 16
				}
				buf[(y+1)*w+x] += err * 5 / 16
				if x+1 < w {
					buf[(y+1)*w+x+1] += err * 1 / 16
				}
			}
		}
	}
	return out
}
