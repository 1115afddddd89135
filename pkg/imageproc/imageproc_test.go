package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/inkdot-dev/inkpress/pkg/errors"
)

// encodePNG renders a simple gradient test image.
func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x * 255) / w)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestSize(t *testing.T) {
	raw := encodePNG(t, 64, 32)
	w, h, err := Size(raw)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if w != 64 || h != 32 {
		t.Errorf("Size = %dx%d, want 64x32", w, h)
	}
	if _, _, err := Size([]byte("not an image")); !errors.Is(err, errors.ErrCodeAssetImage) {
		t.Errorf("Size on garbage: err = %v, want ASSET_IMAGE", err)
	}
}

func TestProcessAspectFit(t *testing.T) {
	raw := encodePNG(t, 200, 100)
	got, err := Process(raw, Options{Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	b := got.Bounds()
	if b.Dx() != 100 || b.Dy() != 50 {
		t.Errorf("fitted size = %dx%d, want 100x50", b.Dx(), b.Dy())
	}
}

func TestProcessExactFitLetterboxes(t *testing.T) {
	raw := encodePNG(t, 200, 100)
	got, err := Process(raw, Options{Width: 100, Height: 100, ExactFit: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	b := got.Bounds()
	if b.Dx() != 100 || b.Dy() != 100 {
		t.Errorf("letterboxed size = %dx%d, want 100x100", b.Dx(), b.Dy())
	}
	// Letterbox bands are white.
	if got.GrayAt(50, 2).Y != 0xff {
		t.Errorf("top band = %d, want white", got.GrayAt(50, 2).Y)
	}
}

func TestProcessCorruptDataYieldsPlaceholder(t *testing.T) {
	got, err := Process([]byte{0xde, 0xad}, Options{Width: 40, Height: 20})
	if !errors.Is(err, errors.ErrCodeAssetImage) {
		t.Fatalf("err = %v, want ASSET_IMAGE", err)
	}
	if got == nil {
		t.Fatal("expected placeholder, got nil")
	}
	if b := got.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Errorf("placeholder size = %v", b)
	}
}

func TestDitherDeterministic(t *testing.T) {
	raw := encodePNG(t, 50, 50)
	a, err := Process(raw, Options{Width: 50, Height: 50, Dither: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	b, err := Process(raw, Options{Width: 50, Height: 50, Dither: true})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("dithered output differs between runs")
	}
	for i, p := range a.Pix {
		if p != 0x00 && p != 0xff {
			t.Fatalf("pixel %d = %d, dithered output must be binary", i, p)
		}
	}
}

func TestDitherPreservesExtremes(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 8, 8))
	out := Dither(flat)
	for i, p := range out.Pix {
		if p != 0 {
			t.Fatalf("pixel %d of black input = %d", i, p)
		}
	}
	for i := range flat.Pix {
		flat.Pix[i] = 0xff
	}
	out = Dither(flat)
	for i, p := range out.Pix {
		if p != 0xff {
			t.Fatalf("pixel %d of white input = %d", i, p)
		}
	}
}

func TestDitherMidGrayBalance(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}
	out := Dither(flat)
	white := 0
	for _, p := range out.Pix {
		if p == 0xff {
			white++
		}
	}
	// Error diffusion of a 50% gray should produce roughly half white pixels.
	if white < 400 || white > 624 {
		t.Errorf("white pixel count = %d of 1024, want near half", white)
	}
}

func TestThreshold(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 3, 1))
	g.Pix = []uint8{100, 140, 180}
	out := Threshold(g, 140)
	want := []uint8{0, 0, 0xff}
	for i := range want {
		if out.Pix[i] != want[i] {
			t.Errorf("pix[%d] = %d, want %d", i, out.Pix[i], want[i])
		}
	}
}

func TestAdjustMonotonic(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 256, 1))
	for x := 0; x < 256; x++ {
		g.Pix[x] = uint8(x)
	}
	out := Adjust(g, 15, 40)
	for x := 1; x < 256; x++ {
		if out.Pix[x] < out.Pix[x-1] {
			t.Fatalf("tone curve not monotonic at %d: %d < %d", x, out.Pix[x], out.Pix[x-1])
		}
	}
}

func BenchmarkDither(b *testing.B) {
	g := image.NewGray(image.Rect(0, 0, 480, 800))
	for i := range g.Pix {
		g.Pix[i] = uint8(i % 251)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Dither(g)
	}
}
