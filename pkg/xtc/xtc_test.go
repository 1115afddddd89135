package xtc

import (
	"bytes"
	"encoding/binary"
	"image"
	"reflect"
	"testing"

	"github.com/inkdot-dev/inkpress/pkg/errors"
)

func checkerPage(w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				g.Pix[y*g.Stride+x] = 0xff
			}
		}
	}
	return g
}

func testContainer(pages int) *Container {
	c := &Container{
		Title:    "A Book",
		Author:   "Someone",
		Width:    48,
		Height:   64,
		BitDepth: 1,
		TOC:      []TOCEntry{{Title: "One", ChapterID: "c1", Page: 0}},
	}
	for i := 0; i < pages; i++ {
		c.Pages = append(c.Pages, checkerPage(48, 64))
		c.Meta = append(c.Meta, PageMeta{ChapterID: "c1", Chapter: 0, Progress: float64(i) / float64(pages)})
	}
	return c
}

func TestPackBitsRoundTrip(t *testing.T) {
	for _, w := range []int{1, 7, 8, 9, 48} {
		g := checkerPage(w, 5)
		packed := PackBits(g)
		if want := ((w + 7) / 8) * 5; len(packed) != want {
			t.Fatalf("width %d: packed %d bytes, want %d", w, len(packed), want)
		}
		got := UnpackBits(packed, w, 5)
		if !bytes.Equal(got.Pix, g.Pix) {
			t.Fatalf("width %d: pixels changed across pack round trip", w)
		}
	}
}

func TestEncodeHeaderLayout(t *testing.T) {
	c := testContainer(3)
	data, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got := binary.LittleEndian.Uint32(data[0:]); got != MagicContainer {
		t.Fatalf("magic = %#x", got)
	}
	if got := binary.LittleEndian.Uint16(data[4:]); got != Version {
		t.Fatalf("version = %#x", got)
	}
	if got := binary.LittleEndian.Uint16(data[6:]); got != 3 {
		t.Fatalf("page count = %d", got)
	}
	if got := binary.LittleEndian.Uint64(data[24:]); got != 56 {
		t.Fatalf("index offset = %d, want 56", got)
	}
	wantData := uint64(56 + 16*3)
	if got := binary.LittleEndian.Uint64(data[32:]); got != wantData {
		t.Fatalf("data offset = %d, want %d", got, wantData)
	}
	// first index entry points at the first page record
	if got := binary.LittleEndian.Uint64(data[56:]); got != wantData {
		t.Fatalf("first page offset = %d, want %d", got, wantData)
	}
	if got := binary.LittleEndian.Uint32(data[wantData:]); got != MagicPage {
		t.Fatalf("page magic = %#x", got)
	}
}

func TestRoundTrip(t *testing.T) {
	c := testContainer(4)
	data, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Title != c.Title || got.Author != c.Author {
		t.Fatalf("metadata = %q/%q", got.Title, got.Author)
	}
	if got.Width != c.Width || got.Height != c.Height || got.BitDepth != 1 {
		t.Fatalf("geometry = %dx%d@%d", got.Width, got.Height, got.BitDepth)
	}
	if len(got.Pages) != 4 {
		t.Fatalf("decoded %d pages", len(got.Pages))
	}
	for i, p := range got.Pages {
		if !bytes.Equal(p.Pix, c.Pages[i].Pix) {
			t.Fatalf("page %d pixels changed", i)
		}
	}
	if !reflect.DeepEqual(got.Meta, c.Meta) {
		t.Fatalf("meta = %+v, want %+v", got.Meta, c.Meta)
	}
	if !reflect.DeepEqual(got.TOC, c.TOC) {
		t.Fatalf("toc = %+v, want %+v", got.TOC, c.TOC)
	}
}

func TestRoundTripEightBit(t *testing.T) {
	c := testContainer(1)
	c.BitDepth = 8
	g := c.Pages[0]
	g.Pix[5] = 0x80 // a shade that 1-bit packing would destroy
	data, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.BitDepth != 8 {
		t.Fatalf("bit depth = %d", got.BitDepth)
	}
	if got.Pages[0].Pix[5] != 0x80 {
		t.Fatalf("gray shade lost: %#x", got.Pages[0].Pix[5])
	}
}

func TestEncodeDeterministic(t *testing.T) {
	c := testContainer(2)
	a, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := Encode(c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("repeated encodes differ")
	}
}

func TestDecodeLegacyFile(t *testing.T) {
	// a minimal version 1.0 file as the original firmware tools wrote it:
	// zeroed reserved fields, no metadata or toc tables
	page := checkerPage(16, 8)
	rec := make([]byte, pageHeaderSize)
	binary.LittleEndian.PutUint32(rec[0:], MagicPage)
	binary.LittleEndian.PutUint16(rec[4:], 16)
	binary.LittleEndian.PutUint16(rec[6:], 8)
	binary.LittleEndian.PutUint32(rec[10:], 16)
	rec = append(rec, PackBits(page)...)

	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(hdr[0:], MagicContainer)
	binary.LittleEndian.PutUint16(hdr[4:], VersionLegacy)
	binary.LittleEndian.PutUint16(hdr[6:], 1)
	binary.LittleEndian.PutUint64(hdr[24:], 56)
	binary.LittleEndian.PutUint64(hdr[32:], 56+16)

	idx := make([]byte, indexEntrySize)
	binary.LittleEndian.PutUint64(idx[0:], 56+16)
	binary.LittleEndian.PutUint32(idx[8:], uint32(len(rec)))
	binary.LittleEndian.PutUint16(idx[12:], 16)
	binary.LittleEndian.PutUint16(idx[14:], 8)

	file := append(append(hdr, idx...), rec...)
	got, err := Decode(file)
	if err != nil {
		t.Fatalf("Decode legacy: %v", err)
	}
	if len(got.Pages) != 1 || got.BitDepth != 1 {
		t.Fatalf("pages = %d, depth = %d", len(got.Pages), got.BitDepth)
	}
	if got.Width != 16 || got.Height != 8 {
		t.Fatalf("geometry = %dx%d", got.Width, got.Height)
	}
	if !bytes.Equal(got.Pages[0].Pix, page.Pix) {
		t.Fatal("legacy page pixels changed")
	}
	if len(got.Meta) != 1 || len(got.TOC) != 0 {
		t.Fatalf("legacy tables: %d meta, %d toc", len(got.Meta), len(got.TOC))
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":     nil,
		"short":     make([]byte, 10),
		"bad magic": make([]byte, headerSize),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			if err == nil {
				t.Fatal("expected decode error")
			}
			if errors.GetCode(err) != errors.ErrCodeDecode {
				t.Fatalf("code = %v", errors.GetCode(err))
			}
		})
	}
}

func TestDecodeRejectsOverflowingOffsets(t *testing.T) {
	valid, err := Encode(testContainer(1))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// offsets near the top of the uint64 range would wrap around when the
	// record length is added; the decoder must reject them, not panic
	corrupt := func(mutate func([]byte)) []byte {
		data := append([]byte(nil), valid...)
		mutate(data)
		return data
	}
	cases := map[string][]byte{
		"page offset": corrupt(func(data []byte) {
			idxOff := binary.LittleEndian.Uint64(data[24:])
			binary.LittleEndian.PutUint64(data[idxOff:], 0xffffffffffffff00)
			binary.LittleEndian.PutUint32(data[idxOff+8:], 0x120)
		}),
		"index offset": corrupt(func(data []byte) {
			binary.LittleEndian.PutUint64(data[24:], 0xfffffffffffffff0)
		}),
		"table offset": corrupt(func(data []byte) {
			binary.LittleEndian.PutUint64(data[40:], 0xfffffffffffffffe)
		}),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			if err == nil {
				t.Fatal("expected decode error")
			}
			if errors.GetCode(err) != errors.ErrCodeDecode {
				t.Fatalf("code = %v", errors.GetCode(err))
			}
		})
	}
}

func TestEncodeRejectsMismatchedPages(t *testing.T) {
	c := testContainer(2)
	c.Meta = c.Meta[:1]
	if _, err := Encode(c); err == nil {
		t.Fatal("expected error for mismatched metadata")
	}
	c = testContainer(1)
	c.Pages[0] = checkerPage(10, 10)
	if _, err := Encode(c); err == nil {
		t.Fatal("expected error for page size mismatch")
	}
}
