package xtc

import (
	"encoding/binary"
	"encoding/json"
	"image"

	"github.com/inkdot-dev/inkpress/pkg/errors"
)

const (
	// MagicContainer is "XTC\0" read as a little-endian u32.
	MagicContainer = 0x00435458
	// MagicPage is "XTG\0" read as a little-endian u32.
	MagicPage = 0x00475458

	// VersionLegacy marks files without metadata and TOC tables.
	VersionLegacy = 0x0100
	// Version is the current format revision.
	Version = 0x0101

	headerSize     = 56
	indexEntrySize = 16
	pageHeaderSize = 22
)

// PageMeta describes one page in reading order.
type PageMeta struct {
	// ChapterID is empty for TOC pages.
	ChapterID string `json:"chapter_id,omitempty"`
	// Chapter is the visible-chapter ordinal the page belongs to, -1 for
	// TOC pages.
	Chapter int `json:"chapter"`
	// TOC marks generated table-of-contents pages.
	TOC bool `json:"toc,omitempty"`
	// Progress is the page's position within the content pages, in [0, 1].
	Progress float64 `json:"progress"`
}

// TOCEntry maps a visible chapter to its first page index.
type TOCEntry struct {
	Title     string `json:"title"`
	ChapterID string `json:"chapter_id"`
	Page      int    `json:"page"`
}

// Container is the decoded form of an XTC file. Pages are stored in reading
// order, TOC pages first. Meta runs parallel to Pages.
type Container struct {
	Title  string
	Author string

	Width    int
	Height   int
	BitDepth int

	Pages []*image.Gray
	Meta  []PageMeta
	TOC   []TOCEntry
}

// metaTable is the JSON payload of the version 1.1 metadata slot.
type metaTable struct {
	Title  string     `json:"title,omitempty"`
	Author string     `json:"author,omitempty"`
	Pages  []PageMeta `json:"pages"`
}

// PackBits packs a grayscale image into 1-bit rows, most significant bit
// first, one bit per pixel with 1 meaning paper (pixel above 128). Rows are
// padded to whole bytes.
func PackBits(g *image.Gray) []byte {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := (w + 7) / 8
	out := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		row := out[y*stride:]
		for x := 0; x < w; x++ {
			if g.GrayAt(b.Min.X+x, b.Min.Y+y).Y > 128 {
				row[x/8] |= 0x80 >> (x % 8)
			}
		}
	}
	return out
}

// UnpackBits expands 1-bit rows produced by PackBits back into an 8-bit
// grayscale image with pure black and white pixels.
func UnpackBits(data []byte, w, h int) *image.Gray {
	stride := (w + 7) / 8
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := data[y*stride:]
		for x := 0; x < w; x++ {
			if row[x/8]&(0x80>>(x%8)) != 0 {
				g.Pix[y*g.Stride+x] = 0xff
			}
		}
	}
	return g
}

func (c *Container) validate() error {
	if len(c.Pages) != len(c.Meta) {
		return errors.New(errors.ErrCodeEncode, "%d pages but %d metadata entries", len(c.Pages), len(c.Meta))
	}
	if len(c.Pages) > 0xffff {
		return errors.New(errors.ErrCodeEncode, "%d pages exceed the u16 page count", len(c.Pages))
	}
	if c.Width <= 0 || c.Height <= 0 || c.Width > 0xffff || c.Height > 0xffff {
		return errors.New(errors.ErrCodeEncode, "page size %dx%d not representable", c.Width, c.Height)
	}
	if c.BitDepth != 1 && c.BitDepth != 8 {
		return errors.New(errors.ErrCodeEncode, "bit depth %d is not 1 or 8", c.BitDepth)
	}
	for i, p := range c.Pages {
		if p.Bounds().Dx() != c.Width || p.Bounds().Dy() != c.Height {
			return errors.New(errors.ErrCodeEncode, "page %d is %v, container is %dx%d", i, p.Bounds(), c.Width, c.Height)
		}
	}
	return nil
}

// Encode serializes the container. The output is byte-identical for
// identical input.
func Encode(c *Container) ([]byte, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	dataOff := uint64(headerSize + indexEntrySize*len(c.Pages))

	index := make([]byte, 0, indexEntrySize*len(c.Pages))
	var blob []byte
	for _, p := range c.Pages {
		rec := encodePage(p, c.BitDepth)
		var entry [indexEntrySize]byte
		binary.LittleEndian.PutUint64(entry[0:], dataOff+uint64(len(blob)))
		binary.LittleEndian.PutUint32(entry[8:], uint32(len(rec)))
		binary.LittleEndian.PutUint16(entry[12:], uint16(c.Width))
		binary.LittleEndian.PutUint16(entry[14:], uint16(c.Height))
		index = append(index, entry[:]...)
		blob = append(blob, rec...)
	}

	meta, err := json.Marshal(metaTable{Title: c.Title, Author: c.Author, Pages: c.Meta})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEncode, err, "marshal metadata table")
	}
	toc, err := json.Marshal(c.TOC)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEncode, err, "marshal toc table")
	}

	metaOff := dataOff + uint64(len(blob))
	tocOff := metaOff + 4 + uint64(len(meta))

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], MagicContainer)
	binary.LittleEndian.PutUint16(hdr[4:], Version)
	binary.LittleEndian.PutUint16(hdr[6:], uint16(len(c.Pages)))
	hdr[8] = byte(c.BitDepth)
	// hdr[9:12] reserved
	binary.LittleEndian.PutUint32(hdr[12:], uint32(c.Width)<<16|uint32(c.Height))
	// q0 reserved, q1 index offset, q2 data offset, q3 metadata, q4 toc
	binary.LittleEndian.PutUint64(hdr[24:], headerSize)
	binary.LittleEndian.PutUint64(hdr[32:], dataOff)
	binary.LittleEndian.PutUint64(hdr[40:], metaOff)
	binary.LittleEndian.PutUint64(hdr[48:], tocOff)

	out := make([]byte, 0, int(tocOff)+4+len(toc))
	out = append(out, hdr[:]...)
	out = append(out, index...)
	out = append(out, blob...)
	out = appendTable(out, meta)
	out = appendTable(out, toc)
	return out, nil
}

func appendTable(out, table []byte) []byte {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(table)))
	out = append(out, n[:]...)
	return append(out, table...)
}

// encodePage builds one XTG record. At depth 1 rows are bit-packed; at depth
// 8 raw grayscale bytes are stored.
func encodePage(p *image.Gray, depth int) []byte {
	b := p.Bounds()
	w, h := b.Dx(), b.Dy()

	var pixels []byte
	if depth == 1 {
		pixels = PackBits(p)
	} else {
		pixels = make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(pixels[y*w:], p.Pix[(y+b.Min.Y-p.Rect.Min.Y)*p.Stride:][:w])
		}
	}

	rec := make([]byte, pageHeaderSize, pageHeaderSize+len(pixels))
	binary.LittleEndian.PutUint32(rec[0:], MagicPage)
	binary.LittleEndian.PutUint16(rec[4:], uint16(w))
	binary.LittleEndian.PutUint16(rec[6:], uint16(h))
	rec[8] = byte(depth)
	binary.LittleEndian.PutUint32(rec[10:], uint32(len(pixels)))
	return append(rec, pixels...)
}

// Decode parses an XTC file. Version 1.0 files decode with empty metadata
// and TOC tables and an assumed bit depth of 1.
func Decode(data []byte) (*Container, error) {
	if len(data) < headerSize {
		return nil, errors.New(errors.ErrCodeDecode, "truncated header: %d bytes", len(data))
	}
	if binary.LittleEndian.Uint32(data[0:]) != MagicContainer {
		return nil, errors.New(errors.ErrCodeDecode, "bad container magic %#x", binary.LittleEndian.Uint32(data[0:]))
	}
	version := binary.LittleEndian.Uint16(data[4:])
	if version != VersionLegacy && version != Version {
		return nil, errors.New(errors.ErrCodeDecode, "unsupported version %#x", version)
	}
	count := int(binary.LittleEndian.Uint16(data[6:]))

	c := &Container{BitDepth: int(data[8])}
	if c.BitDepth == 0 {
		c.BitDepth = 1
	}
	packed := binary.LittleEndian.Uint32(data[12:])
	c.Width = int(packed >> 16)
	c.Height = int(packed & 0xffff)

	// offsets come from the file; compare by subtraction so huge values
	// cannot wrap around uint64 and slip past the bounds checks
	end := uint64(len(data))
	idxOff := binary.LittleEndian.Uint64(data[24:])
	if idxOff == 0 {
		idxOff = headerSize
	}
	if idxOff > end || end-idxOff < uint64(indexEntrySize*count) {
		return nil, errors.New(errors.ErrCodeDecode, "index table extends past end of file")
	}

	for i := 0; i < count; i++ {
		entry := data[idxOff+uint64(i*indexEntrySize):]
		off := binary.LittleEndian.Uint64(entry[0:])
		length := binary.LittleEndian.Uint32(entry[8:])
		if off > end || end-off < uint64(length) {
			return nil, errors.New(errors.ErrCodeDecode, "page %d extends past end of file", i)
		}
		page, err := decodePage(data[off : off+uint64(length)])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDecode, err, "page %d", i)
		}
		c.Pages = append(c.Pages, page)
		if c.Width == 0 {
			c.Width = page.Bounds().Dx()
			c.Height = page.Bounds().Dy()
		}
	}

	if version >= Version {
		metaOff := binary.LittleEndian.Uint64(data[40:])
		tocOff := binary.LittleEndian.Uint64(data[48:])
		if metaOff != 0 {
			raw, err := readTable(data, metaOff)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeDecode, err, "metadata table")
			}
			var mt metaTable
			if err := json.Unmarshal(raw, &mt); err != nil {
				return nil, errors.Wrap(errors.ErrCodeDecode, err, "metadata table")
			}
			c.Title, c.Author, c.Meta = mt.Title, mt.Author, mt.Pages
		}
		if tocOff != 0 {
			raw, err := readTable(data, tocOff)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeDecode, err, "toc table")
			}
			if err := json.Unmarshal(raw, &c.TOC); err != nil {
				return nil, errors.Wrap(errors.ErrCodeDecode, err, "toc table")
			}
		}
	}
	if c.Meta == nil {
		c.Meta = make([]PageMeta, len(c.Pages))
	}
	if len(c.Meta) != len(c.Pages) {
		return nil, errors.New(errors.ErrCodeDecode, "%d metadata entries for %d pages", len(c.Meta), len(c.Pages))
	}
	return c, nil
}

func readTable(data []byte, off uint64) ([]byte, error) {
	end := uint64(len(data))
	if off > end || end-off < 4 {
		return nil, errors.New(errors.ErrCodeDecode, "table header past end of file")
	}
	n := binary.LittleEndian.Uint32(data[off:])
	if end-off-4 < uint64(n) {
		return nil, errors.New(errors.ErrCodeDecode, "table body past end of file")
	}
	return data[off+4 : off+4+uint64(n)], nil
}

func decodePage(rec []byte) (*image.Gray, error) {
	if len(rec) < pageHeaderSize {
		return nil, errors.New(errors.ErrCodeDecode, "truncated page header")
	}
	if binary.LittleEndian.Uint32(rec[0:]) != MagicPage {
		return nil, errors.New(errors.ErrCodeDecode, "bad page magic %#x", binary.LittleEndian.Uint32(rec[0:]))
	}
	w := int(binary.LittleEndian.Uint16(rec[4:]))
	h := int(binary.LittleEndian.Uint16(rec[6:]))
	depth := int(rec[8])
	if depth == 0 {
		depth = 1
	}
	length := int(binary.LittleEndian.Uint32(rec[10:]))
	pixels := rec[pageHeaderSize:]
	if len(pixels) < length {
		return nil, errors.New(errors.ErrCodeDecode, "page data %d bytes, header says %d", len(pixels), length)
	}
	pixels = pixels[:length]

	switch depth {
	case 1:
		if want := ((w + 7) / 8) * h; length != want {
			return nil, errors.New(errors.ErrCodeDecode, "1-bit page %dx%d wants %d bytes, got %d", w, h, want, length)
		}
		return UnpackBits(pixels, w, h), nil
	case 8:
		if want := w * h; length != want {
			return nil, errors.New(errors.ErrCodeDecode, "8-bit page %dx%d wants %d bytes, got %d", w, h, want, length)
		}
		g := image.NewGray(image.Rect(0, 0, w, h))
		copy(g.Pix, pixels)
		return g, nil
	default:
		return nil, errors.New(errors.ErrCodeDecode, "unsupported page depth %d", depth)
	}
}
