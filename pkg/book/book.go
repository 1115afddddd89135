package book

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// BlockKind discriminates the Block union.
type BlockKind string

// Block kinds.
const (
	KindText  BlockKind = "text"
	KindImage BlockKind = "image"
)

// Book is an ordered sequence of chapters plus source metadata.
type Book struct {
	Title    string    `json:"title,omitempty"`
	Author   string    `json:"author,omitempty"`
	Language string    `json:"language,omitempty"`
	Chapters []Chapter `json:"chapters"`
}

// Chapter is a spine-ordered unit of content. Hidden chapters (Visible=false)
// keep their pages in the final page flow but are excluded from the table of
// contents and the progress denominator.
type Chapter struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Visible bool    `json:"visible"`
	Blocks  []Block `json:"blocks"`
}

// Block is a tagged union over text and image content. Exactly one of Text
// and Image is non-nil, matching Kind.
type Block struct {
	Kind  BlockKind   `json:"kind"`
	Text  *TextBlock  `json:"text,omitempty"`
	Image *ImageBlock `json:"image,omitempty"`
}

// TextBlock holds one paragraph (or heading) as an ordered run sequence.
type TextBlock struct {
	Runs    []Run `json:"runs"`
	Heading bool  `json:"heading,omitempty"`
}

// Run is a maximal span of text with uniform styling.
type Run struct {
	Text   string `json:"text"`
	Bold   bool   `json:"bold,omitempty"`
	Italic bool   `json:"italic,omitempty"`
}

// ImageBlock references raw encoded image bytes with their intrinsic size.
// Width/Height may be zero when the source dimensions could not be decoded;
// the layout engine then falls back to the content box size.
type ImageBlock struct {
	Name   string `json:"name,omitempty"`
	Data   []byte `json:"data"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// NewTextBlock wraps runs in a Block.
func NewTextBlock(runs ...Run) Block {
	return Block{Kind: KindText, Text: &TextBlock{Runs: runs}}
}

// NewHeadingBlock wraps runs in a heading Block.
func NewHeadingBlock(runs ...Run) Block {
	return Block{Kind: KindText, Text: &TextBlock{Runs: runs, Heading: true}}
}

// NewImageBlock wraps image bytes in a Block.
func NewImageBlock(name string, data []byte, w, h int) Block {
	return Block{Kind: KindImage, Image: &ImageBlock{Name: name, Data: data, Width: w, Height: h}}
}

// PlainText concatenates the block's run text without styling.
func (t *TextBlock) PlainText() string {
	var sb strings.Builder
	for _, r := range t.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// Chapter lookup helpers.

// ChapterByID returns the chapter with the given id, or nil.
func (b *Book) ChapterByID(id string) *Chapter {
	for i := range b.Chapters {
		if b.Chapters[i].ID == id {
			return &b.Chapters[i]
		}
	}
	return nil
}

// ChapterIndex returns the position of the chapter with the given id, or -1.
func (b *Book) ChapterIndex(id string) int {
	for i := range b.Chapters {
		if b.Chapters[i].ID == id {
			return i
		}
	}
	return -1
}

// SetVisibility flips the visible flag for a chapter and reports whether the
// chapter exists.
func (b *Book) SetVisibility(id string, visible bool) bool {
	ch := b.ChapterByID(id)
	if ch == nil {
		return false
	}
	ch.Visible = visible
	return true
}

// VisibleChapters returns the indices of visible chapters in order.
func (b *Book) VisibleChapters() []int {
	var out []int
	for i := range b.Chapters {
		if b.Chapters[i].Visible {
			out = append(out, i)
		}
	}
	return out
}

// Validate checks structural invariants: non-empty chapter ids, unique ids,
// and block unions with exactly one populated variant.
func (b *Book) Validate() error {
	seen := make(map[string]bool, len(b.Chapters))
	for i, ch := range b.Chapters {
		if ch.ID == "" {
			return fmt.Errorf("chapter %d: empty id", i)
		}
		if seen[ch.ID] {
			return fmt.Errorf("chapter %d: duplicate id %q", i, ch.ID)
		}
		seen[ch.ID] = true
		for j, blk := range ch.Blocks {
			switch blk.Kind {
			case KindText:
				if blk.Text == nil || blk.Image != nil {
					return fmt.Errorf("chapter %q block %d: malformed text block", ch.ID, j)
				}
			case KindImage:
				if blk.Image == nil || blk.Text != nil {
					return fmt.Errorf("chapter %q block %d: malformed image block", ch.ID, j)
				}
			default:
				return fmt.Errorf("chapter %q block %d: unknown kind %q", ch.ID, j, blk.Kind)
			}
		}
	}
	return nil
}

// Clone returns a deep copy. Image bytes are shared (they are never mutated).
func (b *Book) Clone() *Book {
	out := &Book{Title: b.Title, Author: b.Author, Language: b.Language}
	out.Chapters = make([]Chapter, len(b.Chapters))
	for i, ch := range b.Chapters {
		cc := ch
		cc.Blocks = make([]Block, len(ch.Blocks))
		for j, blk := range ch.Blocks {
			nb := blk
			if blk.Text != nil {
				t := *blk.Text
				t.Runs = append([]Run(nil), blk.Text.Runs...)
				nb.Text = &t
			}
			if blk.Image != nil {
				im := *blk.Image
				nb.Image = &im
			}
			cc.Blocks[j] = nb
		}
		out.Chapters[i] = cc
	}
	return out
}

// Marshal serializes the book to JSON.
func Marshal(b *Book) ([]byte, error) {
	return json.Marshal(b)
}

// Unmarshal deserializes a book from JSON and validates it.
func Unmarshal(data []byte) (*Book, error) {
	var b Book
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Read reads a JSON-serialized book from r.
func Read(r io.Reader) (*Book, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// Fingerprint returns a content hash of the book, including visibility
// flags. Identical fingerprints imply byte-identical pipeline output for the
// same configuration.
func (b *Book) Fingerprint() string {
	data, err := Marshal(b)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
