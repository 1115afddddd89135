package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/inkdot-dev/inkpress/pkg/book"
	"github.com/inkdot-dev/inkpress/pkg/errors"
)

// minChapterChars is the text length under which a spine item outside the
// table of contents is treated as front-matter noise and dropped.
const minChapterChars = 50

// archive is a decompressed EPUB with normalized member paths.
type archive struct {
	files map[string][]byte
}

func openArchive(data []byte) (*archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParseEPUB, err, "open epub archive")
	}
	a := &archive{files: make(map[string][]byte, len(zr.File))}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeParseEPUB, err, "open %q", f.Name)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeParseEPUB, err, "read %q", f.Name)
		}
		a.files[normalizePath(f.Name)] = content
	}
	return a, nil
}

func (a *archive) get(name string) []byte {
	return a.files[normalizePath(name)]
}

func isChapterMedia(mediaType string) bool {
	switch mediaType {
	case "application/xhtml+xml", "text/html", "application/html+xml":
		return true
	}
	return false
}

// Parse converts an EPUB archive into a Book. The second return value
// carries recoverable warnings (unreadable chapters, missing images, a
// broken table of contents); the error is non-nil only when no book can be
// produced at all.
func Parse(data []byte) (*book.Book, []error, error) {
	a, err := openArchive(data)
	if err != nil {
		return nil, nil, err
	}

	containerXML := a.get("META-INF/container.xml")
	if containerXML == nil {
		return nil, nil, errors.New(errors.ErrCodeParseEPUB, "META-INF/container.xml missing")
	}
	rootPath, err := parseContainer(containerXML)
	if err != nil {
		return nil, nil, err
	}
	rootPath = normalizePath(rootPath)

	opfData := a.get(rootPath)
	if opfData == nil {
		return nil, nil, errors.New(errors.ErrCodeParseOPF, "rootfile %q missing", rootPath)
	}
	pkg, err := parseOPF(opfData)
	if err != nil {
		return nil, nil, err
	}
	opfDir := path.Dir(rootPath)

	var warns []error
	toc := parseTOC(a, pkg, opfDir, &warns)

	b := &book.Book{
		Title:    strings.TrimSpace(pkg.Metadata.Title),
		Author:   strings.TrimSpace(pkg.Metadata.Creator),
		Language: strings.TrimSpace(pkg.Metadata.Language),
	}

	for _, ref := range pkg.Spine.Itemrefs {
		item := pkg.itemByID(ref.IDRef)
		if item == nil {
			warns = append(warns, errors.New(errors.ErrCodeParseOPF, "spine references unknown item %q", ref.IDRef))
			continue
		}
		if !isChapterMedia(item.MediaType) {
			continue
		}
		chPath := normalizePath(path.Join(opfDir, item.Href))
		content := a.get(chPath)
		if content == nil {
			warns = append(warns, errors.New(errors.ErrCodeParseEPUB, "chapter %q missing from archive", chPath))
			continue
		}

		chDir := path.Dir(chPath)
		load := func(src string) (string, []byte) {
			p := normalizePath(path.Join(chDir, src))
			return p, a.get(p)
		}
		blocks, chWarns, err := parseChapterContent(content, load)
		if err != nil {
			warns = append(warns, err)
			continue
		}
		warns = append(warns, chWarns...)

		tocTitle, inTOC := toc[chPath]
		if !inTOC && !worthKeeping(blocks) {
			continue
		}

		title := tocTitle
		if title == "" {
			title = strings.TrimSpace(firstHeading(blocks))
		}
		if title == "" {
			title = fmt.Sprintf("Section %d", len(b.Chapters)+1)
		}

		id := item.ID
		for b.ChapterByID(id) != nil {
			id += "_"
		}
		b.Chapters = append(b.Chapters, book.Chapter{
			ID:      id,
			Title:   title,
			Visible: true,
			Blocks:  blocks,
		})
	}

	if len(b.Chapters) == 0 {
		return nil, warns, errors.New(errors.ErrCodeParseBook, "no readable chapters in spine")
	}
	if err := b.Validate(); err != nil {
		return nil, warns, errors.Wrap(errors.ErrCodeParseBook, err, "assembled book is invalid")
	}
	return b, warns, nil
}

// parseTOC extracts chapter titles from the EPUB3 nav document when present,
// falling back to the EPUB2 NCX. A broken table of contents degrades to
// heading-derived titles instead of failing the parse.
func parseTOC(a *archive, pkg *opfPackage, opfDir string, warns *[]error) map[string]string {
	if nav := pkg.navItem(); nav != nil {
		navPath := normalizePath(path.Join(opfDir, nav.Href))
		if data := a.get(navPath); data != nil {
			toc, err := tocFromNav(data, path.Dir(navPath))
			if err == nil {
				return toc
			}
			*warns = append(*warns, err)
		}
	}
	if pkg.Spine.Toc != "" {
		if item := pkg.itemByID(pkg.Spine.Toc); item != nil {
			ncxPath := normalizePath(path.Join(opfDir, item.Href))
			if data := a.get(ncxPath); data != nil {
				toc, err := tocFromNCX(data, path.Dir(ncxPath))
				if err == nil {
					return toc
				}
				*warns = append(*warns, err)
			}
		}
	}
	return map[string]string{}
}

// worthKeeping applies the front-matter skip rule to an out-of-TOC item.
func worthKeeping(blocks []book.Block) bool {
	chars := 0
	for _, blk := range blocks {
		switch blk.Kind {
		case book.KindImage:
			return true
		case book.KindText:
			chars += len(blk.Text.PlainText())
			if chars >= minChapterChars {
				return true
			}
		}
	}
	return false
}
