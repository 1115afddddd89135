package epub

import (
	"bytes"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/inkdot-dev/inkpress/pkg/book"
	"github.com/inkdot-dev/inkpress/pkg/errors"
	"github.com/inkdot-dev/inkpress/pkg/imageproc"
)

// contentParser extracts blocks from one XHTML chapter document.
type contentParser struct {
	blocks  []book.Block
	runs    []book.Run
	heading bool
	bold    int
	italic  int
	warns   []error

	// load resolves an image reference relative to the chapter file and
	// returns the archive path and bytes, or nil when missing.
	load func(src string) (string, []byte)
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name || strings.HasSuffix(a.Key, ":"+name) {
			return a.Val
		}
	}
	return ""
}

// collapseSpace folds runs of whitespace into single spaces, the way HTML
// rendering does.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (cp *contentParser) flush() {
	var hasText bool
	for _, r := range cp.runs {
		if strings.TrimSpace(r.Text) != "" {
			hasText = true
			break
		}
	}
	if hasText {
		tb := book.TextBlock{Runs: cp.runs, Heading: cp.heading}
		cp.blocks = append(cp.blocks, book.Block{Kind: book.KindText, Text: &tb})
	}
	cp.runs = nil
}

func (cp *contentParser) text(s string) {
	t := collapseSpace(s)
	if t == "" {
		return
	}
	if len(cp.runs) > 0 {
		t = " " + t
	}
	cp.runs = append(cp.runs, book.Run{Text: t, Bold: cp.bold > 0, Italic: cp.italic > 0})
}

func (cp *contentParser) image(src string) {
	if src == "" {
		return
	}
	cp.flush()
	name, data := cp.load(src)
	if data == nil {
		cp.warns = append(cp.warns, errors.New(errors.ErrCodeAssetImage, "image %q not in archive", src))
		return
	}
	w, h, err := imageproc.Size(data)
	if err != nil {
		// keep the block; the rasterizer renders a placeholder
		cp.warns = append(cp.warns, err)
	}
	cp.blocks = append(cp.blocks, book.NewImageBlock(name, data, w, h))
}

func (cp *contentParser) walk(n *html.Node) {
	if n.Type == html.TextNode {
		cp.text(n.Data)
		return
	}
	if n.Type != html.ElementNode && n.Type != html.DocumentNode {
		return
	}
	switch n.Data {
	case "head", "script", "style":
		return
	case "h1", "h2", "h3", "h4", "h5", "h6":
		cp.flush()
		cp.heading = true
		cp.children(n)
		cp.flush()
		cp.heading = false
		return
	case "p", "div", "blockquote", "li", "figure", "section", "table", "tr":
		cp.flush()
		cp.children(n)
		cp.flush()
		return
	case "b", "strong":
		cp.bold++
		cp.children(n)
		cp.bold--
		return
	case "i", "em", "cite":
		cp.italic++
		cp.children(n)
		cp.italic--
		return
	case "br":
		// line breaks inside a paragraph reflow as spaces
		return
	case "img":
		cp.image(attr(n, "src"))
		return
	case "image":
		// SVG-wrapped cover images use xlink:href
		cp.image(attr(n, "href"))
		return
	}
	cp.children(n)
}

func (cp *contentParser) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cp.walk(c)
	}
}

// parseChapterContent extracts the block sequence of one chapter document.
func parseChapterContent(data []byte, load func(src string) (string, []byte)) ([]book.Block, []error, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeParseEPUB, err, "parse chapter xhtml")
	}
	cp := &contentParser{load: load}
	cp.walk(doc)
	cp.flush()
	return cp.blocks, cp.warns, nil
}

// firstHeading returns the text of the first heading block, if any.
func firstHeading(blocks []book.Block) string {
	for _, blk := range blocks {
		if blk.Kind == book.KindText && blk.Text.Heading {
			return blk.Text.PlainText()
		}
	}
	return ""
}

// tocFromNav extracts href -> title from an EPUB3 navigation document.
func tocFromNav(data []byte, baseDir string) (map[string]string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParseEPUB, err, "parse nav document")
	}
	toc := make(map[string]string)
	var inNav bool
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		wasNav := inNav
		if n.Type == html.ElementNode {
			switch n.Data {
			case "nav":
				// prefer the toc nav, accept an untyped one
				typ := attr(n, "type")
				inNav = typ == "" || typ == "toc"
			case "a":
				if inNav {
					href := stripFragment(attr(n, "href"))
					title := collapseSpace(textContent(n))
					if href != "" && title != "" {
						key := normalizePath(path.Join(baseDir, href))
						if _, ok := toc[key]; !ok {
							toc[key] = title
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		inNav = wasNav
	}
	walk(doc)
	return toc, nil
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
