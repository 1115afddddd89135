package epub

import (
	"encoding/xml"
	"path"
	"strings"

	"github.com/inkdot-dev/inkpress/pkg/errors"
)

// container is META-INF/container.xml, which points at the OPF file.
type container struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

// opfPackage is the subset of the OPF package document the converter needs.
// Field names match by local name, so both EPUB 2 and 3 namespaces parse.
type opfPackage struct {
	Metadata struct {
		Title    string `xml:"title"`
		Creator  string `xml:"creator"`
		Language string `xml:"language"`
	} `xml:"metadata"`
	Manifest struct {
		Items []opfItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		Itemrefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

func parseContainer(data []byte) (string, error) {
	var c container
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", errors.Wrap(errors.ErrCodeParseEPUB, err, "parse container.xml")
	}
	if len(c.Rootfiles) == 0 || c.Rootfiles[0].FullPath == "" {
		return "", errors.New(errors.ErrCodeParseEPUB, "container.xml lists no rootfile")
	}
	return c.Rootfiles[0].FullPath, nil
}

func parseOPF(data []byte) (*opfPackage, error) {
	var p opfPackage
	if err := xml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParseOPF, err, "parse package document")
	}
	if len(p.Spine.Itemrefs) == 0 {
		return nil, errors.New(errors.ErrCodeParseOPF, "spine is empty")
	}
	return &p, nil
}

func (p *opfPackage) itemByID(id string) *opfItem {
	for i := range p.Manifest.Items {
		if p.Manifest.Items[i].ID == id {
			return &p.Manifest.Items[i]
		}
	}
	return nil
}

// navItem finds the EPUB3 navigation document, if the manifest declares one.
func (p *opfPackage) navItem() *opfItem {
	for i := range p.Manifest.Items {
		for _, prop := range strings.Fields(p.Manifest.Items[i].Properties) {
			if prop == "nav" {
				return &p.Manifest.Items[i]
			}
		}
	}
	return nil
}

// ncx is the EPUB 2 table of contents.
type ncx struct {
	NavPoints []navPoint `xml:"navMap>navPoint"`
}

type navPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

// tocFromNCX flattens the navMap into href (without fragment) -> title.
// Nested points are walked depth-first; the first title for an href wins.
func tocFromNCX(data []byte, baseDir string) (map[string]string, error) {
	var n ncx
	if err := xml.Unmarshal(data, &n); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParseEPUB, err, "parse ncx")
	}
	toc := make(map[string]string)
	var walk func(points []navPoint)
	walk = func(points []navPoint) {
		for _, pt := range points {
			href := stripFragment(pt.Content.Src)
			if href != "" {
				key := normalizePath(path.Join(baseDir, href))
				if _, ok := toc[key]; !ok && strings.TrimSpace(pt.Label) != "" {
					toc[key] = strings.TrimSpace(pt.Label)
				}
			}
			walk(pt.Children)
		}
	}
	walk(n.NavPoints)
	return toc, nil
}

func stripFragment(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	return href
}

func normalizePath(p string) string {
	return path.Clean(strings.TrimPrefix(p, "/"))
}
