package nav

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	"github.com/inkdot-dev/inkpress/pkg/imageproc"
)

// Footer geometry, measured from the bottom edge of the page.
const (
	footerTextSize   = 16
	footerTextY      = 45
	barY             = 20
	barHeight        = 4
	barInset         = 10
	titleMaxCols     = 35
	tocHeaderText    = "TABLE OF CONTENTS"
	overlayThreshold = 140
)

func (bl *Builder) face(size float64) font.Face {
	if bl.cfg.FontWeight > 500 {
		return bl.src.BoldFace(size)
	}
	return bl.src.Face(size)
}

func ascent(f font.Face) float64 {
	return float64(f.Metrics().Ascent) / 64
}

// RenderTOC draws the table-of-contents pages: a centered header over a
// rule, then one row per visible chapter with a dot leader and right-aligned
// page number.
func (bl *Builder) RenderTOC(ix *Index) []*image.Gray {
	if ix.TOCPages == 0 {
		return nil
	}
	w, h := bl.cfg.Dimensions()
	mainFace := bl.face(bl.cfg.FontSize)
	headerFace := bl.src.BoldFace(bl.cfg.FontSize * 1.2)
	rowH := float64(int(bl.cfg.FontSize * bl.cfg.LineHeight * 1.2))
	const leftMargin, rightMargin, columnGap = 40.0, 40.0, 20.0

	rows := bl.rowsPerTOCPage()
	var pages []*image.Gray
	for start := 0; start < len(ix.Entries); start += rows {
		chunk := ix.Entries[start:]
		if len(chunk) > rows {
			chunk = chunk[:rows]
		}

		dc := gg.NewContext(w, h)
		dc.SetColor(color.White)
		dc.Clear()
		dc.SetColor(color.Black)

		dc.SetFontFace(headerFace)
		headerW, _ := dc.MeasureString(tocHeaderText)
		headerTop := float64(40 + bl.cfg.TopPadding)
		dc.DrawString(tocHeaderText, (float64(w)-headerW)/2, headerTop+ascent(headerFace))

		lineY := headerTop + bl.cfg.FontSize*1.2*1.5
		dc.SetLineWidth(1)
		dc.DrawLine(leftMargin, lineY, float64(w)-rightMargin, lineY)
		dc.Stroke()

		dc.SetFontFace(mainFace)
		dotW, _ := dc.MeasureString(".")
		y := lineY + bl.cfg.FontSize*1.2
		for _, e := range chunk {
			pg := fmt.Sprintf("%d", e.Page+1)
			pgW, _ := dc.MeasureString(pg)
			maxTitleW := float64(w) - leftMargin - rightMargin - pgW - columnGap

			title := e.Title
			if tw, _ := dc.MeasureString(title); tw > maxTitleW {
				r := []rune(title)
				for len(r) > 0 {
					if tw, _ := dc.MeasureString(string(r) + "..."); tw <= maxTitleW {
						break
					}
					r = r[:len(r)-1]
				}
				title = string(r) + "..."
			}

			baseline := y + ascent(mainFace)
			dc.DrawString(title, leftMargin, baseline)

			titleW, _ := dc.MeasureString(title)
			dotsStart := leftMargin + titleW + 5
			dotsEnd := float64(w) - rightMargin - pgW - 10
			if dotsEnd > dotsStart && dotW > 0 {
				n := int((dotsEnd - dotsStart) / dotW)
				dots := make([]byte, n)
				for i := range dots {
					dots[i] = '.'
				}
				dc.DrawString(string(dots), dotsStart, baseline)
			}

			dc.DrawString(pg, float64(w)-rightMargin-pgW, baseline)
			y += rowH
		}

		pages = append(pages, bl.finish(dc.Image()))
	}
	return pages
}

// Stamp draws the footer overlay onto a rendered page: "page/total" and the
// current chapter title on the left, and a progress bar along the bottom
// with a tick at each visible chapter start. The input image is not
// modified.
func (bl *Builder) Stamp(ix *Index, page *image.Gray, abs int) *image.Gray {
	w, h := bl.cfg.Dimensions()
	dc := gg.NewContextForImage(page)
	dc.SetColor(color.Black)

	uiFace := bl.src.Face(footerTextSize)
	dc.SetFontFace(uiFace)
	textBase := float64(h-footerTextY) + ascent(uiFace)
	dc.DrawString(fmt.Sprintf("%d/%d", abs+1, ix.Total), 15, textBase)
	if title := ix.ChapterTitle(abs); title != "" {
		label := "| " + title
		if r := []rune(label); len(r) > titleMaxCols {
			label = string(r[:titleMaxCols])
		}
		dc.DrawString(label, 100, textBase)
	}

	barTop := float64(h - barY)
	barW := float64(w - 2*barInset)
	dc.SetLineWidth(1)
	dc.DrawRectangle(barInset, barTop, barW, barHeight)
	dc.Stroke()

	for _, e := range ix.Entries {
		if ix.Total == 0 {
			break
		}
		x := float64(barInset) + float64(e.Page)/float64(ix.Total)*barW
		dc.DrawLine(x, barTop-4, x, barTop)
		dc.Stroke()
	}

	if fill := ix.Progress[abs]; fill > 0 {
		dc.DrawRectangle(barInset, barTop, fill*barW, barHeight)
		dc.Fill()
	}

	return bl.finish(dc.Image())
}

// finish converts a drawn canvas back to grayscale and, for 1-bit output,
// snaps anti-aliased overlay pixels to pure black and white.
func (bl *Builder) finish(img image.Image) *image.Gray {
	g := imageproc.ToGray(img)
	if bl.cfg.BitDepth == 1 {
		g = imageproc.Threshold(g, overlayThreshold)
	}
	return g
}
