// Package layout reflows a book into fixed-size page descriptions under a
// typography configuration.
//
// The engine threads a cursor through each chapter, packing words greedily
// into lines and lines into pages:
//
//	AdvancingText -> (line full) -> NewLine -> (page full) -> NewPage
//	              -> (chapter exhausted) -> ChapterDone
//
// Line breaks prefer a soft-hyphen break opportunity when one lands within a
// configurable tolerance of the line end, then the last inter-word gap, and
// force-break mid-word only as a last resort. Finished lines (except the last
// line of a paragraph and headings) are justified by widening word gaps.
// Images are placed as atomic blocks: an image that does not fit in the
// remaining vertical space starts a new page, and an image taller than the
// content area is scaled down to occupy exactly one page.
//
// Layout is deterministic and performs no I/O; pages are plain data that
// serialize to JSON for caching.
package layout
