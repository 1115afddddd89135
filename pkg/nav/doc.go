// Package nav derives navigation from a laid-out page sequence: table of
// contents pages inserted at the front, a per-page footer overlay with page
// counter, chapter title and progress bar, and the metadata tables stored in
// the container.
//
// Navigation is recomputed from the book's current visibility flags and the
// already-laid-out pages alone. Hiding a chapter never deletes its pages; it
// only removes the chapter from the TOC and from the progress denominator.
package nav
