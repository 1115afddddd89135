// Package epub parses EPUB archives into the document model.
//
// Parsing follows the spine: every spine item becomes a candidate chapter.
// Chapter titles come from the NCX or EPUB3 nav document when the item is
// listed there, otherwise from the first heading in the content. Spine items
// that are not in the table of contents, carry less than 50 characters of
// text and no images are dropped as front-matter noise (cover wrappers,
// blank separators).
//
// The parser is tolerant: a chapter or image that cannot be decoded becomes
// a warning, not a failed book.
package epub
