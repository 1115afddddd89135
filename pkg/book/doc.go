// Package book defines the document model that flows through the conversion
// pipeline: a Book as an ordered sequence of chapters, each holding text and
// image blocks extracted from the source EPUB.
//
// The model is the shared vocabulary between the parser, the hyphenator, the
// layout engine and the navigation builder. Books are owned by the caller and
// treated as read-only by the pipeline; stages that need to modify content
// (the hyphenator) return transformed copies.
//
// # Serialization
//
// Books marshal to a stable JSON form via [Marshal] and [Unmarshal]. The same
// bytes feed [Book.Fingerprint], which callers use as a cache key component.
package book
