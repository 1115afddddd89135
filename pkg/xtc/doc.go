// Package xtc encodes and decodes the XTC container format used by e-ink
// reader firmware.
//
// An XTC file is a 56-byte little-endian header, a 16-byte index entry per
// page, and a run of XTG page records holding packed pixel rows. Format
// version 1.1 additionally stores a metadata table (title, author, per-page
// chapter and progress) and a table-of-contents jump table in two header
// slots that version 1.0 writers left zero, so 1.0 files still decode.
//
// Encoding is pure: identical input always produces byte-identical output.
package xtc
