// Package hyphen inserts soft-hyphen break opportunities into text using
// Liang-style hyphenation patterns.
//
// Soft hyphens (U+00AD) are zero-width; the layout engine only renders a
// visible hyphen when a line actually wraps at one. Hyphenation is idempotent:
// existing soft hyphens are stripped before patterns are applied, so running
// the hyphenator twice produces the same output as running it once.
//
// Dictionaries for English and German are embedded in the binary. [For]
// resolves a BCP 47 language tag against the embedded set and reports whether
// a dictionary is available; callers treat a miss as a recoverable condition
// and ship the text unhyphenated.
package hyphen
