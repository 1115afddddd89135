// Package raster turns laid-out page descriptions into device-ready
// grayscale bitmaps.
//
// Text is drawn onto a supersampled canvas and downsampled with a Lanczos
// filter, which keeps small glyphs readable on low-resolution e-ink panels.
// Image blocks are decoded and composited at device resolution. For 1-bit
// output the finished page is reduced as a whole: pages carrying images are
// Floyd-Steinberg dithered, pure text pages are thresholded so glyph edges
// stay crisp instead of gaining dither noise.
package raster
