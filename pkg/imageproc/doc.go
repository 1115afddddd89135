// Package imageproc prepares source images for e-ink output: decoding,
// aspect-preserving scaling, tone-curve contrast adjustment, and
// Floyd-Steinberg error-diffusion dithering down to the device bit depth.
//
// All operations are deterministic: the same input bytes and options always
// produce byte-identical pixel buffers. Corrupt or unsupported image data
// degrades to a uniform placeholder block with a recoverable ASSET_IMAGE
// error rather than failing the page.
package imageproc
