// Package pkg provides the core libraries for Inkpress EPUB conversion.
//
// # Overview
//
// Inkpress reflows EPUB books into pre-rendered XTC page containers for
// e-ink readers. The pkg directory is organized by pipeline stage:
//
//  1. [epub], [book] - Parsing and the device-independent document model
//  2. [hyphen], [layout] - Soft hyphenation and the line breaking engine
//  3. [imageproc], [raster], [nav] - Rasterization and navigation overlays
//  4. [xtc] - The binary page container format
//  5. [pipeline], [cache] - Orchestration and stage memoization
//
// # Architecture
//
// The typical data flow through Inkpress:
//
//	EPUB archive
//	         ↓
//	    [epub] package (container/OPF/NCX parsing → book.Book)
//	         ↓
//	    [hyphen] package (soft hyphen insertion)
//	         ↓
//	    [layout] package (greedy line breaking → layout.Page)
//	         ↓
//	    [raster] + [nav] packages (grayscale pages + TOC/footer)
//	         ↓
//	    [xtc] package (binary container)
//
// # Quick Start
//
// Convert an EPUB into an XTC container:
//
//	import (
//	    "context"
//	    "os"
//
//	    "github.com/inkdot-dev/inkpress/pkg/pipeline"
//	)
//
//	data, _ := os.ReadFile("book.epub")
//	runner := pipeline.NewRunner(nil, nil, nil)
//	defer runner.Close()
//
//	result, err := runner.Execute(context.Background(), pipeline.Options{
//	    EPUB:   data,
//	    Source: "book.epub",
//	})
//	if err != nil {
//	    // handle
//	}
//	_ = os.WriteFile("book.xtc", result.Container, 0o644)
//
// Ambient packages: [errors] for coded errors, [observability] for stage
// hooks, [fonts] for TTF loading, [buildinfo] for version stamping.
package pkg
