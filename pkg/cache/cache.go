// Package cache memoizes pipeline stages so repeated conversions of the
// same book skip parsing, layout and rasterization. Keys are derived from
// content hashes, so a stale entry can only be served for identical input.
package cache

import (
	"context"
	"time"
)

// Cache is the storage interface shared by all backends.
type Cache interface {
	// Get returns the cached bytes and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A zero ttl means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes a key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// Default TTLs per stage. Parsed books and layouts are cheap to keep;
// rendered pages are the bulk of the data and cycle faster.
const (
	TTLBook      = 24 * time.Hour
	TTLLayout    = 24 * time.Hour
	TTLPage      = 12 * time.Hour
	TTLContainer = 7 * 24 * time.Hour
)

// keyVersion is bumped whenever a cached representation changes shape, which
// invalidates all older entries at once.
const keyVersion = "v2"

// Keyer generates cache keys for each pipeline stage.
type Keyer interface {
	// BookKey keys a parsed book by the hash of its EPUB source.
	BookKey(sourceHash string) string
	// LayoutKey keys a page sequence by book content and layout config.
	LayoutKey(bookHash, configHash string) string
	// PageKey keys one rendered page bitmap.
	PageKey(layoutHash string, page int) string
	// ContainerKey keys a finished container by layout and visibility.
	ContainerKey(layoutHash, visibilityHash string) string
}

// DefaultKeyer derives keys by hashing the identifying components.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

func (k *DefaultKeyer) BookKey(sourceHash string) string {
	return hashKey("book:"+keyVersion, sourceHash)
}

func (k *DefaultKeyer) LayoutKey(bookHash, configHash string) string {
	return hashKey("layout:"+keyVersion, bookHash, configHash)
}

func (k *DefaultKeyer) PageKey(layoutHash string, page int) string {
	return hashKey("page:"+keyVersion, layoutHash, page)
}

func (k *DefaultKeyer) ContainerKey(layoutHash, visibilityHash string) string {
	return hashKey("container:"+keyVersion, layoutHash, visibilityHash)
}

// Ensure DefaultKeyer implements Keyer.
var _ Keyer = (*DefaultKeyer)(nil)
