package cache

// ScopedKeyer wraps a Keyer with a prefix so several books or preview
// sessions sharing one backend get separate namespaces.
//
// Example usage:
//
//	// session-local keys for an interactive preview
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "session:"+id+":")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

func (k *ScopedKeyer) BookKey(sourceHash string) string {
	return k.prefix + k.inner.BookKey(sourceHash)
}

func (k *ScopedKeyer) LayoutKey(bookHash, configHash string) string {
	return k.prefix + k.inner.LayoutKey(bookHash, configHash)
}

func (k *ScopedKeyer) PageKey(layoutHash string, page int) string {
	return k.prefix + k.inner.PageKey(layoutHash, page)
}

func (k *ScopedKeyer) ContainerKey(layoutHash, visibilityHash string) string {
	return k.prefix + k.inner.ContainerKey(layoutHash, visibilityHash)
}
