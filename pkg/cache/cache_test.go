package cache

import (
	"context"
	"testing"
	"time"
)

func TestFileCacheRoundTrip(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing = %v, %v", ok, err)
	}
	if err := c.Set(ctx, "k", []byte("pages"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if string(data) != "pages" {
		t.Fatalf("data = %q", data)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("key survived delete")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestFileCacheTTL(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("x"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expired entry still served")
	}
}

func TestNullCacheNeverStores(t *testing.T) {
	c := NewNullCache()
	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("x"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("null cache returned a hit")
	}
}

func TestKeyerIsDeterministicAndDistinct(t *testing.T) {
	k := NewDefaultKeyer()
	keys := []string{
		k.BookKey("src"),
		k.LayoutKey("book", "cfg"),
		k.PageKey("layout", 0),
		k.PageKey("layout", 1),
		k.ContainerKey("layout", "vis"),
	}
	seen := map[string]bool{}
	for _, key := range keys {
		if seen[key] {
			t.Fatalf("duplicate key %q", key)
		}
		seen[key] = true
	}
	if k.BookKey("src") != keys[0] {
		t.Fatal("keyer is not deterministic")
	}
	if k.LayoutKey("book", "other") == keys[1] {
		t.Fatal("config change did not change layout key")
	}
}

func TestScopedKeyerPrefixes(t *testing.T) {
	inner := NewDefaultKeyer()
	scoped := NewScopedKeyer(inner, "session:abc:")
	got := scoped.PageKey("layout", 3)
	want := "session:abc:" + inner.PageKey("layout", 3)
	if got != want {
		t.Fatalf("scoped key = %q, want %q", got, want)
	}
}

func TestRetryWithBackoffStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return context.Canceled
	})
	if err == nil || calls != 1 {
		t.Fatalf("calls = %d, err = %v", calls, err)
	}
}

func TestHashIsStable(t *testing.T) {
	a := Hash([]byte("book"))
	b := Hash([]byte("book"))
	if a != b || len(a) != 64 {
		t.Fatalf("hash = %q / %q", a, b)
	}
}
