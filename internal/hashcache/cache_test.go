package hashcache

import (
	"path/filepath"
	"testing"
	"time"
)

func TestCacheDisabled(t *testing.T) {
	c, err := Open("")
	if err != nil {
		t.Fatalf("Open(\"\") failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	k := Key{Path: "/test/file", Size: 100, ModTime: time.Now()}
	if err := c.Store(k, [32]byte{1, 2, 3}); err != nil {
		t.Fatalf("Store on disabled cache returned error: %v", err)
	}
	if _, ok := c.Lookup(k); ok {
		t.Fatal("Lookup on disabled cache should always miss")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c1, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	k := Key{Path: "file.txt", Size: 1024, ModTime: time.Unix(1700000000, 0)}
	digest := [32]byte{9, 9, 9}
	if err := c1.Store(k, digest); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := c1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	c2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = c2.Close() }()

	got, ok := c2.Lookup(k)
	if !ok {
		t.Fatal("expected cache hit after reopen")
	}
	if got != digest {
		t.Fatalf("digest mismatch: got %v want %v", got, digest)
	}
}

func TestCacheMissOnMtimeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c1, _ := Open(path)
	k := Key{Path: "file.txt", Size: 1024, ModTime: time.Unix(1700000000, 0)}
	_ = c1.Store(k, [32]byte{5})
	_ = c1.Close()

	c2, _ := Open(path)
	defer func() { _ = c2.Close() }()

	changed := k
	changed.ModTime = k.ModTime.Add(time.Second)
	if _, ok := c2.Lookup(changed); ok {
		t.Fatal("expected miss after mtime change")
	}
}

func TestCacheMissOnSizeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c1, _ := Open(path)
	k := Key{Path: "file.txt", Size: 1024, ModTime: time.Unix(1700000000, 0)}
	_ = c1.Store(k, [32]byte{5})
	_ = c1.Close()

	c2, _ := Open(path)
	defer func() { _ = c2.Close() }()

	changed := k
	changed.Size = 2048
	if _, ok := c2.Lookup(changed); ok {
		t.Fatal("expected miss after size change")
	}
}

func TestSelfCleaning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c1, _ := Open(path)
	ka := Key{Path: "a.txt", Size: 100, ModTime: time.Unix(1700000000, 0)}
	kb := Key{Path: "b.txt", Size: 200, ModTime: time.Unix(1700000000, 0)}
	_ = c1.Store(ka, [32]byte{1})
	_ = c1.Store(kb, [32]byte{2})
	_ = c1.Close()

	c2, _ := Open(path)
	c2.Lookup(ka) // only ka is touched this run
	_ = c2.Close()

	c3, _ := Open(path)
	defer func() { _ = c3.Close() }()

	if _, ok := c3.Lookup(ka); !ok {
		t.Fatal("ka should have survived self-cleaning")
	}
	if _, ok := c3.Lookup(kb); ok {
		t.Fatal("kb should have been cleaned (not looked up in run 2)")
	}
}

func TestMakeKeyDeterministic(t *testing.T) {
	k := Key{Path: "file.txt", Size: 1024, ModTime: time.Unix(1700000000, 123456789)}
	if string(makeKey(k)) != string(makeKey(k)) {
		t.Fatal("makeKey is not deterministic")
	}
}
