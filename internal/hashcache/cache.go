// Package hashcache provides a persistent, cross-run content-hash cache
// backed by BoltDB, sparing the diff engine's Tier-2 comparison a rehash of
// unchanged files between syncs.
//
// The cache uses a self-cleaning two-database design: a read-only
// snapshot of the prior run plus a fresh write database, atomically
// swapped into place on Close, keyed on a binary-encoded composite key.
// The key is (path, size, mtime, range) rather than (path, size, inode,
// mtime, range) — inode makes sense when comparing files within one
// filesystem looking for hardlink candidates, but kopy compares a source
// and a destination tree that are typically on two different filesystems
// where inode numbers carry no meaning across the pair.
package hashcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketName = "hashes"
	hashSize   = 32
	keyVersion = byte(1)
)

// Cache persists content digests across runs. A Cache with an empty path
// is a no-op (Lookup always misses, Store is dropped) — the "disabled
// cache" mode for when no --cache-file is configured.
type Cache struct {
	readDB  *bolt.DB
	writeDB *bolt.DB
	path    string
	enabled bool
}

// Open opens path's existing database read-only (if present) and creates a
// fresh "<path>.new" write database. BoltDB's file lock on the .new file
// prevents two concurrent kopy runs from sharing a cache.
func Open(path string) (*Cache, error) {
	if path == "" {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("hashcache: create directory: %w", err)
	}

	c := &Cache{path: path, enabled: true}

	if _, err := os.Stat(path); err == nil {
		readDB, openErr := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
		if openErr == nil {
			c.readDB = readDB
		}
	}

	writeDB, err := bolt.Open(path+".new", 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("hashcache: open write database (locked by another run?): %w", err)
	}
	c.writeDB = writeDB

	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("hashcache: create bucket: %w", err)
	}

	return c, nil
}

// Close closes both databases and, if the write database closed cleanly,
// atomically swaps it over the prior cache file via rename.
func (c *Cache) Close() error {
	var firstErr error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.writeDB != nil {
		if err := c.writeDB.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if err := os.Rename(c.path+".new", c.path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Key identifies the file state a cached digest is valid for: any change to
// path, size, or mtime invalidates the entry.
type Key struct {
	Path    string
	Size    int64
	ModTime time.Time
	Start   int64
	RangeSz int64
}

// makeKey builds the deterministic binary lookup key: ver(1) + path + NUL +
// size(8) + mtime(8) + start(8) + rangeSize(8).
func makeKey(k Key) []byte {
	var buf bytes.Buffer
	buf.WriteByte(keyVersion)
	buf.WriteString(k.Path)
	buf.WriteByte(0)
	_ = binary.Write(&buf, binary.BigEndian, k.Size)
	_ = binary.Write(&buf, binary.BigEndian, k.ModTime.UnixNano())
	_ = binary.Write(&buf, binary.BigEndian, k.Start)
	_ = binary.Write(&buf, binary.BigEndian, k.RangeSz)
	return buf.Bytes()
}

// Lookup returns the cached digest for k, if present. A hit is copied
// forward into the write database (self-cleaning: entries untouched this
// run do not survive to the next).
func (c *Cache) Lookup(k Key) ([32]byte, bool) {
	var digest [32]byte
	if !c.enabled || c.readDB == nil {
		return digest, false
	}

	key := makeKey(k)
	var found bool

	_ = c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		data := b.Get(key)
		if len(data) == hashSize {
			copy(digest[:], data)
			found = true
		}
		return nil
	})

	if found {
		_ = c.Store(k, digest)
	}
	return digest, found
}

// Store saves digest for k into the write database.
func (c *Cache) Store(k Key, digest [32]byte) error {
	if !c.enabled || c.writeDB == nil {
		return nil
	}
	return c.writeDB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put(makeKey(k), digest[:])
	})
}
