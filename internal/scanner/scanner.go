// Package scanner implements parallel and sequential directory discovery:
// both modes walk a root tree, apply a filter, and produce a compact
// types.FileTree with live progress.
//
// # Concurrency model (parallel mode)
//
// The parallel scanner uses a fan-out/fan-in design: one walker goroutine
// per directory, bounded by a counting semaphore (the semaphore type in
// parallel.go),
// funneling FileEntry values into a single collector, with two additional
// properties:
//
//  1. Symlinks are recorded as entries (with IsSymlink/SymlinkTarget set),
//     not skipped — content-only walkers that care about regular files
//     alone would skip them, but a directory sync must mirror them too.
//  2. A bounded-memory direct-insertion fallback: once the collector
//     estimates it is holding more than directInsertThreshold bytes of
//     buffered entries, workers stop sending to the collector channel and
//     insert straight into the shared FileTree instead (protected by the
//     tree's own per-insert lock), trading a little lock contention for a
//     hard memory ceiling.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ivoronin/kopy/internal/filter"
	"github.com/ivoronin/kopy/internal/types"
)

// ProgressFunc receives monotonically non-decreasing scan counters.
// Delivery is serialized by the scanner and always monotonic.
type ProgressFunc func(scannedFiles, scannedBytes, matchedFiles, matchedBytes int64)

// WarnFunc receives a non-fatal warning (permission denied, skipped special
// file, etc.).
type WarnFunc func(path string, err error)

// coalesceInterval bounds how often ProgressFunc is invoked: updates
// coalesce within ~100 ms.
const coalesceInterval = 100 * time.Millisecond

// directInsertThreshold is the buffered-entry memory estimate past which
// the parallel scanner switches to direct tree insertion.
const directInsertThreshold = 64 * 1 << 20

// estimatedEntrySize approximates the in-memory footprint of one buffered
// FileEntry (struct overhead + average path length), used only to decide
// when to flip to direct insertion.
const estimatedEntrySize = 256

// stats holds the atomic counters shared across scanner goroutines.
type stats struct {
	scannedFiles atomic.Int64
	scannedBytes atomic.Int64
	matchedFiles atomic.Int64
	matchedBytes atomic.Int64
}

// progressCoalescer serializes and throttles ProgressFunc invocations.
type progressCoalescer struct {
	mu       sync.Mutex
	fn       ProgressFunc
	last     time.Time
	interval time.Duration
}

func newCoalescer(fn ProgressFunc) *progressCoalescer {
	return &progressCoalescer{fn: fn, interval: coalesceInterval}
}

func (c *progressCoalescer) maybeEmit(s *stats, force bool) {
	if c.fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !force && time.Since(c.last) < c.interval {
		return
	}
	c.last = time.Now()
	c.fn(s.scannedFiles.Load(), s.scannedBytes.Load(), s.matchedFiles.Load(), s.matchedBytes.Load())
}

// Options configures a scan.
type Options struct {
	Filter   *filter.Filter
	Threads  int // only meaningful for ScanParallel
	Progress ProgressFunc
	Warn     WarnFunc
}

// Scan runs either ScanSequential or ScanParallel depending on mode,
// resolving types.ScanAuto via ResolveMode first.
func Scan(root string, mode types.ScanMode, opts Options) (*types.FileTree, error) {
	resolved := mode
	if resolved == types.ScanAuto {
		resolved = ResolveMode(root)
	}
	if resolved == types.ScanParallel {
		return ScanParallel(root, opts)
	}
	return ScanSequential(root, opts)
}

// classifyResult is the outcome of inspecting one directory entry.
type classifyResult struct {
	entry      *types.FileEntry // non-nil iff the entry was kept
	isDir      bool
	recurseRel string // non-empty iff isDir and not filtered out
	seenSize   int64  // size counted toward "scanned", even if filtered out
	sawFile    bool   // true iff this was a file/symlink candidate (not a dir, not skipped pre-stat)
}

// classifyEntry stats and filters one directory entry. It distinguishes
// "scanned" (every file/symlink candidate touched) from "matched" (the
// subset the filter keeps) for the scan progress counters.
func classifyEntry(root, relDir string, d fs.DirEntry, f *filter.Filter, warn WarnFunc) classifyResult {
	name := d.Name()
	relPath := joinRel(relDir, name)
	fullPath := filepath.Join(root, relPath)

	if d.IsDir() {
		if f != nil && !f.Keep(relPath, true) {
			return classifyResult{isDir: true}
		}
		return classifyResult{isDir: true, recurseRel: relPath}
	}

	if d.Type()&os.ModeSymlink != 0 {
		target, err := os.Readlink(fullPath)
		if err != nil {
			warnIfSet(warn, fullPath, err)
			return classifyResult{}
		}
		info, err := os.Lstat(fullPath)
		if err != nil {
			warnIfSet(warn, fullPath, err)
			return classifyResult{}
		}
		if f != nil && !f.Keep(relPath, false) {
			return classifyResult{sawFile: true}
		}
		entry, err := newFileEntry(relPath, info, true, target)
		if err != nil {
			warnIfSet(warn, fullPath, err)
			return classifyResult{sawFile: true}
		}
		return classifyResult{entry: entry, sawFile: true}
	}

	info, err := d.Info()
	if err != nil {
		warnIfSet(warn, fullPath, err)
		return classifyResult{}
	}

	if isSkippableSpecialFile(info) {
		warnIfSet(warn, fullPath, errUnsupportedFileType)
		return classifyResult{}
	}

	if !info.Mode().IsRegular() {
		return classifyResult{}
	}

	if f != nil && !f.Keep(relPath, false) {
		return classifyResult{sawFile: true, seenSize: info.Size()}
	}

	entry, err := newFileEntry(relPath, info, false, "")
	if err != nil {
		warnIfSet(warn, fullPath, err)
		return classifyResult{sawFile: true, seenSize: info.Size()}
	}
	return classifyResult{entry: entry, sawFile: true, seenSize: info.Size()}
}

func warnIfSet(warn WarnFunc, path string, err error) {
	if warn != nil {
		warn(path, err)
	}
}

var errUnsupportedFileType = errUnsupported("unsupported file type (pipe, socket, or device)")

type errUnsupported string

func (e errUnsupported) Error() string { return string(e) }
