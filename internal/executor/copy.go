// Package executor runs a sync plan against the filesystem: atomic copy
// via staged temporary files, trash-based delete with a recoverable
// manifest, permanent delete, and sequential/size-routed-parallel
// dispatch.
//
// The sequential path (ExecuteSequential) is a single-goroutine, I/O-bound
// loop applying actions in plan order, with atomic replace via rename;
// the parallel variant (ExecuteParallel) uses a worker-pool shape for
// size-routed dispatch. Progress is reported as events, not drawn here.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	kopyerrors "github.com/ivoronin/kopy/internal/errors"
	"github.com/ivoronin/kopy/internal/hasher"
	"github.com/ivoronin/kopy/internal/types"
	"golang.org/x/time/rate"
)

// chunkSize bounds each read/write of a staged copy, streamed in
// fixed-size chunks.
const chunkSize = 64 * 1024

// partSuffix marks a staged file mid-copy, renamed over the final path only
// once fully written and fsynced.
const partSuffix = ".part"

// copyFile streams src onto a staged "<dest>.part" sibling of dest, then
// renames it into place. The source is read from srcRoot/entry.Path and
// the result lands at destRoot/entry.Path.
func copyFile(srcRoot, destRoot string, entry *types.FileEntry, limiter *rate.Limiter, onProgress func(done, total int64)) error {
	srcPath := filepath.Join(srcRoot, entry.Path)
	destPath := filepath.Join(destRoot, entry.Path)
	partPath := destPath + partSuffix

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return wrapIOErr(kopyerrors.IoKindMkdir, destPath, "creating parent directory", err)
	}

	in, err := os.Open(srcPath)
	if err != nil {
		return classifyOpenErr(srcPath, err)
	}
	defer func() { _ = in.Close() }()

	out, err := openStagedFile(partPath)
	if err != nil {
		return wrapIOErr(kopyerrors.IoKindOpen, partPath, "staging copy", err)
	}

	written, copyErr := streamCopy(out, in, entry.Size, limiter, onProgress)
	if copyErr == nil {
		copyErr = out.Sync()
	}
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(partPath)
		return copyErr
	}

	if written != entry.Size {
		_ = os.Remove(partPath)
		return &kopyerrors.TransferInterrupted{Path: entry.Path, Offset: written}
	}

	if err := os.Rename(partPath, destPath); err != nil {
		return wrapIOErr(kopyerrors.IoKindRename, destPath, "committing copy", err)
	}

	mode := os.FileMode(entry.Mode & 0o7777)
	if mode != 0 {
		_ = os.Chmod(destPath, mode)
	}
	_ = os.Chtimes(destPath, entry.ModTime, entry.ModTime)

	return nil
}

// openStagedFile creates the staged file exclusively, falling back to
// truncate if a stale part already exists: any leftover .part at that path,
// whether from this run or an earlier aborted one, is overwritten rather
// than treated as a conflict.
func openStagedFile(partPath string) (*os.File, error) {
	f, err := os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, err
	}
	return os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

// streamCopy copies src into dst in chunkSize pieces, optionally throttled
// by limiter, invoking onProgress after each chunk.
func streamCopy(dst io.Writer, src io.Reader, total int64, limiter *rate.Limiter, onProgress func(done, total int64)) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if limiter != nil {
				// WaitN rejects requests larger than the burst, so a chunk
				// bigger than the limiter's burst is paid for in pieces.
				for remaining := n; remaining > 0; {
					step := remaining
					if b := limiter.Burst(); step > b {
						step = b
					}
					if err := limiter.WaitN(context.Background(), step); err != nil {
						return written, err
					}
					remaining -= step
				}
			}
			wn, writeErr := dst.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, classifyWriteErr(writeErr)
			}
			if onProgress != nil {
				onProgress(written, total)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, wrapIOErr(kopyerrors.IoKindRead, "", "reading source", readErr)
		}
	}
}

// backupSuffix marks the destination's prior content after a Backup
// conflict resolution moves it aside before the new content is copied in.
const backupSuffix = ".bak"

// backupExisting moves destRoot/relPath to a ".bak" sibling, falling back
// to a timestamped name if a ".bak" from an earlier backup is already
// there.
func backupExisting(destRoot, relPath string, now time.Time) error {
	destPath := filepath.Join(destRoot, relPath)
	backupPath := destPath + backupSuffix
	if _, err := os.Stat(backupPath); err == nil {
		backupPath = fmt.Sprintf("%s.%s%s", destPath, now.Format("20060102_150405"), backupSuffix)
	}
	if err := os.Rename(destPath, backupPath); err != nil {
		return wrapIOErr(kopyerrors.IoKindRename, destPath, "backing up conflicting destination", err)
	}
	return nil
}

// copySymlink replaces any existing destination entry with a fresh symlink
// pointing at entry.SymlinkTarget: remove any existing destination entry
// at that path, then create a symlink. No staging, no hashing.
func copySymlink(destRoot string, entry *types.FileEntry) error {
	destPath := filepath.Join(destRoot, entry.Path)

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return wrapIOErr(kopyerrors.IoKindMkdir, destPath, "creating parent directory", err)
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return wrapIOErr(kopyerrors.IoKindWrite, destPath, "removing existing entry", err)
	}
	if err := os.Symlink(entry.SymlinkTarget, destPath); err != nil {
		return wrapIOErr(kopyerrors.IoKindWrite, destPath, "creating symlink", err)
	}
	return nil
}

// verifyCopy performs the optional post-copy content check, returning
// ChecksumMismatch if the destination's digest disagrees with the cached or
// freshly computed source digest.
func verifyCopy(srcRoot, destRoot string, entry *types.FileEntry) error {
	srcHash, ok := entry.Hash()
	if !ok {
		h, err := hasher.Sum(filepath.Join(srcRoot, entry.Path))
		if err != nil {
			return wrapIOErr(kopyerrors.IoKindRead, entry.Path, "post-copy verification", err)
		}
		srcHash = h
	}
	destHash, err := hasher.Sum(filepath.Join(destRoot, entry.Path))
	if err != nil {
		return wrapIOErr(kopyerrors.IoKindRead, entry.Path, "post-copy verification", err)
	}
	if srcHash != destHash {
		return &kopyerrors.ChecksumMismatch{Path: entry.Path}
	}
	return nil
}

func classifyOpenErr(path string, err error) error {
	if os.IsPermission(err) {
		return &kopyerrors.PermissionDenied{Path: path, Err: err}
	}
	if os.IsNotExist(err) {
		return &kopyerrors.NotFound{Path: path, Err: err}
	}
	return wrapIOErr(kopyerrors.IoKindOpen, path, "opening source", err)
}

func classifyWriteErr(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return &kopyerrors.DiskFull{Path: "", Available: -1, Needed: -1, Err: err}
	}
	if os.IsPermission(err) {
		return &kopyerrors.PermissionDenied{Path: "", Err: err}
	}
	return wrapIOErr(kopyerrors.IoKindWrite, "", "writing staged copy", err)
}

func wrapIOErr(kind kopyerrors.IoKind, path, ctxMsg string, err error) error {
	return &kopyerrors.Io{Kind: kind, Path: path, Context: ctxMsg, Err: err}
}
