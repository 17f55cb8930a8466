// Package diff implements a cascading metadata/content comparison: given
// two file trees and a config, it produces a deterministic, ordered plan
// of sync actions.
//
// The comparison is two-tier, applied across paths shared between the two
// trees: Tier 1 (metadata: presence, size, mtime) decides most paths
// outright and only falls through to Tier 2 (content hash, via
// internal/hasher) for equal size and mtime when checksum mode is on;
// without checksum mode, equal size and mtime is a Skip.
package diff

import (
	"path/filepath"

	"github.com/ivoronin/kopy/internal/hashcache"
	"github.com/ivoronin/kopy/internal/hasher"
	"github.com/ivoronin/kopy/internal/types"
)

// GeneratePlan is a pure function of (src, dest, config): two calls with
// equal inputs return equal plans. Plan order is sorted by relative path
// with all copies/overwrites/skips/conflicts before any deletes.
//
// cache is optional (nil disables cross-run caching entirely): when
// present, Tier-2 comparisons consult it before hashing and store freshly
// computed digests back into it.
func GeneratePlan(src, dest *types.FileTree, cfg types.Config, cache *hashcache.Cache) []types.SyncAction {
	e := &engine{src: src, dest: dest, cfg: cfg, cache: cache}

	var forward []types.SyncAction
	for _, p := range src.SortedPaths() {
		srcEntry, _ := src.Get(p)
		forward = append(forward, e.compareOne(srcEntry))
	}

	var deletes []types.SyncAction
	if cfg.DeleteMode != types.DeleteNone {
		for _, p := range dest.SortedPaths() {
			if _, ok := src.Get(p); !ok {
				deletes = append(deletes, types.Delete(p))
			}
		}
	}

	plan := make([]types.SyncAction, 0, len(forward)+len(deletes))
	plan = append(plan, forward...)
	plan = append(plan, deletes...)

	if allSkip(plan) {
		return nil
	}
	return plan
}

// allSkip reports whether every action in plan is a Skip — the case where
// the two trees already agree everywhere. An empty plan trivially
// satisfies this.
func allSkip(plan []types.SyncAction) bool {
	for _, a := range plan {
		if a.Kind != types.ActionSkip {
			return false
		}
	}
	return true
}

// engine carries the two trees' roots through the comparison cascade so
// Tier-2 hashing can resolve an entry's absolute path without the entry
// itself needing to know which tree it came from.
type engine struct {
	src, dest *types.FileTree
	cfg       types.Config
	cache     *hashcache.Cache
}

// compareOne applies the Tier-1/Tier-2 cascade to a single source entry
// against whatever (if anything) exists at the same path in dest.
func (e *engine) compareOne(srcEntry *types.FileEntry) types.SyncAction {
	destEntry, exists := e.dest.Get(srcEntry.Path)
	if !exists {
		return types.CopyNew(srcEntry)
	}

	if mismatch := typeMismatch(srcEntry, destEntry); mismatch != "" {
		return types.Conflict(srcEntry.Path, srcEntry.ModTime, destEntry.ModTime, mismatch)
	}

	if srcEntry.IsSymlink {
		if srcEntry.SymlinkTarget == destEntry.SymlinkTarget {
			return types.Skip(srcEntry.Path)
		}
		return types.Overwrite(srcEntry)
	}

	// Tier 1: metadata.
	if srcEntry.Size != destEntry.Size {
		return types.Overwrite(srcEntry)
	}
	if srcEntry.ModTime.After(destEntry.ModTime) {
		return types.Overwrite(srcEntry)
	}
	if srcEntry.ModTime.Before(destEntry.ModTime) {
		// Destination is newer than source: a conflict for the configured
		// strategy to resolve. The non-interactive default, Skip, resolves
		// straight to a Skip action rather than surfacing a Conflict that
		// nothing downstream consults; only Prompt needs the Conflict action
		// itself, for an interactive front end (or resolveConflicts) to act
		// on.
		switch e.cfg.ConflictStrategy {
		case types.ConflictSkip:
			return types.SkipConflict(srcEntry.Path, "destination newer than source")
		case types.ConflictPrompt:
			return types.Conflict(srcEntry.Path, srcEntry.ModTime, destEntry.ModTime, "destination newer than source")
		default:
			return e.resolveNonPromptConflict(srcEntry, destEntry)
		}
	}

	// Equal size and mtime: Tier 2 only if checksum mode is on — never
	// trigger Tier-2 without --checksum.
	if !e.cfg.ChecksumMode {
		return types.Skip(srcEntry.Path)
	}
	return e.compareByHash(srcEntry, destEntry)
}

// resolveNonPromptConflict applies a non-interactive, non-skip, non-prompt
// conflict strategy directly during plan generation: each one resolves to
// its own distinct action kind so the executor can dispatch on Kind alone
// rather than re-deriving the strategy from a Conflict action's reason
// string.
func (e *engine) resolveNonPromptConflict(srcEntry, destEntry *types.FileEntry) types.SyncAction {
	switch e.cfg.ConflictStrategy {
	case types.ConflictOverwrite:
		return types.Overwrite(srcEntry)
	case types.ConflictBackup:
		return types.Backup(srcEntry)
	case types.ConflictAbort:
		return types.Abort(srcEntry.Path, srcEntry.ModTime, destEntry.ModTime, "destination newer than source (abort requested)")
	default:
		return types.Skip(srcEntry.Path)
	}
}

// typeMismatch reports a non-empty reason iff src and dest disagree on
// being a symlink vs. a regular file at the same path. Both trees only
// ever record files/symlinks, never directories, as entries, so only
// file-vs-symlink is detected here: a path that is a file in one tree and
// a directory in the other is not reported as a type mismatch.
func typeMismatch(srcEntry, destEntry *types.FileEntry) string {
	if srcEntry.IsSymlink != destEntry.IsSymlink {
		return "type mismatch"
	}
	return ""
}

// compareByHash performs the Tier-2 comparison, computing and caching each
// entry's digest lazily.
func (e *engine) compareByHash(srcEntry, destEntry *types.FileEntry) types.SyncAction {
	srcHash, err := e.entryHash(e.src, srcEntry)
	if err != nil {
		// Unreadable source surfaces as an Overwrite attempt; the executor
		// will raise the concrete I/O error when it tries to open the file.
		return types.Overwrite(srcEntry)
	}
	destHash, err := e.entryHash(e.dest, destEntry)
	if err != nil {
		return types.Overwrite(srcEntry)
	}
	if srcHash == destHash {
		return types.Skip(srcEntry.Path)
	}
	return types.Overwrite(srcEntry)
}

func (e *engine) entryHash(tree *types.FileTree, entry *types.FileEntry) ([32]byte, error) {
	if h, ok := entry.Hash(); ok {
		return h, nil
	}

	cacheKey := hashcache.Key{
		Path: filepath.Join(tree.RootPath, entry.Path), Size: entry.Size,
		ModTime: entry.ModTime, Start: 0, RangeSz: entry.Size,
	}
	if e.cache != nil {
		if h, ok := e.cache.Lookup(cacheKey); ok {
			entry.SetHash(h)
			return h, nil
		}
	}

	h, err := hasher.Sum(filepath.Join(tree.RootPath, entry.Path))
	if err != nil {
		return [32]byte{}, err
	}
	entry.SetHash(h)
	if e.cache != nil {
		_ = e.cache.Store(cacheKey, h)
	}
	return h, nil
}
