// Package trash implements the inverse operations of the executor's
// trash-based delete: listing snapshots, restoring a snapshot or a single
// file from one, and permanently cleaning old snapshots.
//
// It shares the executor's MANIFEST.json shape and follows a one-function-
// per-verb style, returning errors rather than calling os.Exit, so
// cmd/kopy can decide the exit code.
package trash

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	kopyerrors "github.com/ivoronin/kopy/internal/errors"
	"github.com/ivoronin/kopy/internal/executor"
)

// trashDirName mirrors executor's unexported constant; kept in sync by
// convention since both packages describe the same on-disk layout.
const trashDirName = ".kopy_trash"

// Snapshot describes one listed trash snapshot directory.
type Snapshot struct {
	Name      string // e.g. "2026-07-30_143000_1a2b3c4d" (timestamp + short UUID)
	Path      string // absolute path to the snapshot directory
	CreatedAt time.Time
	Entries   int
}

// List enumerates every snapshot directory under root's trash, newest
// first.
func List(root string) ([]Snapshot, error) {
	trashRoot := filepath.Join(root, trashDirName)
	dirEntries, err := os.ReadDir(trashRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("trash: listing %s: %w", trashRoot, err)
	}

	var snapshots []Snapshot
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		snapDir := filepath.Join(trashRoot, de.Name())
		manifest, err := readManifest(snapDir)
		if err != nil {
			continue // skip corrupt/partial snapshots rather than fail the whole listing
		}
		snapshots = append(snapshots, Snapshot{
			Name:      de.Name(),
			Path:      snapDir,
			CreatedAt: manifest.DeletedAt,
			Entries:   len(manifest.Entries),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Name > snapshots[j].Name })
	return snapshots, nil
}

func readManifest(snapDir string) (*executor.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(snapDir, "MANIFEST.json"))
	if err != nil {
		return nil, err
	}
	var m executor.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Restore replays a snapshot's (or, if target names a single original
// relative path within it, one entry's) manifest entries: each trashed file
// is renamed back to its original location under root, recreating parent
// directories as needed. target may be a bare snapshot name (restore
// everything) or "<snapshot>/<relative path>" (restore one file).
func Restore(root, target string) (restored int, err error) {
	snapshotName, onlyPath := splitTarget(target)
	snapDir := filepath.Join(root, trashDirName, snapshotName)

	manifest, err := readManifest(snapDir)
	if err != nil {
		return 0, fmt.Errorf("trash: reading manifest for %s: %w", snapshotName, err)
	}

	for _, entry := range manifest.Entries {
		if onlyPath != "" && entry.OriginalPath != onlyPath {
			continue
		}

		src := filepath.Join(snapDir, entry.TrashPath)
		dst := filepath.Join(root, entry.OriginalPath)

		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return restored, fmt.Errorf("trash: restoring %s: %w", entry.OriginalPath, err)
		}
		if err := os.Rename(src, dst); err != nil {
			return restored, fmt.Errorf("trash: restoring %s: %w", entry.OriginalPath, err)
		}
		restored++
	}

	if onlyPath != "" && restored == 0 {
		return 0, &kopyerrors.NotFound{Path: onlyPath}
	}
	return restored, nil
}

func splitTarget(target string) (snapshot, path string) {
	parts := strings.SplitN(target, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// Clean permanently removes snapshot directories under root. If all is
// true, every snapshot is removed regardless of age; otherwise only
// snapshots older than olderThan (measured from the snapshot's
// DeletedAt) are removed.
func Clean(root string, olderThan time.Duration, all bool, now time.Time) (removed int, err error) {
	snapshots, err := List(root)
	if err != nil {
		return 0, err
	}

	for _, s := range snapshots {
		if !all && now.Sub(s.CreatedAt) < olderThan {
			continue
		}
		if err := os.RemoveAll(s.Path); err != nil {
			return removed, fmt.Errorf("trash: removing snapshot %s: %w", s.Name, err)
		}
		removed++
	}
	return removed, nil
}
