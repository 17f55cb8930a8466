package executor

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	kopyerrors "github.com/ivoronin/kopy/internal/errors"
)

// manifestName is the per-snapshot record of what was trashed and why,
// stored alongside the trashed files.
const manifestName = "MANIFEST.json"

// trashDirName is the well-known subdirectory under a destination root that
// holds every snapshot from every run.
const trashDirName = ".kopy_trash"

// ManifestEntry is one trashed file's record within a snapshot's manifest.
type ManifestEntry struct {
	OriginalPath string    `json:"original_path"`
	TrashPath    string    `json:"trash_path"`
	Size         int64     `json:"size"`
	Reason       string    `json:"reason"`
	DeletedAt    time.Time `json:"deleted_at"`
}

// Manifest is the JSON document written as "<snapshot>/MANIFEST.json":
// {"deleted_at": ISO-8601, "entries": [...]}.
type Manifest struct {
	DeletedAt time.Time       `json:"deleted_at"`
	Entries   []ManifestEntry `json:"entries"`
}

// trashSnapshot coordinates a single run's trash directory: lazy creation,
// with concurrent deleters creating the same timestamped snapshot
// converging on the first creator, and a serialized manifest append
// guarded by an in-process lock.
type trashSnapshot struct {
	destRoot string
	timeFn   func() time.Time

	once sync.Once
	dir  string
	err  error

	mu       sync.Mutex
	manifest Manifest
}

func newTrashSnapshot(destRoot string, timeFn func() time.Time) *trashSnapshot {
	if timeFn == nil {
		timeFn = time.Now
	}
	return &trashSnapshot{destRoot: destRoot, timeFn: timeFn}
}

// dirPath lazily creates the snapshot directory on first use, all
// subsequent callers within the same run converge on the same directory. The
// timestamp is suffixed with a short UUID so two runs started within the
// same second never collide on the same snapshot directory.
func (s *trashSnapshot) dirPath() (string, error) {
	s.once.Do(func() {
		ts := s.timeFn().Format("2006-01-02_150405")
		name := ts + "_" + uuid.New().String()[:8]
		dir := filepath.Join(s.destRoot, trashDirName, name)
		s.err = os.MkdirAll(dir, 0o755)
		s.dir = dir
		s.manifest.DeletedAt = s.timeFn()
	})
	return s.dir, s.err
}

// trash moves destRoot/relPath into the run's snapshot directory,
// preserving its relative layout, falling back to copy+unlink on EXDEV, and
// appends a manifest entry.
func (s *trashSnapshot) trash(relPath string, size int64, reason string) error {
	dir, err := s.dirPath()
	if err != nil {
		return wrapIOErr(kopyerrors.IoKindMkdir, dir, "creating trash snapshot", err)
	}

	srcPath := filepath.Join(s.destRoot, relPath)
	trashRelPath := relPath
	trashAbsPath := filepath.Join(dir, trashRelPath)

	if err := os.MkdirAll(filepath.Dir(trashAbsPath), 0o755); err != nil {
		return wrapIOErr(kopyerrors.IoKindMkdir, trashAbsPath, "creating trash parents", err)
	}

	if err := os.Rename(srcPath, trashAbsPath); err != nil {
		if !isCrossDevice(err) {
			return wrapIOErr(kopyerrors.IoKindRename, srcPath, "moving to trash", err)
		}
		if err := copyThenUnlink(srcPath, trashAbsPath); err != nil {
			return err
		}
	}

	return s.appendManifest(ManifestEntry{
		OriginalPath: relPath,
		TrashPath:    trashRelPath,
		Size:         size,
		Reason:       reason,
		DeletedAt:    s.timeFn(),
	})
}

// appendManifest serializes concurrent writers via mu and commits the
// updated manifest atomically: write "MANIFEST.json.tmp" then rename over.
func (s *trashSnapshot) appendManifest(entry ManifestEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.manifest.Entries = append(s.manifest.Entries, entry)

	data, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return err
	}

	manifestPath := filepath.Join(s.dir, manifestName)
	tmpPath := manifestPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return wrapIOErr(kopyerrors.IoKindWrite, tmpPath, "writing trash manifest", err)
	}
	if err := os.Rename(tmpPath, manifestPath); err != nil {
		return wrapIOErr(kopyerrors.IoKindRename, manifestPath, "committing trash manifest", err)
	}
	return nil
}

// deletePermanent unlinks destRoot/relPath directly. If the entry is
// already gone, that's success, not an error.
func deletePermanent(destRoot, relPath string) error {
	path := filepath.Join(destRoot, relPath)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		if os.IsPermission(err) {
			return &kopyerrors.PermissionDenied{Path: path, Err: err}
		}
		return wrapIOErr(kopyerrors.IoKindWrite, path, "permanent delete", err)
	}
	return nil
}

// copyThenUnlink is the EXDEV fallback for trash moves across filesystem
// boundaries. The staged-copy commit does not use it, since that rename
// targets a sibling file on the same filesystem.
func copyThenUnlink(srcPath, dstPath string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return wrapIOErr(kopyerrors.IoKindOpen, srcPath, "cross-device trash copy", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return wrapIOErr(kopyerrors.IoKindOpen, dstPath, "cross-device trash copy", err)
	}

	if _, err := streamCopy(out, in, -1, nil, nil); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return wrapIOErr(kopyerrors.IoKindWrite, dstPath, "cross-device trash copy", err)
	}
	if err := os.Remove(srcPath); err != nil {
		return wrapIOErr(kopyerrors.IoKindWrite, srcPath, "unlinking after cross-device move", err)
	}
	return nil
}

// isCrossDevice reports whether a rename failed because source and
// destination live on different filesystems (EXDEV), the case the trash
// move falls back to copy+unlink for.
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return errors.Is(err, syscall.EXDEV)
}
