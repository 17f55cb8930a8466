package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ivoronin/kopy/internal/types"
)

func createFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanSequentialBasic(t *testing.T) {
	root := t.TempDir()

	createFile(t, filepath.Join(root, "file1.txt"), 100)
	createFile(t, filepath.Join(root, "file2.txt"), 200)
	if err := os.Mkdir(filepath.Join(root, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}
	createFile(t, filepath.Join(root, "subdir", "file3.txt"), 300)

	tree, err := ScanSequential(root, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if tree.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", tree.Len())
	}
	if tree.TotalSize() != 600 {
		t.Fatalf("expected total size 600, got %d", tree.TotalSize())
	}
	if _, ok := tree.Get("subdir/file3.txt"); !ok {
		t.Fatal("expected subdir/file3.txt to be present with forward-slash path")
	}
}

func TestScanSequentialSymlink(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "real.txt"), 10)
	if err := os.Symlink("real.txt", filepath.Join(root, "link.txt")); err != nil {
		t.Fatal(err)
	}
	// broken symlink must still be recorded
	if err := os.Symlink("missing.txt", filepath.Join(root, "broken.txt")); err != nil {
		t.Fatal(err)
	}

	tree, err := ScanSequential(root, Options{})
	if err != nil {
		t.Fatal(err)
	}

	link, ok := tree.Get("link.txt")
	if !ok {
		t.Fatal("expected link.txt to be present")
	}
	if !link.IsSymlink || link.SymlinkTarget != "real.txt" {
		t.Fatalf("expected symlink entry with target real.txt, got %+v", link)
	}
	if link.Size != 0 {
		t.Fatalf("expected symlink size 0, got %d", link.Size)
	}

	broken, ok := tree.Get("broken.txt")
	if !ok {
		t.Fatal("expected broken.txt to be recorded without dereferencing")
	}
	if !broken.IsSymlink || broken.SymlinkTarget != "missing.txt" {
		t.Fatalf("expected broken symlink entry, got %+v", broken)
	}
}

// TestScanParity verifies that sequential and parallel scans of the same
// root and filter produce trees with identical entries and counters.
func TestScanParity(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		dir := filepath.Join(root, "dir"+string(rune('a'+i%5)))
		_ = os.MkdirAll(dir, 0o755)
		createFile(t, filepath.Join(dir, "f"+string(rune('0'+i%10))+".txt"), i*7)
	}

	seq, err := ScanSequential(root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	par, err := ScanParallel(root, Options{Threads: 4})
	if err != nil {
		t.Fatal(err)
	}

	if seq.TotalFiles() != par.TotalFiles() {
		t.Fatalf("file count mismatch: seq=%d par=%d", seq.TotalFiles(), par.TotalFiles())
	}
	if seq.TotalSize() != par.TotalSize() {
		t.Fatalf("size mismatch: seq=%d par=%d", seq.TotalSize(), par.TotalSize())
	}
	for _, p := range seq.SortedPaths() {
		se, _ := seq.Get(p)
		pe, ok := par.Get(p)
		if !ok {
			t.Fatalf("parallel tree missing path %q present in sequential tree", p)
		}
		if se.Size != pe.Size || se.IsSymlink != pe.IsSymlink {
			t.Fatalf("entry mismatch for %q: seq=%+v par=%+v", p, se, pe)
		}
	}
	if len(seq.SortedPaths()) != len(par.SortedPaths()) {
		t.Fatalf("path count mismatch: seq=%d par=%d", len(seq.SortedPaths()), len(par.SortedPaths()))
	}
}

func TestScanMonotoneProgress(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		createFile(t, filepath.Join(root, "f"+string(rune('0'+i))+".txt"), 10)
	}

	var lastFiles, lastBytes int64
	violated := false
	_, err := ScanSequential(root, Options{Progress: func(scannedFiles, scannedBytes, matchedFiles, matchedBytes int64) {
		if scannedFiles < lastFiles || scannedBytes < lastBytes {
			violated = true
		}
		lastFiles = scannedFiles
		lastBytes = scannedBytes
	}})
	if err != nil {
		t.Fatal(err)
	}
	if violated {
		t.Fatal("progress counters decreased across calls")
	}
}

func TestResolveModeSmallTreeIsSequential(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "a.txt"), 1)

	if mode := ResolveMode(root); mode != types.ScanSequential {
		t.Fatalf("expected Sequential for a tiny tree, got %v", mode)
	}
}
