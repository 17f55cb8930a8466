package executor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ivoronin/kopy/internal/diff"
	"github.com/ivoronin/kopy/internal/scanner"
	"github.com/ivoronin/kopy/internal/types"
)

func scanTree(t *testing.T, root string) *types.FileTree {
	t.Helper()
	tree, err := scanner.ScanSequential(root, scanner.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Empty destination: copy everything, bytes match.
func TestExecuteEmptyDestCopiesAll(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()
	writeTestFile(t, srcRoot, "a.txt", "hi")
	writeTestFile(t, srcRoot, "dir/b.txt", "yo")

	src := scanTree(t, srcRoot)
	dest := scanTree(t, destRoot)
	plan := diff.GeneratePlan(src, dest, types.Config{}, nil)

	summary := Execute(plan, srcRoot, destRoot, Options{Threads: 1})

	if summary.Copied != 2 || len(summary.Errors) != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	gotA, err := os.ReadFile(filepath.Join(destRoot, "a.txt"))
	if err != nil || string(gotA) != "hi" {
		t.Fatalf("a.txt not copied correctly: %v %q", err, gotA)
	}
	gotB, err := os.ReadFile(filepath.Join(destRoot, "dir/b.txt"))
	if err != nil || string(gotB) != "yo" {
		t.Fatalf("dir/b.txt not copied correctly: %v %q", err, gotB)
	}
	if _, err := os.Stat(filepath.Join(destRoot, "a.txt.part")); !os.IsNotExist(err) {
		t.Fatal("expected no leftover .part file")
	}
}

// Scenario 2: overwrite on size change leaves no .part file behind.
func TestExecuteOverwriteOnSizeChange(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()
	mtime := time.Now().Add(-time.Hour)
	writeTestFile(t, srcRoot, "a.txt", "helloo")
	writeTestFile(t, destRoot, "a.txt", "hello")
	_ = os.Chtimes(filepath.Join(srcRoot, "a.txt"), mtime, mtime)
	_ = os.Chtimes(filepath.Join(destRoot, "a.txt"), mtime, mtime)

	src := scanTree(t, srcRoot)
	dest := scanTree(t, destRoot)
	plan := diff.GeneratePlan(src, dest, types.Config{}, nil)

	summary := Execute(plan, srcRoot, destRoot, Options{Threads: 1})
	if summary.Overwritten != 1 {
		t.Fatalf("expected 1 overwrite, got %+v", summary)
	}

	got, err := os.ReadFile(filepath.Join(destRoot, "a.txt"))
	if err != nil || string(got) != "helloo" {
		t.Fatalf("a.txt not overwritten correctly: %v %q", err, got)
	}
	if _, err := os.Stat(filepath.Join(destRoot, "a.txt.part")); !os.IsNotExist(err) {
		t.Fatal("expected no leftover .part file")
	}
}

// Scenario 4: trash delete moves the file into a snapshot with a manifest
// entry pointing at it.
func TestExecuteTrashDelete(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()
	writeTestFile(t, destRoot, "gone.txt", "bye")

	src := scanTree(t, srcRoot)
	dest := scanTree(t, destRoot)
	plan := diff.GeneratePlan(src, dest, types.Config{DeleteMode: types.DeleteTrash}, nil)

	summary := Execute(plan, srcRoot, destRoot, Options{Threads: 1, DeleteMode: types.DeleteTrash})
	if summary.Deleted != 1 {
		t.Fatalf("expected 1 delete, got %+v", summary)
	}

	if _, err := os.Stat(filepath.Join(destRoot, "gone.txt")); !os.IsNotExist(err) {
		t.Fatal("expected gone.txt removed from original path")
	}

	trashRoot := filepath.Join(destRoot, trashDirName)
	snapshots, err := os.ReadDir(trashRoot)
	if err != nil || len(snapshots) != 1 {
		t.Fatalf("expected exactly one trash snapshot, got %v (%v)", snapshots, err)
	}
	snapDir := filepath.Join(trashRoot, snapshots[0].Name())

	content, err := os.ReadFile(filepath.Join(snapDir, "gone.txt"))
	if err != nil || string(content) != "bye" {
		t.Fatalf("trashed content mismatch: %v %q", err, content)
	}

	manifestData, err := os.ReadFile(filepath.Join(snapDir, manifestName))
	if err != nil {
		t.Fatalf("missing manifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(manifestData, &m); err != nil {
		t.Fatalf("invalid manifest JSON: %v", err)
	}
	if len(m.Entries) != 1 || m.Entries[0].OriginalPath != "gone.txt" || m.Entries[0].TrashPath != "gone.txt" {
		t.Fatalf("unexpected manifest entries: %+v", m.Entries)
	}
}

// Scenario 6: dry-run never writes to the filesystem.
func TestExecuteDryRunNeverWrites(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()
	writeTestFile(t, srcRoot, "x", "1")

	src := scanTree(t, srcRoot)
	dest := scanTree(t, destRoot)
	plan := diff.GeneratePlan(src, dest, types.Config{}, nil)

	summary := Execute(plan, srcRoot, destRoot, Options{Threads: 1, DryRun: true})
	if summary.Copied != 1 {
		t.Fatalf("expected dry-run to still count 1 copy, got %+v", summary)
	}

	entries, err := os.ReadDir(destRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected destination untouched by dry-run, found %v", entries)
	}
}

// Backup strategy: destination's old content survives under a ".bak"
// sibling, and the new content lands at the original path.
func TestExecuteBackupMovesAsideThenOverwrites(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()
	mtime := time.Now().Add(-2 * time.Hour)
	writeTestFile(t, srcRoot, "a.txt", "new content")
	writeTestFile(t, destRoot, "a.txt", "old content")
	_ = os.Chtimes(filepath.Join(srcRoot, "a.txt"), mtime, mtime)
	_ = os.Chtimes(filepath.Join(destRoot, "a.txt"), time.Now(), time.Now())

	src := scanTree(t, srcRoot)
	dest := scanTree(t, destRoot)
	plan := diff.GeneratePlan(src, dest, types.Config{ConflictStrategy: types.ConflictBackup}, nil)
	if len(plan) != 1 || plan[0].Kind != types.ActionBackup {
		t.Fatalf("expected single Backup action, got %+v", plan)
	}

	summary := Execute(plan, srcRoot, destRoot, Options{Threads: 1})
	if summary.Overwritten != 1 || len(summary.Errors) != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	got, err := os.ReadFile(filepath.Join(destRoot, "a.txt"))
	if err != nil || string(got) != "new content" {
		t.Fatalf("a.txt not overwritten correctly: %v %q", err, got)
	}
	backup, err := os.ReadFile(filepath.Join(destRoot, "a.txt.bak"))
	if err != nil || string(backup) != "old content" {
		t.Fatalf("backup not preserved correctly: %v %q", err, backup)
	}
}

func TestExecuteParallelMatchesSequential(t *testing.T) {
	srcRoot := t.TempDir()
	destRootSeq := t.TempDir()
	destRootPar := t.TempDir()
	for i := 0; i < 10; i++ {
		writeTestFile(t, srcRoot, filepath.Join("d", string(rune('a'+i))+".txt"), "content")
	}

	src := scanTree(t, srcRoot)

	destSeq := scanTree(t, destRootSeq)
	planSeq := diff.GeneratePlan(src, destSeq, types.Config{}, nil)
	summarySeq := Execute(planSeq, srcRoot, destRootSeq, Options{Threads: 1})

	src2 := scanTree(t, srcRoot)
	destPar := scanTree(t, destRootPar)
	planPar := diff.GeneratePlan(src2, destPar, types.Config{}, nil)
	summaryPar := Execute(planPar, srcRoot, destRootPar, Options{Threads: 4})

	if summarySeq.Copied != summaryPar.Copied {
		t.Fatalf("copy count mismatch: seq=%d par=%d", summarySeq.Copied, summaryPar.Copied)
	}

	resultSeq := scanTree(t, destRootSeq)
	resultPar := scanTree(t, destRootPar)
	if resultSeq.TotalFiles() != resultPar.TotalFiles() || resultSeq.TotalSize() != resultPar.TotalSize() {
		t.Fatalf("parallel result diverges from sequential: seq=%+v par=%+v", resultSeq, resultPar)
	}
}
