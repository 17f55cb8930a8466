package diff

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivoronin/kopy/internal/types"
)

func writeFile(t *testing.T, root, rel, content string, mtime time.Time) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(full, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func entryFor(t *testing.T, root, rel string) *types.FileEntry {
	t.Helper()
	info, err := os.Stat(filepath.Join(root, rel))
	if err != nil {
		t.Fatal(err)
	}
	return &types.FileEntry{Path: rel, Size: info.Size(), ModTime: info.ModTime()}
}

func treeFrom(root string, entries ...*types.FileEntry) *types.FileTree {
	tree := types.NewFileTree(root)
	for _, e := range entries {
		tree.Insert(e)
	}
	return tree
}

// Empty destination -> all CopyNew.
func TestGeneratePlanEmptyDestCopiesAll(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()
	now := time.Now()

	writeFile(t, srcRoot, "a.txt", "hi", now)
	writeFile(t, srcRoot, "dir/b.txt", "yo", now)

	src := treeFrom(srcRoot, entryFor(t, srcRoot, "a.txt"), entryFor(t, srcRoot, "dir/b.txt"))
	dest := treeFrom(destRoot)

	plan := GeneratePlan(src, dest, types.Config{}, nil)

	require.Len(t, plan, 2)
	assert.Equal(t, types.ActionCopyNew, plan[0].Kind)
	assert.Equal(t, "a.txt", plan[0].Path)
	assert.Equal(t, types.ActionCopyNew, plan[1].Kind)
	assert.Equal(t, "dir/b.txt", plan[1].Path)
}

// Scenario 2: size differs -> Overwrite.
func TestGeneratePlanSizeChangeOverwrites(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()
	mtime := time.Now().Add(-time.Hour)

	writeFile(t, srcRoot, "a.txt", "helloo", mtime)
	writeFile(t, destRoot, "a.txt", "hello", mtime)

	src := treeFrom(srcRoot, entryFor(t, srcRoot, "a.txt"))
	dest := treeFrom(destRoot, entryFor(t, destRoot, "a.txt"))

	plan := GeneratePlan(src, dest, types.Config{}, nil)
	if len(plan) != 1 || plan[0].Kind != types.ActionOverwrite {
		t.Fatalf("expected single Overwrite action, got %+v", plan)
	}
}

// Scenario 3: metadata-identical files, checksum mode catches content
// corruption that Tier 1 alone would miss.
func TestGeneratePlanChecksumModeCatchesCorruption(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()
	mtime := time.Now().Add(-time.Hour)

	writeFile(t, srcRoot, "a.txt", "ABC", mtime)
	writeFile(t, destRoot, "a.txt", "ABZ", mtime)

	src := treeFrom(srcRoot, entryFor(t, srcRoot, "a.txt"))
	dest := treeFrom(destRoot, entryFor(t, destRoot, "a.txt"))

	withoutChecksum := GeneratePlan(src, dest, types.Config{}, nil)
	if len(withoutChecksum) != 0 {
		t.Fatalf("expected empty plan (Skip collapses away) without checksum mode, got %+v", withoutChecksum)
	}

	// Fresh trees: the first plan may have cached a hash on the shared entries.
	src2 := treeFrom(srcRoot, entryFor(t, srcRoot, "a.txt"))
	dest2 := treeFrom(destRoot, entryFor(t, destRoot, "a.txt"))
	withChecksum := GeneratePlan(src2, dest2, types.Config{ChecksumMode: true}, nil)
	if len(withChecksum) != 1 || withChecksum[0].Kind != types.ActionOverwrite {
		t.Fatalf("expected Overwrite with checksum mode, got %+v", withChecksum)
	}
}

// Destination newer than source under the default Skip strategy: resolves
// straight to Skip, which then collapses the whole plan to empty.
func TestGeneratePlanDestNewerSkipStrategyIsEmpty(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()

	writeFile(t, srcRoot, "a.txt", "old", time.Now().Add(-2*time.Hour))
	writeFile(t, destRoot, "a.txt", "new", time.Now().Add(-time.Hour))

	src := treeFrom(srcRoot, entryFor(t, srcRoot, "a.txt"))
	dest := treeFrom(destRoot, entryFor(t, destRoot, "a.txt"))

	plan := GeneratePlan(src, dest, types.Config{ConflictStrategy: types.ConflictSkip}, nil)
	assert.Empty(t, plan)
}

// Destination newer than source under the Prompt strategy: surfaces a
// Conflict action so an interactive front end (or resolveConflicts) has
// something to act on.
func TestGeneratePlanDestNewerPromptStrategyIsConflict(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()

	writeFile(t, srcRoot, "a.txt", "old", time.Now().Add(-2*time.Hour))
	writeFile(t, destRoot, "a.txt", "new", time.Now().Add(-time.Hour))

	src := treeFrom(srcRoot, entryFor(t, srcRoot, "a.txt"))
	dest := treeFrom(destRoot, entryFor(t, destRoot, "a.txt"))

	plan := GeneratePlan(src, dest, types.Config{ConflictStrategy: types.ConflictPrompt}, nil)
	require.Len(t, plan, 1)
	assert.Equal(t, types.ActionConflict, plan[0].Kind)
}

// Destination newer than source under the Backup strategy: resolves to a
// dedicated Backup action the executor turns into backup-then-overwrite.
func TestGeneratePlanDestNewerBackupStrategyIsBackup(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()

	writeFile(t, srcRoot, "a.txt", "old", time.Now().Add(-2*time.Hour))
	writeFile(t, destRoot, "a.txt", "new", time.Now().Add(-time.Hour))

	src := treeFrom(srcRoot, entryFor(t, srcRoot, "a.txt"))
	dest := treeFrom(destRoot, entryFor(t, destRoot, "a.txt"))

	plan := GeneratePlan(src, dest, types.Config{ConflictStrategy: types.ConflictBackup}, nil)
	require.Len(t, plan, 1)
	assert.Equal(t, types.ActionBackup, plan[0].Kind)
	assert.NotNil(t, plan[0].Entry)
}

// Destination newer than source under the Abort strategy: resolves to a
// dedicated Abort action the orchestrator checks for before executing
// anything.
func TestGeneratePlanDestNewerAbortStrategyIsAbort(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()

	writeFile(t, srcRoot, "a.txt", "old", time.Now().Add(-2*time.Hour))
	writeFile(t, destRoot, "a.txt", "new", time.Now().Add(-time.Hour))

	src := treeFrom(srcRoot, entryFor(t, srcRoot, "a.txt"))
	dest := treeFrom(destRoot, entryFor(t, destRoot, "a.txt"))

	plan := GeneratePlan(src, dest, types.Config{ConflictStrategy: types.ConflictAbort}, nil)
	require.Len(t, plan, 1)
	assert.Equal(t, types.ActionAbort, plan[0].Kind)
}

func TestGeneratePlanDeleteOnlyWhenRequested(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()

	writeFile(t, destRoot, "gone.txt", "bye", time.Now())

	src := treeFrom(srcRoot)
	dest := treeFrom(destRoot, entryFor(t, destRoot, "gone.txt"))

	noDelete := GeneratePlan(src, dest, types.Config{DeleteMode: types.DeleteNone}, nil)
	if len(noDelete) != 0 {
		t.Fatalf("expected empty plan with DeleteNone, got %+v", noDelete)
	}

	withDelete := GeneratePlan(src, dest, types.Config{DeleteMode: types.DeleteTrash}, nil)
	require.Len(t, withDelete, 1)
	assert.Equal(t, types.ActionDelete, withDelete[0].Kind)
	assert.Equal(t, "gone.txt", withDelete[0].Path)
}

func TestGeneratePlanEmptyWhenUpToDate(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()
	mtime := time.Now().Add(-time.Hour)

	writeFile(t, srcRoot, "a.txt", "same", mtime)
	writeFile(t, destRoot, "a.txt", "same", mtime)

	src := treeFrom(srcRoot, entryFor(t, srcRoot, "a.txt"))
	dest := treeFrom(destRoot, entryFor(t, destRoot, "a.txt"))

	plan := GeneratePlan(src, dest, types.Config{}, nil)
	if len(plan) != 0 {
		t.Fatalf("expected empty plan, got %+v", plan)
	}
}

// Plan determinism: two calls on identical inputs produce equal plans.
func TestGeneratePlanDeterministic(t *testing.T) {
	srcRoot := t.TempDir()
	destRoot := t.TempDir()
	now := time.Now()

	writeFile(t, srcRoot, "z.txt", "1", now)
	writeFile(t, srcRoot, "a.txt", "2", now)
	writeFile(t, srcRoot, "m/n.txt", "3", now)

	mk := func() ([]types.SyncAction, []types.SyncAction) {
		src := treeFrom(srcRoot,
			entryFor(t, srcRoot, "z.txt"),
			entryFor(t, srcRoot, "a.txt"),
			entryFor(t, srcRoot, "m/n.txt"),
		)
		dest := treeFrom(destRoot)
		return GeneratePlan(src, dest, types.Config{}, nil), nil
	}

	p1, _ := mk()
	p2, _ := mk()

	if len(p1) != len(p2) {
		t.Fatalf("plan length differs: %d vs %d", len(p1), len(p2))
	}
	for i := range p1 {
		if p1[i].Kind != p2[i].Kind || p1[i].Path != p2[i].Path {
			t.Fatalf("plans diverge at %d: %+v vs %+v", i, p1[i], p2[i])
		}
	}
	// Sorted by path.
	for i := 1; i < len(p1); i++ {
		if p1[i-1].Path > p1[i].Path {
			t.Fatalf("plan not sorted by path: %q before %q", p1[i-1].Path, p1[i].Path)
		}
	}
}
