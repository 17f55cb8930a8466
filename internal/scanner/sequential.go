package scanner

import (
	"os"
	"path/filepath"

	"github.com/ivoronin/kopy/internal/types"
)

// ScanSequential performs a depth-first traversal of root, applying opts's
// filter, recording a types.FileEntry for every kept file or symlink.
// Permission-denied on a directory is warned and traversal continues;
// broken symlinks are recorded without dereferencing.
func ScanSequential(root string, opts Options) (*types.FileTree, error) {
	tree := types.NewFileTree(root)
	st := &stats{}
	coalescer := newCoalescer(opts.Progress)

	walkSequential(root, "", tree, st, coalescer, opts)
	coalescer.maybeEmit(st, true)

	return tree, nil
}

func walkSequential(root, relDir string, tree *types.FileTree, st *stats, coalescer *progressCoalescer, opts Options) {
	dirPath := root
	if relDir != "" {
		dirPath = filepath.Join(root, relDir)
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		warnIfSet(opts.Warn, dirPath, err)
		return
	}

	for _, d := range entries {
		res := classifyEntry(root, relDir, d, opts.Filter, opts.Warn)

		if res.isDir {
			if res.recurseRel != "" {
				walkSequential(root, res.recurseRel, tree, st, coalescer, opts)
			}
			continue
		}

		if !res.sawFile {
			continue
		}

		st.scannedFiles.Add(1)
		st.scannedBytes.Add(res.seenSize)

		if res.entry != nil {
			st.matchedFiles.Add(1)
			st.matchedBytes.Add(res.entry.Size)
			tree.Insert(res.entry)
		}

		coalescer.maybeEmit(st, false)
	}
}
