package scanner

import (
	"os"
	"path/filepath"

	"github.com/ivoronin/kopy/internal/types"
)

// probeEntryBudget bounds how many directory entries ResolveMode is willing
// to read while probing a few levels deep.
const probeEntryBudget = 500

// probeDepthBudget bounds how many directory levels the probe descends.
const probeDepthBudget = 3

// wideOrDeepThreshold is the entry count observed within the probe budget
// past which ResolveMode picks Parallel.
const wideOrDeepThreshold = 500

// ResolveMode performs a bounded probe of root and chooses Parallel if the
// tree appears wide and/or deep within the probe budget, else Sequential.
func ResolveMode(root string) types.ScanMode {
	seen := probeDirectory(root, 0)
	if seen >= wideOrDeepThreshold {
		return types.ScanParallel
	}
	return types.ScanSequential
}

// probeDirectory reads up to probeEntryBudget entries from dir, then probes
// its subdirectories (to probeDepthBudget levels), returning the total
// entries observed. It stops descending once wideOrDeepThreshold entries
// have been seen; each directory read has its own probeEntryBudget cap.
func probeDirectory(dir string, depth int) int {
	if depth > probeDepthBudget {
		return 0
	}

	f, err := os.Open(dir)
	if err != nil {
		return 0
	}
	defer func() { _ = f.Close() }()

	entries, err := f.ReadDir(probeEntryBudget)
	if err != nil && len(entries) == 0 {
		return 0
	}

	total := len(entries)
	if total >= probeEntryBudget || depth == probeDepthBudget {
		return total
	}

	for _, e := range entries {
		if total >= wideOrDeepThreshold {
			break
		}
		if e.IsDir() {
			total += probeDirectory(filepath.Join(dir, e.Name()), depth+1)
		}
	}
	return total
}
