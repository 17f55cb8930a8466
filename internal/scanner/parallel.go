package scanner

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ivoronin/kopy/internal/types"
)

// semaphore is a counting semaphore built on a buffered channel, used to
// bound concurrent directory reads.
type semaphore chan struct{}

func newSemaphore(n int) semaphore { return make(semaphore, n) }
func (s semaphore) acquire()       { s <- struct{}{} }
func (s semaphore) release()       { <-s }

// ScanParallel performs a work-stealing traversal across opts.Threads
// workers. Each worker walks one directory, emits matched entries toward a
// single collector, and recursively spawns a walker per subdirectory — a
// breadth-controlled depth-first shape.
//
// If the collector's estimated buffered-entry memory crosses
// directInsertThreshold, the scanner switches to inserting entries directly
// into the shared tree (behind the tree's own lock) instead of funneling
// them through the collector channel, bounding memory at the cost of some
// lock contention.
func ScanParallel(root string, opts Options) (*types.FileTree, error) {
	threads := opts.Threads
	if threads < 1 {
		threads = 1
	}

	tree := types.NewFileTree(root)
	st := &stats{}
	coalescer := newCoalescer(opts.Progress)

	sem := newSemaphore(threads)
	resultCh := make(chan *types.FileEntry, 1000)
	var bufferedBytes atomic.Int64
	var directMode atomic.Bool

	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		for e := range resultCh {
			tree.Insert(e)
			bufferedBytes.Add(-estimatedEntrySize)
		}
	}()

	var walkerWg sync.WaitGroup

	var walk func(relDir string)
	walk = func(relDir string) {
		walkerWg.Add(1)
		go func() {
			defer walkerWg.Done()

			sem.acquire()
			dirPath := root
			if relDir != "" {
				dirPath = filepath.Join(root, relDir)
			}
			entries, err := os.ReadDir(dirPath)
			sem.release()
			if err != nil {
				warnIfSet(opts.Warn, dirPath, err)
				return
			}

			var subdirs []string
			for _, d := range entries {
				res := classifyEntry(root, relDir, d, opts.Filter, opts.Warn)

				if res.isDir {
					if res.recurseRel != "" {
						subdirs = append(subdirs, res.recurseRel)
					}
					continue
				}
				if !res.sawFile {
					continue
				}

				st.scannedFiles.Add(1)
				st.scannedBytes.Add(res.seenSize)

				if res.entry == nil {
					coalescer.maybeEmit(st, false)
					continue
				}

				st.matchedFiles.Add(1)
				st.matchedBytes.Add(res.entry.Size)

				if directMode.Load() {
					tree.Insert(res.entry)
				} else {
					if bufferedBytes.Add(estimatedEntrySize) > directInsertThreshold {
						directMode.Store(true)
					}
					resultCh <- res.entry
				}

				coalescer.maybeEmit(st, false)
			}

			for _, sub := range subdirs {
				walk(sub)
			}
		}()
	}

	walk("")

	walkerWg.Wait()
	close(resultCh)
	collectorWg.Wait()

	coalescer.maybeEmit(st, true)

	return tree, nil
}
