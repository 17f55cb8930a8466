package executor

import (
	"fmt"
	"sync"
	"time"

	"github.com/ivoronin/kopy/internal/reporter"
	"github.com/ivoronin/kopy/internal/types"
)

// ExecuteParallel applies plan across opts.Threads workers, size-routing
// regular-file copy/overwrite actions into a small lane (threads-1 workers)
// and a large lane (one dedicated worker). The two lanes run concurrently,
// sharing the thread budget, since nothing in the plan orders them against
// each other — a dedicated large-file worker sitting idle for the whole
// small-file phase would waste it. Delete actions are held back behind a
// single barrier until both lanes have drained, so a delete never races a
// copy into the same subtree; the plan's own ordering (all forward actions
// before any delete, per the diff engine) makes that one barrier enough,
// without per-directory dependency bookkeeping.
func ExecuteParallel(plan []types.SyncAction, srcRoot, destRoot string, opts Options) *reporter.Summary {
	snap := newTrashSnapshotForOpts(destRoot, opts)
	summary := &reporter.Summary{}
	var mu sync.Mutex

	collect := func(delta reporter.Summary) {
		mu.Lock()
		mergeSummary(summary, delta)
		mu.Unlock()
	}

	small, large, deletes := routeActions(plan)

	workers := opts.Threads
	if workers < 1 {
		workers = 1
	}
	smallWorkers := workers - 1
	if smallWorkers < 1 {
		smallWorkers = 1
	}

	var lanes sync.WaitGroup
	lanes.Add(2)
	go func() {
		defer lanes.Done()
		runLane(small, smallWorkers, func(a types.SyncAction) {
			runActionSafely(a, srcRoot, destRoot, snap, opts, collect)
		})
	}()
	go func() {
		defer lanes.Done()
		runLane(large, 1, func(a types.SyncAction) {
			runActionSafely(a, srcRoot, destRoot, snap, opts, collect)
		})
	}()
	lanes.Wait()

	// Barrier: every copy/overwrite/skip/conflict action has completed
	// before any delete begins.
	runLane(deletes, smallWorkers, func(a types.SyncAction) {
		runActionSafely(a, srcRoot, destRoot, snap, opts, collect)
	})

	emit(opts.Rep, reporter.Event{Kind: reporter.EventSummary, Time: time.Now(), Summary: summary})
	return summary
}

// routeActions splits plan into the small lane (regular-file actions under
// smallLaneThreshold, plus all non-copy actions that aren't deletes), the
// large lane (regular-file actions at or above the threshold), and the
// deferred delete lane, each preserving plan order.
func routeActions(plan []types.SyncAction) (small, large, deletes []types.SyncAction) {
	for _, a := range plan {
		switch a.Kind {
		case types.ActionDelete:
			deletes = append(deletes, a)
		case types.ActionCopyNew, types.ActionOverwrite:
			if a.Entry != nil && !a.Entry.IsSymlink && a.Entry.Size >= smallLaneThreshold {
				large = append(large, a)
			} else {
				small = append(small, a)
			}
		default:
			small = append(small, a)
		}
	}
	return small, large, deletes
}

// runLane feeds actions through a bounded channel to workers workers,
// running fn for each and waiting for all to finish before returning.
func runLane(actions []types.SyncAction, workers int, fn func(types.SyncAction)) {
	if len(actions) == 0 {
		return
	}
	ch := make(chan types.SyncAction, 1000)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range ch {
				fn(a)
			}
		}()
	}
	for _, a := range actions {
		ch <- a
	}
	close(ch)
	wg.Wait()
}

// runActionSafely applies one action and recovers from a panic inside it,
// converting the panic into an Error event rather than taking down the
// whole run.
func runActionSafely(action types.SyncAction, srcRoot, destRoot string, snap *trashSnapshot, opts Options, collect func(reporter.Summary)) {
	defer func() {
		if r := recover(); r != nil {
			var delta reporter.Summary
			delta.Errors = append(delta.Errors, fmt.Errorf("%s: worker panic: %v", action.Path, r))
			emit(opts.Rep, reporter.Event{
				Kind: reporter.EventError, Time: time.Now(),
				Path: action.Path, Err: fmt.Errorf("worker panic: %v", r),
			})
			collect(delta)
		}
	}()

	delta, err := applyAction(action, srcRoot, destRoot, snap, opts)
	if err != nil {
		emit(opts.Rep, reporter.Event{
			Kind: reporter.EventError, Time: time.Now(),
			Path: action.Path, Err: err,
		})
	}
	collect(delta)
	emit(opts.Rep, reporter.Event{Kind: reporter.EventActionDone, Time: time.Now(), Path: action.Path})
}
