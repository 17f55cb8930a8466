package executor

import (
	"time"

	"github.com/ivoronin/kopy/internal/reporter"
	"github.com/ivoronin/kopy/internal/types"
)

// ExecuteSequential applies plan in order, one action at a time: a single
// goroutine, I/O bound, no worker pool.
func ExecuteSequential(plan []types.SyncAction, srcRoot, destRoot string, opts Options) *reporter.Summary {
	snap := newTrashSnapshotForOpts(destRoot, opts)

	summary := &reporter.Summary{}
	for _, action := range plan {
		delta, _ := applyAction(action, srcRoot, destRoot, snap, opts)
		mergeSummary(summary, delta)
		emit(opts.Rep, reporter.Event{Kind: reporter.EventActionDone, Time: time.Now(), Path: action.Path})
	}

	emit(opts.Rep, reporter.Event{Kind: reporter.EventSummary, Time: time.Now(), Summary: summary})
	return summary
}
