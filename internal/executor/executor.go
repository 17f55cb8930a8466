package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ivoronin/kopy/internal/reporter"
	"github.com/ivoronin/kopy/internal/types"
	"golang.org/x/time/rate"
)

// smallLaneThreshold separates the small (concurrent) and large (serialized)
// lanes in the parallel executor.
const smallLaneThreshold = 16 * 1 << 20

// Options configures a run of the executor, independent of the plan itself.
type Options struct {
	DryRun         bool
	DeleteMode     types.DeleteMode
	BandwidthLimit int64 // bytes/sec, 0 = unlimited
	Verify         bool  // post-copy content verification
	Threads        int
	Rep            *reporter.Reporter
	Now            func() time.Time // overridable for trash snapshot naming in tests
}

// Execute runs plan sequentially if opts.Threads <= 1, else dispatches to
// the size-routed parallel executor.
func Execute(plan []types.SyncAction, srcRoot, destRoot string, opts Options) *reporter.Summary {
	if opts.Threads <= 1 {
		return ExecuteSequential(plan, srcRoot, destRoot, opts)
	}
	return ExecuteParallel(plan, srcRoot, destRoot, opts)
}

// newTrashSnapshotForOpts returns a shared trash coordinator when
// DeleteMode is Trash, or nil otherwise (nil tells applyDelete to use
// permanent delete semantics instead).
func newTrashSnapshotForOpts(destRoot string, opts Options) *trashSnapshot {
	if opts.DeleteMode != types.DeleteTrash {
		return nil
	}
	return newTrashSnapshot(destRoot, opts.Now)
}

// newLimiter builds a token bucket throttling to opts.BandwidthLimit bytes
// per second, or nil if unlimited.
func newLimiter(bandwidthLimit int64) *rate.Limiter {
	if bandwidthLimit <= 0 {
		return nil
	}
	burst := int(bandwidthLimit)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(bandwidthLimit), burst)
}

// applyAction executes one action, emitting the appropriate events, and
// returns its outcome as a summary delta. If the action failed, the error is
// both appended to the delta's error vector and returned; a per-action
// failure never stops the caller from moving to the next action.
func applyAction(action types.SyncAction, srcRoot, destRoot string, snap *trashSnapshot, opts Options) (reporter.Summary, error) {
	var delta reporter.Summary

	if opts.DryRun {
		return dryRunDelta(action), nil
	}

	switch action.Kind {
	case types.ActionCopyNew, types.ActionOverwrite:
		err := applyCopy(action, srcRoot, destRoot, opts)
		if err != nil {
			delta.Errors = append(delta.Errors, fmt.Errorf("%s: %w", action.Path, err))
			return delta, err
		}
		if action.Kind == types.ActionCopyNew {
			delta.Copied++
		} else {
			delta.Overwritten++
		}
		delta.BytesCopied += action.Entry.Size
		emit(opts.Rep, reporter.Event{Kind: reporter.EventFileComplete, Time: time.Now(), Path: action.Path})
		return delta, nil

	case types.ActionDelete:
		if opts.DeleteMode == types.DeleteNone {
			delta.Skipped++
			emit(opts.Rep, reporter.Event{
				Kind: reporter.EventWarning, Time: time.Now(),
				Path: action.Path, Message: "delete suppressed: no --delete flag",
			})
			return delta, nil
		}
		err := applyDelete(action, destRoot, snap, &delta)
		if err != nil {
			delta.Errors = append(delta.Errors, fmt.Errorf("%s: %w", action.Path, err))
			return delta, err
		}
		return delta, nil

	case types.ActionSkip:
		delta.Skipped++
		if action.Reason != "" {
			emit(opts.Rep, reporter.Event{
				Kind: reporter.EventWarning, Time: time.Now(),
				Path: action.Path, Message: "conflict skipped: " + action.Reason,
			})
		}
		return delta, nil

	case types.ActionConflict:
		delta.Conflicts++
		emit(opts.Rep, reporter.Event{
			Kind: reporter.EventConflict, Time: time.Now(),
			Path: action.Path, ConflictReason: action.Reason,
		})
		return delta, nil

	case types.ActionBackup:
		err := applyBackupThenOverwrite(action, srcRoot, destRoot, opts)
		if err != nil {
			delta.Errors = append(delta.Errors, fmt.Errorf("%s: %w", action.Path, err))
			return delta, err
		}
		delta.Overwritten++
		delta.BytesCopied += action.Entry.Size
		emit(opts.Rep, reporter.Event{Kind: reporter.EventFileComplete, Time: time.Now(), Path: action.Path})
		return delta, nil

	case types.ActionAbort:
		// Reachable only when a caller drives the executor directly against
		// a plan the orchestrator never vetted for Abort actions (e.g. a
		// test). orchestrator.Run itself halts before dispatch, per
		// findAbort, so this is a conflict-counting fallback, not the
		// primary abort path.
		delta.Conflicts++
		emit(opts.Rep, reporter.Event{
			Kind: reporter.EventConflict, Time: time.Now(),
			Path: action.Path, ConflictReason: action.Reason,
		})
		return delta, nil

	default:
		return delta, nil
	}
}

func applyCopy(action types.SyncAction, srcRoot, destRoot string, opts Options) error {
	entry := action.Entry
	limiter := newLimiter(opts.BandwidthLimit)

	if entry.IsSymlink {
		return copySymlink(destRoot, entry)
	}

	err := copyFile(srcRoot, destRoot, entry, limiter, func(done, total int64) {
		emit(opts.Rep, reporter.Event{
			Kind: reporter.EventProgress, Time: time.Now(),
			Path: action.Path, BytesDone: done, BytesTotal: total,
		})
	})
	if err != nil {
		return err
	}

	if opts.Verify {
		return verifyCopy(srcRoot, destRoot, entry)
	}
	return nil
}

// applyDelete resolves a Delete action per the configured delete mode,
// which reaches it through snap: non-nil means Trash, nil means Permanent
// (applyAction handles DeleteNone before calling here). See
// newTrashSnapshotForOpts for wiring.
func applyDelete(action types.SyncAction, destRoot string, snap *trashSnapshot, delta *reporter.Summary) error {
	if snap == nil {
		// DeleteMode == Permanent (snap is only ever set up for Trash mode).
		if err := deletePermanent(destRoot, action.Path); err != nil {
			return err
		}
		delta.Deleted++
		return nil
	}

	size := int64(0)
	if action.Entry != nil {
		size = action.Entry.Size
	} else if info, err := os.Lstat(filepath.Join(destRoot, action.Path)); err == nil {
		size = info.Size()
	}
	if err := snap.trash(action.Path, size, "sync_delete"); err != nil {
		return err
	}
	delta.Deleted++
	delta.BytesTrashed += size
	return nil
}

// applyBackupThenOverwrite moves the destination's current content aside
// before copying entry over it, so the Backup conflict strategy never
// loses the file it's resolving a conflict against.
func applyBackupThenOverwrite(action types.SyncAction, srcRoot, destRoot string, opts Options) error {
	now := time.Now()
	if opts.Now != nil {
		now = opts.Now()
	}
	if err := backupExisting(destRoot, action.Path, now); err != nil {
		return err
	}
	return applyCopy(action, srcRoot, destRoot, opts)
}

// dryRunDelta reports what WOULD happen without touching the filesystem:
// dry-run always emits the event stream without any write syscall.
func dryRunDelta(action types.SyncAction) reporter.Summary {
	var delta reporter.Summary
	switch action.Kind {
	case types.ActionCopyNew:
		delta.Copied++
		if action.Entry != nil {
			delta.BytesCopied += action.Entry.Size
		}
	case types.ActionOverwrite, types.ActionBackup:
		delta.Overwritten++
		if action.Entry != nil {
			delta.BytesCopied += action.Entry.Size
		}
	case types.ActionDelete:
		delta.Deleted++
	case types.ActionSkip:
		delta.Skipped++
	case types.ActionConflict, types.ActionAbort:
		delta.Conflicts++
	}
	return delta
}

func emit(rep *reporter.Reporter, ev reporter.Event) {
	if rep != nil {
		rep.Emit(ev)
	}
}

func mergeSummary(dst *reporter.Summary, delta reporter.Summary) {
	dst.Copied += delta.Copied
	dst.Overwritten += delta.Overwritten
	dst.Deleted += delta.Deleted
	dst.Skipped += delta.Skipped
	dst.Conflicts += delta.Conflicts
	dst.BytesCopied += delta.BytesCopied
	dst.BytesSkipped += delta.BytesSkipped
	dst.BytesTrashed += delta.BytesTrashed
	dst.Errors = append(dst.Errors, delta.Errors...)
}
