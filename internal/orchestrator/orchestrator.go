// Package orchestrator ties the scanner, diff engine, executor, and
// reporter together into the single end-to-end sync flow. It is the sole
// producer of top-level work: everything downstream (scanner workers,
// executor workers) is spawned from here.
//
// The flow follows a "parse config, run one pipeline function, drain
// errors" shape generalized from a single-tree pipeline into a two-tree
// (source, destination) one, with path-conflict validation (ancestor/alias
// detection) run before any scan starts.
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	kopyerrors "github.com/ivoronin/kopy/internal/errors"
	"github.com/ivoronin/kopy/internal/executor"
	"github.com/ivoronin/kopy/internal/filter"
	"github.com/ivoronin/kopy/internal/hashcache"
	"github.com/ivoronin/kopy/internal/reporter"
	"github.com/ivoronin/kopy/internal/scanner"
	"github.com/ivoronin/kopy/internal/types"

	"github.com/ivoronin/kopy/internal/diff"
)

// Result is what Run returns once a sync attempt has finished (or been
// short-circuited by dry-run or a validation error).
type Result struct {
	Summary *reporter.Summary
	Plan    []types.SyncAction // populated even on dry-run
	DryRun  bool
}

// Run executes the full pipeline: validate → resolve scan mode → scan both
// trees concurrently → diff → (dry-run short-circuit) → resolve conflicts →
// execute → summarize.
func Run(cfg types.Config, rep *reporter.Reporter, cachePath string) (*Result, error) {
	srcRoot, destRoot, err := validatePaths(cfg.Source, cfg.Destination)
	if err != nil {
		return nil, err
	}

	f, err := filter.CompileAt(srcRoot, cfg.Exclude, cfg.Include)
	if err != nil {
		return nil, &kopyerrors.ConfigError{Message: fmt.Sprintf("compiling filters: %v", err)}
	}

	mode := cfg.ScanMode
	if mode == types.ScanAuto {
		mode = scanner.ResolveMode(srcRoot)
	}

	srcTree, destTree, err := scanBoth(srcRoot, destRoot, mode, cfg.Threads, f, rep)
	if err != nil {
		return nil, err
	}

	cache, err := hashcache.Open(cachePath)
	if err != nil {
		return nil, &kopyerrors.ConfigError{Message: fmt.Sprintf("opening hash cache: %v", err)}
	}
	defer func() { _ = cache.Close() }()

	plan := diff.GeneratePlan(srcTree, destTree, cfg, cache)

	if len(plan) == 0 {
		emitUpToDate(rep)
	}

	if cfg.DryRun {
		return &Result{Plan: plan, DryRun: true}, nil
	}

	if abortAction, aborted := findAbort(plan); aborted {
		return nil, &kopyerrors.Aborted{Path: abortAction.Path, Reason: abortAction.Reason}
	}

	plan = resolveConflicts(plan, cfg, rep)

	emitPlanStart(rep, len(plan))

	execOpts := executor.Options{
		DryRun:         false,
		DeleteMode:     cfg.DeleteMode,
		BandwidthLimit: cfg.BandwidthLimit,
		Verify:         cfg.ChecksumMode,
		Threads:        cfg.Threads,
		Rep:            rep,
	}
	summary := executor.Execute(plan, srcRoot, destRoot, execOpts)

	return &Result{Summary: summary, Plan: plan}, nil
}

// validatePaths canonicalizes both roots, rejects equality/ancestor
// relationships (including via a symlink alias), and ensures the
// destination directory exists.
func validatePaths(source, destination string) (srcRoot, destRoot string, err error) {
	srcInfo, err := os.Stat(source)
	if err != nil {
		return "", "", &kopyerrors.NotFound{Path: source, Err: err}
	}
	if !srcInfo.IsDir() {
		return "", "", &kopyerrors.ConfigError{Message: "single-file sync is not supported by the core pipeline; point source at a directory"}
	}

	srcCanon, err := filepath.EvalSymlinks(source)
	if err != nil {
		return "", "", &kopyerrors.Io{Kind: kopyerrors.IoKindStat, Path: source, Context: "canonicalizing source", Err: err}
	}

	if _, err := os.Stat(destination); os.IsNotExist(err) {
		// Reject a conflicting destination before creating it, using its
		// parent's canonical path when that parent already exists.
		if parentCanon, pErr := filepath.EvalSymlinks(filepath.Dir(destination)); pErr == nil {
			if cErr := rejectPathConflict(srcCanon, filepath.Join(parentCanon, filepath.Base(destination))); cErr != nil {
				return "", "", cErr
			}
		}
		if mkErr := os.MkdirAll(destination, 0o755); mkErr != nil {
			return "", "", &kopyerrors.Io{Kind: kopyerrors.IoKindMkdir, Path: destination, Context: "creating destination", Err: mkErr}
		}
	} else if err != nil {
		return "", "", &kopyerrors.Io{Kind: kopyerrors.IoKindStat, Path: destination, Context: "statting destination", Err: err}
	}

	destCanon, err := filepath.EvalSymlinks(destination)
	if err != nil {
		return "", "", &kopyerrors.Io{Kind: kopyerrors.IoKindStat, Path: destination, Context: "canonicalizing destination", Err: err}
	}

	if err := rejectPathConflict(srcCanon, destCanon); err != nil {
		return "", "", err
	}

	return srcCanon, destCanon, nil
}

// rejectPathConflict rejects equal roots and proper-ancestor relationships
// between the two canonicalized paths, which would otherwise make the sync
// grow its own destination.
func rejectPathConflict(a, b string) error {
	if a == b {
		return &kopyerrors.PathConflict{Path: a, Reason: "source and destination are the same path"}
	}
	if isAncestor(a, b) {
		return &kopyerrors.PathConflict{Path: b, Reason: "destination is nested inside source"}
	}
	if isAncestor(b, a) {
		return &kopyerrors.PathConflict{Path: a, Reason: "source is nested inside destination"}
	}
	return nil
}

// isAncestor reports whether parent is a proper ancestor directory of
// child, both already-cleaned absolute paths.
func isAncestor(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	if rel == "." || filepath.IsAbs(rel) || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// scanBoth launches the source and destination scans concurrently and
// waits for both. If either scan fails, the first error is returned once
// both have finished; the other scan is not cancelled.
func scanBoth(srcRoot, destRoot string, mode types.ScanMode, threads int, f *filter.Filter, rep *reporter.Reporter) (src, dest *types.FileTree, err error) {
	var g errgroup.Group

	g.Go(func() error {
		tree, scanErr := scanner.Scan(srcRoot, mode, scanner.Options{
			Filter:  f,
			Threads: threads,
			Progress: func(scannedFiles, scannedBytes, matchedFiles, matchedBytes int64) {
				emitScanProgress(rep, scannedFiles, scannedBytes, matchedFiles, matchedBytes)
			},
			Warn: func(path string, warnErr error) { emitWarning(rep, path, warnErr) },
		})
		if scanErr != nil {
			return scanErr
		}
		src = tree
		return nil
	})

	g.Go(func() error {
		tree, scanErr := scanner.Scan(destRoot, mode, scanner.Options{
			Threads: threads,
			Warn:    func(path string, warnErr error) { emitWarning(rep, path, warnErr) },
		})
		if scanErr != nil {
			return scanErr
		}
		dest = tree
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return src, dest, nil
}

// resolveConflicts rewrites every Conflict action per cfg.ConflictStrategy.
// Prompt surfaces each conflict through the reporter as an informational
// event and defaults to Skip: an interactive front end observing these
// events may re-run with an explicit strategy; the core itself never
// blocks on stdin.
func resolveConflicts(plan []types.SyncAction, cfg types.Config, rep *reporter.Reporter) []types.SyncAction {
	if cfg.ConflictStrategy != types.ConflictPrompt {
		return plan
	}

	resolved := make([]types.SyncAction, len(plan))
	for i, action := range plan {
		if action.Kind != types.ActionConflict {
			resolved[i] = action
			continue
		}
		emitConflict(rep, action)
		resolved[i] = types.Skip(action.Path)
	}
	return resolved
}

// findAbort reports the first Abort action in plan, if any: under the
// Abort conflict strategy, a single stale-destination conflict halts the
// whole run before a single byte is written.
func findAbort(plan []types.SyncAction) (types.SyncAction, bool) {
	for _, a := range plan {
		if a.Kind == types.ActionAbort {
			return a, true
		}
	}
	return types.SyncAction{}, false
}

func emitUpToDate(rep *reporter.Reporter) {
	if rep == nil {
		return
	}
	rep.Emit(reporter.Event{Kind: reporter.EventInfo, Message: "up to date"})
}

// emitPlanStart tells the terminal sink the execute phase's known-upfront
// action count, so it can switch its progress bar from a scan spinner into
// a determinate count of actions applied.
func emitPlanStart(rep *reporter.Reporter, total int) {
	if rep == nil || total == 0 {
		return
	}
	rep.Emit(reporter.Event{Kind: reporter.EventPlanStart, PlanTotal: int64(total)})
}

func emitScanProgress(rep *reporter.Reporter, scannedFiles, scannedBytes, matchedFiles, matchedBytes int64) {
	if rep == nil {
		return
	}
	rep.Emit(reporter.Event{
		Kind:         reporter.EventScanProgress,
		ScannedFiles: scannedFiles, ScannedBytes: scannedBytes,
		MatchedFiles: matchedFiles, MatchedBytes: matchedBytes,
	})
}

func emitWarning(rep *reporter.Reporter, path string, err error) {
	if rep == nil {
		return
	}
	rep.Emit(reporter.Event{Kind: reporter.EventWarning, Path: path, Message: err.Error(), Err: err})
}

func emitConflict(rep *reporter.Reporter, action types.SyncAction) {
	if rep == nil {
		return
	}
	rep.Emit(reporter.Event{Kind: reporter.EventConflict, Path: action.Path, ConflictReason: action.Reason})
}
