package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ivoronin/kopy/internal/orchestrator"
	"github.com/ivoronin/kopy/internal/reporter"
	"github.com/ivoronin/kopy/internal/types"
)

// syncOptions holds CLI flags for the sync command.
type syncOptions struct {
	dryRun          bool
	checksum        bool
	delete          bool
	deletePermanent bool
	exclude         []string
	include         []string
	threads         int
	scanMode        string
	limitStr        string
	cacheFile       string
	conflict        string
	quiet           bool
}

func newSyncCmd() *cobra.Command {
	opts := &syncOptions{
		threads:  runtime.NumCPU(),
		scanMode: "auto",
		conflict: "skip",
	}

	cmd := &cobra.Command{
		Use:   "sync <source> <destination>",
		Short: "Synchronize destination to match source",
		Long: `Copies new and changed files from source to destination.

By default no files are removed from destination; pass --delete to move
destination-only files into a recoverable trash snapshot, or
--delete-permanent to remove them outright.

Use --dry-run to preview the plan without touching the filesystem.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runSync(args[0], args[1], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "Preview the plan without executing it")
	cmd.Flags().BoolVar(&opts.checksum, "checksum", false, "Force content-hash comparison even when metadata matches")
	cmd.Flags().BoolVar(&opts.delete, "delete", false, "Move destination-only files to trash")
	cmd.Flags().BoolVar(&opts.deletePermanent, "delete-permanent", false, "Permanently remove destination-only files (overrides --delete)")
	cmd.Flags().StringSliceVarP(&opts.exclude, "exclude", "e", nil, "Glob pattern to exclude (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.include, "include", "i", nil, "Glob pattern to re-include over an exclude (repeatable)")
	cmd.Flags().IntVarP(&opts.threads, "threads", "t", opts.threads, "Worker count for the parallel scanner/executor")
	cmd.Flags().StringVar(&opts.scanMode, "scan-mode", opts.scanMode, "Scanner strategy: auto, sequential, or parallel")
	cmd.Flags().StringVarP(&opts.limitStr, "limit", "l", "", "Bandwidth limit (e.g. 10M, 1GiB) per second, unlimited if unset")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "Path to a persistent hash cache (enables cross-run caching)")
	cmd.Flags().StringVar(&opts.conflict, "conflict", opts.conflict, "Conflict strategy when destination is newer than source: skip, overwrite, backup, abort")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress the terminal progress/summary sink")

	return cmd
}

func runSync(source, destination string, opts *syncOptions) error {
	if err := validateGlobPatterns(opts.exclude); err != nil {
		return withExitCode(fmt.Errorf("invalid --exclude: %w", err), 2)
	}
	if err := validateGlobPatterns(opts.include); err != nil {
		return withExitCode(fmt.Errorf("invalid --include: %w", err), 2)
	}

	limit, err := parseBandwidthLimit(opts.limitStr)
	if err != nil {
		return withExitCode(fmt.Errorf("invalid --limit: %w", err), 2)
	}

	scanMode, err := parseScanMode(opts.scanMode)
	if err != nil {
		return withExitCode(err, 2)
	}

	conflictStrategy, err := parseConflictStrategy(opts.conflict)
	if err != nil {
		return withExitCode(err, 2)
	}

	deleteMode := types.DeleteNone
	if opts.delete {
		deleteMode = types.DeleteTrash
	}
	if opts.deletePermanent {
		deleteMode = types.DeletePermanent
	}

	cfg := types.Config{
		Source:           source,
		Destination:      destination,
		DryRun:           opts.dryRun,
		ChecksumMode:     opts.checksum,
		DeleteMode:       deleteMode,
		Exclude:          opts.exclude,
		Include:          opts.include,
		ScanMode:         scanMode,
		Threads:          opts.threads,
		BandwidthLimit:   limit,
		ConflictStrategy: conflictStrategy,
	}

	var sinks []reporter.Sink
	if !opts.quiet {
		sinks = append(sinks, reporter.NewTerminalSink())
	}
	rep := reporter.New(sinks...)
	defer rep.Close()

	result, err := orchestrator.Run(cfg, rep, opts.cacheFile)
	if err != nil {
		return withExitCode(err, exitCodeForRunErr(err))
	}

	if result.DryRun {
		fmt.Fprintf(os.Stdout, "dry run: %d action(s) planned, no files touched\n", len(result.Plan))
		return nil
	}

	if len(result.Summary.Errors) > 0 {
		return withExitCode(fmt.Errorf("%d file(s) failed during sync", len(result.Summary.Errors)), 1)
	}
	return nil
}

func parseBandwidthLimit(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return parseSize(s)
}

func parseScanMode(s string) (types.ScanMode, error) {
	switch s {
	case "auto", "":
		return types.ScanAuto, nil
	case "sequential":
		return types.ScanSequential, nil
	case "parallel":
		return types.ScanParallel, nil
	default:
		return types.ScanAuto, fmt.Errorf("unknown --scan-mode %q", s)
	}
}

func parseConflictStrategy(s string) (types.ConflictStrategy, error) {
	switch s {
	case "skip", "":
		return types.ConflictSkip, nil
	case "overwrite":
		return types.ConflictOverwrite, nil
	case "backup":
		return types.ConflictBackup, nil
	case "abort":
		return types.ConflictAbort, nil
	default:
		return types.ConflictSkip, fmt.Errorf("unknown --conflict %q", s)
	}
}

// exitCodeForRunErr distinguishes a fatal I/O error (exit 3) from every
// other orchestrator-level failure (validation, path conflicts), which
// are all treated as configuration errors (exit 2).
func exitCodeForRunErr(err error) int {
	if isFatalIOErr(err) {
		return 3
	}
	return 2
}
