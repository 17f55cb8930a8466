package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ivoronin/kopy/internal/diff"
	"github.com/ivoronin/kopy/internal/filter"
	"github.com/ivoronin/kopy/internal/scanner"
	"github.com/ivoronin/kopy/internal/types"
)

// verifyOptions holds CLI flags for the verify command.
type verifyOptions struct {
	exclude  []string
	include  []string
	threads  int
	scanMode string
	quiet    bool
}

func newVerifyCmd() *cobra.Command {
	opts := &verifyOptions{
		threads:  runtime.NumCPU(),
		scanMode: "auto",
	}

	cmd := &cobra.Command{
		Use:   "verify <source> <destination>",
		Short: "Report how source and destination differ without changing either",
		Long: `Scans source and destination, always in content-hash comparison mode,
and reports matched/modified/missing/extra files. Never writes to either
tree; use "kopy sync" to act on the differences.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runVerify(args[0], args[1], opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.exclude, "exclude", "e", nil, "Glob pattern to exclude (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.include, "include", "i", nil, "Glob pattern to re-include over an exclude (repeatable)")
	cmd.Flags().IntVarP(&opts.threads, "threads", "t", opts.threads, "Worker count for the scanner")
	cmd.Flags().StringVar(&opts.scanMode, "scan-mode", opts.scanMode, "Scanner strategy: auto, sequential, or parallel")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Print only the summary line, not per-file detail")

	return cmd
}

func runVerify(source, destination string, opts *verifyOptions) error {
	if err := validateGlobPatterns(opts.exclude); err != nil {
		return withExitCode(fmt.Errorf("invalid --exclude: %w", err), 2)
	}
	if err := validateGlobPatterns(opts.include); err != nil {
		return withExitCode(fmt.Errorf("invalid --include: %w", err), 2)
	}

	scanMode, err := parseScanMode(opts.scanMode)
	if err != nil {
		return withExitCode(err, 2)
	}

	srcRoot, err := filepath.Abs(source)
	if err != nil {
		return withExitCode(err, 2)
	}
	destRoot, err := filepath.Abs(destination)
	if err != nil {
		return withExitCode(err, 2)
	}

	f, err := filter.CompileAt(srcRoot, opts.exclude, opts.include)
	if err != nil {
		return withExitCode(fmt.Errorf("compiling filter: %w", err), 2)
	}

	srcTree, err := scanner.Scan(srcRoot, scanMode, scanner.Options{Filter: f, Threads: opts.threads})
	if err != nil {
		return withExitCode(fmt.Errorf("scanning source: %w", err), 3)
	}
	destTree, err := scanner.Scan(destRoot, scanMode, scanner.Options{Threads: opts.threads})
	if err != nil {
		return withExitCode(fmt.Errorf("scanning destination: %w", err), 3)
	}

	// DeleteTrash only makes the plan list destination-only paths as Delete
	// actions (counted as extra); this plan is never executed.
	cfg := types.Config{Source: srcRoot, Destination: destRoot, ChecksumMode: true, DeleteMode: types.DeleteTrash}
	plan := diff.GeneratePlan(srcTree, destTree, cfg, nil)

	report := summarizeVerify(plan)
	if len(plan) == 0 {
		// GeneratePlan returns nil when every path is a Skip.
		report.matched = srcTree.Len()
	}
	printVerifyReport(report, opts.quiet)

	if report.modified > 0 || report.missing > 0 || report.conflicts > 0 {
		return withExitCode(fmt.Errorf("source and destination differ"), 1)
	}
	return nil
}

type verifyReport struct {
	matched, modified, missing, extra, conflicts int
	modifiedPaths, missingPaths, conflictPaths   []string
}

func summarizeVerify(plan []types.SyncAction) verifyReport {
	var r verifyReport
	for _, action := range plan {
		switch action.Kind {
		case types.ActionSkip:
			r.matched++
		case types.ActionOverwrite:
			r.modified++
			r.modifiedPaths = append(r.modifiedPaths, action.Path)
		case types.ActionCopyNew:
			r.missing++
			r.missingPaths = append(r.missingPaths, action.Path)
		case types.ActionDelete:
			r.extra++
		case types.ActionConflict:
			r.conflicts++
			r.conflictPaths = append(r.conflictPaths, action.Path)
		}
	}
	sort.Strings(r.modifiedPaths)
	sort.Strings(r.missingPaths)
	sort.Strings(r.conflictPaths)
	return r
}

func printVerifyReport(r verifyReport, quiet bool) {
	if !quiet {
		for _, p := range r.missingPaths {
			fmt.Fprintf(os.Stdout, "missing: %s\n", p)
		}
		for _, p := range r.modifiedPaths {
			fmt.Fprintf(os.Stdout, "modified: %s\n", p)
		}
		for _, p := range r.conflictPaths {
			fmt.Fprintf(os.Stdout, "conflict: %s\n", p)
		}
	}
	fmt.Fprintf(os.Stdout, "matched %d, modified %d, missing %d, extra %d, conflicts %d\n",
		r.matched, r.modified, r.missing, r.extra, r.conflicts)
}
