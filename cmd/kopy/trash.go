package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivoronin/kopy/internal/trash"
)

func newTrashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "Inspect and manage trashed files left by sync --delete",
	}

	cmd.AddCommand(newTrashListCmd())
	cmd.AddCommand(newTrashRestoreCmd())
	cmd.AddCommand(newTrashCleanCmd())
	return cmd
}

func newTrashListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <destination>",
		Short: "List trash snapshots under a destination tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runTrashList(args[0])
		},
	}
}

func runTrashList(destination string) error {
	root, err := filepath.Abs(destination)
	if err != nil {
		return withExitCode(err, 2)
	}

	snapshots, err := trash.List(root)
	if err != nil {
		return withExitCode(err, 3)
	}
	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stdout, "no trash snapshots")
		return nil
	}
	for _, s := range snapshots {
		fmt.Fprintf(os.Stdout, "%s\t%d file(s)\t%s\n", s.Name, s.Entries, s.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func newTrashRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <destination> <snapshot>[/<path>]",
		Short: "Restore a trash snapshot, or a single file within one, to its original location",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runTrashRestore(args[0], args[1])
		},
	}
}

func runTrashRestore(destination, target string) error {
	root, err := filepath.Abs(destination)
	if err != nil {
		return withExitCode(err, 2)
	}

	restored, err := trash.Restore(root, target)
	if err != nil {
		return withExitCode(err, 3)
	}
	fmt.Fprintf(os.Stdout, "restored %d file(s)\n", restored)
	return nil
}

func newTrashCleanCmd() *cobra.Command {
	var olderThan time.Duration
	var all bool

	cmd := &cobra.Command{
		Use:   "clean <destination>",
		Short: "Permanently remove old trash snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runTrashClean(args[0], olderThan, all)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Remove snapshots older than this duration")
	cmd.Flags().BoolVar(&all, "all", false, "Remove every snapshot regardless of age")

	return cmd
}

func runTrashClean(destination string, olderThan time.Duration, all bool) error {
	root, err := filepath.Abs(destination)
	if err != nil {
		return withExitCode(err, 2)
	}

	removed, err := trash.Clean(root, olderThan, all, time.Now())
	if err != nil {
		return withExitCode(err, 3)
	}
	fmt.Fprintf(os.Stdout, "removed %d snapshot(s)\n", removed)
	return nil
}
