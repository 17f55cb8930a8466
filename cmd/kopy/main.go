package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:     "kopy",
		Short:   "Synchronize one local directory tree onto another",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newSyncCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newTrashCmd())

	if err := root.Execute(); err != nil {
		return exitCodeFor(err)
	}
	return 0
}

// exitCodeFor maps a top-level error to the process exit code (0 success,
// 1 partial success, 2 config/validation error, 3 fatal I/O error). Cobra's
// own flag-parsing errors and anything not specifically classified fall
// back to 2.
func exitCodeFor(err error) int {
	if code, ok := err.(interface{ ExitCode() int }); ok {
		return code.ExitCode()
	}
	return 2
}
