package main

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"

	kopyerrors "github.com/ivoronin/kopy/internal/errors"
)

// parseSize parses a human-readable byte count ("100", "1K", "1MB",
// "1GiB") into bytes.
func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// validateGlobPatterns checks every pattern compiles under the doublestar
// matcher the filter package uses, so a typo surfaces at flag-parsing time
// rather than mid-scan.
func validateGlobPatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := doublestar.Match(p, "a"); err != nil {
			return fmt.Errorf("pattern %q: %w", p, err)
		}
	}
	return nil
}

// exitError pairs an error with the specific process exit code it should
// produce, so main's top-level Execute() caller doesn't need to
// re-classify errors it has already classified once.
type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &exitError{err: err, code: code}
}

// isFatalIOErr reports whether err represents an I/O failure that occurred
// during execution (exit code 3), as opposed to a configuration or
// validation failure caught before any file was touched (exit code 2).
func isFatalIOErr(err error) bool {
	var ioErr *kopyerrors.Io
	if kopyerrors.As(err, &ioErr) {
		return true
	}
	var diskFull *kopyerrors.DiskFull
	if kopyerrors.As(err, &diskFull) {
		return true
	}
	var perm *kopyerrors.PermissionDenied
	if kopyerrors.As(err, &perm) {
		return true
	}
	var mismatch *kopyerrors.ChecksumMismatch
	if kopyerrors.As(err, &mismatch) {
		return true
	}
	var interrupted *kopyerrors.TransferInterrupted
	return kopyerrors.As(err, &interrupted)
}
