// Package errors implements a closed error taxonomy. Each variant
// preserves its classification across layers (PermissionDenied and
// DiskFull are never downgraded to a generic Io error) and implements
// Unwrap so errors.As/errors.Is compose normally.
package errors

import (
	"errors"
	"fmt"
)

// IoKind classifies a generic I/O failure.
type IoKind int

const (
	IoKindUnknown IoKind = iota
	IoKindRead
	IoKindWrite
	IoKindOpen
	IoKindStat
	IoKindRename
	IoKindMkdir
)

// Io is a generic I/O error carrying a kind, the path involved, and a
// human-readable context string (e.g. "staging copy", "reading source").
type Io struct {
	Kind    IoKind
	Path    string
	Context string
	Err     error
}

func (e *Io) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %v", e.Context, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *Io) Unwrap() error { return e.Err }

// PermissionDenied is preserved across layers and never collapsed into a
// generic Io error.
type PermissionDenied struct {
	Path string
	Err  error
}

func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Path)
}

func (e *PermissionDenied) Unwrap() error { return e.Err }

// DiskFull is recognized from errno (ENOSPC) and surfaced with both the
// available and needed byte counts when known. Available/Needed may be -1
// if the underlying filesystem didn't report them.
type DiskFull struct {
	Path      string
	Available int64
	Needed    int64
	Err       error
}

func (e *DiskFull) Error() string {
	if e.Available >= 0 && e.Needed >= 0 {
		return fmt.Sprintf("disk full writing %s (available %d, needed %d)", e.Path, e.Available, e.Needed)
	}
	return fmt.Sprintf("disk full writing %s", e.Path)
}

func (e *DiskFull) Unwrap() error { return e.Err }

// ChecksumMismatch indicates post-copy verification found the staged file's
// content digest did not match the source.
type ChecksumMismatch struct {
	Path string
}

func (e *ChecksumMismatch) Error() string {
	return fmt.Sprintf("checksum mismatch after copy: %s", e.Path)
}

// TransferInterrupted indicates the staged file's size disagreed with the
// expected byte count after streaming — the copy was cut short or
// over-extended.
type TransferInterrupted struct {
	Path   string
	Offset int64
}

func (e *TransferInterrupted) Error() string {
	return fmt.Sprintf("transfer interrupted at offset %d: %s", e.Offset, e.Path)
}

// ConfigError is a validation failure detected before any I/O occurs.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return "config: " + e.Message }

// PathConflict indicates source and destination are equal, nested, or
// canonical aliases of one another.
type PathConflict struct {
	Path   string
	Reason string
}

func (e *PathConflict) Error() string {
	return fmt.Sprintf("path conflict: %s: %s", e.Path, e.Reason)
}

// Aborted reports that the Abort conflict strategy found a conflict before
// any file was touched, halting the run entirely rather than resolving it
// automatically.
type Aborted struct {
	Path   string
	Reason string
}

func (e *Aborted) Error() string { return fmt.Sprintf("aborted at %s: %s", e.Path, e.Reason) }

// NotFound reports that a path expected to exist at execution time had
// already disappeared. This is not an error when it occurs during a
// permanent delete (TOCTOU policy) — callers that need that leniency
// check for it explicitly rather than treating every NotFound as fatal.
type NotFound struct {
	Path string
	Err  error
}

func (e *NotFound) Error() string { return fmt.Sprintf("not found: %s", e.Path) }
func (e *NotFound) Unwrap() error { return e.Err }

// As is a thin convenience wrapper around errors.As for the taxonomy types
// above, so callers don't need to import both packages under different
// names at every call site.
func As[T error](err error, target *T) bool {
	return errors.As(err, target)
}
