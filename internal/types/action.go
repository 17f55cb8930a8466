package types

import "time"

// ActionKind is the closed variant tag for a SyncAction. Adding a new kind
// requires updating the diff engine, executor, and reporter together.
type ActionKind int

const (
	ActionCopyNew ActionKind = iota
	ActionOverwrite
	ActionDelete
	ActionSkip
	ActionConflict
	ActionBackup
	ActionAbort
)

// String renders the action kind for log lines and summaries.
func (k ActionKind) String() string {
	switch k {
	case ActionCopyNew:
		return "copy"
	case ActionOverwrite:
		return "overwrite"
	case ActionDelete:
		return "delete"
	case ActionSkip:
		return "skip"
	case ActionConflict:
		return "conflict"
	case ActionBackup:
		return "backup"
	case ActionAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// SyncAction is the closed variant set of one step of a sync plan. It is
// represented as a struct with a Kind discriminator plus kind-specific
// fields rather than an interface, since the set is closed and dispatch is
// always by kind. The diff engine builds actions once; the executor never
// mutates them.
type SyncAction struct {
	Kind ActionKind
	Path string

	// CopyNew / Overwrite / Backup
	Entry *FileEntry

	// Conflict / Abort
	SrcModTime  time.Time
	DestModTime time.Time
	Reason      string
}

// CopyNew builds a CopyNew action for a source entry absent from the
// destination.
func CopyNew(e *FileEntry) SyncAction {
	return SyncAction{Kind: ActionCopyNew, Path: e.Path, Entry: e}
}

// Overwrite builds an Overwrite action: destination has the path but its
// content or metadata disagrees with source.
func Overwrite(e *FileEntry) SyncAction {
	return SyncAction{Kind: ActionOverwrite, Path: e.Path, Entry: e}
}

// Delete builds a Delete action for a destination-only path.
func Delete(path string) SyncAction {
	return SyncAction{Kind: ActionDelete, Path: path}
}

// Skip builds a Skip action: source and destination already agree.
func Skip(path string) SyncAction {
	return SyncAction{Kind: ActionSkip, Path: path}
}

// SkipConflict builds a Skip action carrying an informational reason: the
// conflict strategy resolved the conflict to Skip rather than surfacing it,
// and the reason is worth reporting even though no I/O happens.
func SkipConflict(path, reason string) SyncAction {
	return SyncAction{Kind: ActionSkip, Path: path, Reason: reason}
}

// Conflict builds a Conflict action: destination is newer than source (or
// a type mismatch was found), and a ConflictStrategy must resolve it.
func Conflict(path string, srcMTime, destMTime time.Time, reason string) SyncAction {
	return SyncAction{
		Kind:        ActionConflict,
		Path:        path,
		SrcModTime:  srcMTime,
		DestModTime: destMTime,
		Reason:      reason,
	}
}

// Backup builds a Backup action: the destination's current content is
// moved aside before entry is copied over it, resolving a conflict under
// the Backup strategy without losing the file it overwrites.
func Backup(e *FileEntry) SyncAction {
	return SyncAction{Kind: ActionBackup, Path: e.Path, Entry: e}
}

// Abort builds an Abort action: the configured strategy is to stop the
// entire run rather than resolve the conflict automatically.
func Abort(path string, srcMTime, destMTime time.Time, reason string) SyncAction {
	return SyncAction{
		Kind:        ActionAbort,
		Path:        path,
		SrcModTime:  srcMTime,
		DestModTime: destMTime,
		Reason:      reason,
	}
}

// DeleteMode controls whether and how destination-only paths are removed.
type DeleteMode int

const (
	DeleteNone DeleteMode = iota
	DeleteTrash
	DeletePermanent
)

// ScanMode selects the scanner implementation.
type ScanMode int

const (
	ScanAuto ScanMode = iota
	ScanSequential
	ScanParallel
)

// ConflictStrategy decides how a Conflict action is resolved when not
// running interactively (or after an interactive prompt response).
type ConflictStrategy int

const (
	ConflictPrompt ConflictStrategy = iota
	ConflictSkip
	ConflictOverwrite
	ConflictBackup
	ConflictAbort
)

// Config is the enumerated set of options the sync core honors. Parsing
// flags/profile files into a Config is the CLI layer's job; the core only
// ever sees a fully resolved Config value.
type Config struct {
	Source      string
	Destination string

	DryRun         bool
	ChecksumMode   bool
	DeleteMode     DeleteMode
	Exclude        []string
	Include        []string
	ScanMode       ScanMode
	Threads        int
	BandwidthLimit int64 // bytes/sec, 0 = unlimited

	ConflictStrategy ConflictStrategy
}
