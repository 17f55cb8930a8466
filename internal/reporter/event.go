// Package reporter implements the typed event stream that ties the
// scanner, diff engine, and executor to a rendering sink.
//
// Producers (scanner, executor) send Events on a single buffered channel;
// the reporter fans them out to one or more Sinks. Each producer owns its
// own counters and only ever emits non-decreasing cumulative values, so
// progress stays monotone without the reporter itself needing to track
// state across events.
package reporter

import "time"

// EventKind is the closed tag for an Event.
type EventKind int

const (
	EventScanProgress EventKind = iota
	EventProgress
	EventFileComplete
	EventConflict
	EventInfo
	EventWarning
	EventError
	EventSummary
	EventPlanStart
	EventActionDone
)

// Event is one message on the reporter's channel. Only the fields relevant
// to Kind are meaningful.
type Event struct {
	Kind EventKind
	Time time.Time

	// EventScanProgress
	ScannedFiles int64
	ScannedBytes int64
	MatchedFiles int64
	MatchedBytes int64

	// EventProgress (per-file copy progress)
	Path       string
	BytesDone  int64
	BytesTotal int64

	// EventFileComplete
	// (Path reused above)

	// EventConflict
	ConflictReason string

	// EventInfo / EventWarning / EventError
	Message string
	Err     error

	// EventSummary
	Summary *Summary

	// EventPlanStart: the total action count the execute phase is about to
	// apply, known upfront from the plan's length.
	// EventActionDone (Path reused above): one action has finished, of any
	// kind — the unit EventPlanStart's total counts against.
	PlanTotal int64
}

// Summary aggregates a completed run for the final reporter line: counts
// per action kind, bytes transferred, bytes skipped, bytes trashed, and
// the vector of per-action errors.
type Summary struct {
	Copied       int
	Overwritten  int
	Deleted      int
	Skipped      int
	Conflicts    int
	BytesCopied  int64
	BytesSkipped int64
	BytesTrashed int64
	Errors       []error
}

// Sink consumes events. Implementations must not block for long (the
// reporter's channel is shared by every producer); the terminal sink
// throttles internally via progressbar's own throttle option.
type Sink interface {
	Handle(Event)
	Close()
}
