package reporter

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ivoronin/kopy/internal/progress"
)

// TerminalSink renders progress to a terminal using the progress.Bar
// wrapper around schollz/progressbar/v3, plus line-printed
// warnings/errors/conflicts. It clears the progress line ("\r\033[K")
// before printing a line so bar and log output never collide.
type TerminalSink struct {
	bar   *progress.Bar
	start time.Time

	// execTotal/execDone track the execute phase's known-upfront action
	// count, once EventPlanStart switches the bar from the scan spinner
	// into a determinate count of actions applied.
	execTotal int64
	execDone  int64
}

// NewTerminalSink creates a sink that renders a spinner-style progress bar.
func NewTerminalSink() *TerminalSink {
	return &TerminalSink{
		bar:   progress.New(true, -1),
		start: time.Now(),
	}
}

type scanStats struct {
	scanned, matched int64
	scannedBytes     int64
	matchedBytes     int64
	start            time.Time
}

func (s scanStats) String() string {
	return fmt.Sprintf("Scanned %d (%s), matched %d (%s) in %.1fs",
		s.scanned, humanize.IBytes(uint64(s.scannedBytes)),
		s.matched, humanize.IBytes(uint64(s.matchedBytes)),
		time.Since(s.start).Seconds())
}

type xferStats struct {
	path       string
	bytesDone  int64
	bytesTotal int64
}

func (s xferStats) String() string {
	return fmt.Sprintf("%s (%s/%s)", s.path, humanize.IBytes(uint64(s.bytesDone)), humanize.IBytes(uint64(s.bytesTotal)))
}

type execStats struct {
	done, total int64
}

func (s execStats) String() string {
	return fmt.Sprintf("%d/%d action(s) applied", s.done, s.total)
}

func (t *TerminalSink) Handle(ev Event) {
	switch ev.Kind {
	case EventScanProgress:
		t.bar.Describe(scanStats{
			scanned:      ev.ScannedFiles,
			matched:      ev.MatchedFiles,
			scannedBytes: ev.ScannedBytes,
			matchedBytes: ev.MatchedBytes,
			start:        t.start,
		})
	case EventProgress:
		t.bar.Describe(xferStats{path: ev.Path, bytesDone: ev.BytesDone, bytesTotal: ev.BytesTotal})
	case EventFileComplete:
		// covered by the final Progress event for the file; nothing extra to draw
	case EventConflict:
		t.printLine(fmt.Sprintf("conflict: %s: %s", ev.Path, ev.ConflictReason))
	case EventInfo:
		t.printLine(ev.Message)
	case EventWarning:
		t.printLine("warning: " + ev.Message)
	case EventError:
		t.printLine(fmt.Sprintf("error: %s: %v", ev.Path, ev.Err))
	case EventSummary:
		t.printSummary(ev.Summary)
	case EventPlanStart:
		t.execTotal = ev.PlanTotal
		t.execDone = 0
		if t.execTotal > 0 {
			t.bar = progress.New(true, t.execTotal)
		}
	case EventActionDone:
		if t.execTotal > 0 {
			t.execDone++
			t.bar.Set(uint64(t.execDone))
		}
	}
}

// printLine clears the progress bar's line before writing, using the
// "\r\033[K" idiom, so the next bar redraw doesn't collide with the
// message.
func (t *TerminalSink) printLine(line string) {
	fmt.Fprintf(os.Stderr, "\r\033[K%s\n", line)
}

func (t *TerminalSink) printSummary(s *Summary) {
	if s == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "\r\033[K✔ copied %d, overwritten %d, deleted %d, skipped %d, conflicts %d (%s transferred)\n",
		s.Copied, s.Overwritten, s.Deleted, s.Skipped, s.Conflicts, humanize.IBytes(uint64(s.BytesCopied)))
	for _, err := range s.Errors {
		fmt.Fprintf(os.Stderr, "  error: %v\n", err)
	}
}

func (t *TerminalSink) Close() {
	if t.execTotal > 0 {
		t.bar.Finish(execStats{done: t.execDone, total: t.execTotal})
		return
	}
	t.bar.Finish(scanStats{start: t.start})
}

// LineSink is a non-interactive sink for piped/non-tty output: no bar, just
// one line per notable event, to the given writer.
type LineSink struct {
	out interface {
		Write(p []byte) (n int, err error)
	}
}

// NewLineSink creates a sink that writes one line per event to w (typically
// os.Stderr).
func NewLineSink(w interface{ Write([]byte) (int, error) }) *LineSink {
	return &LineSink{out: w}
}

func (l *LineSink) Handle(ev Event) {
	switch ev.Kind {
	case EventFileComplete:
		fmt.Fprintf(l.out, "done: %s\n", ev.Path)
	case EventConflict:
		fmt.Fprintf(l.out, "conflict: %s: %s\n", ev.Path, ev.ConflictReason)
	case EventInfo:
		fmt.Fprintf(l.out, "%s\n", ev.Message)
	case EventWarning:
		fmt.Fprintf(l.out, "warning: %s\n", ev.Message)
	case EventError:
		fmt.Fprintf(l.out, "error: %s: %v\n", ev.Path, ev.Err)
	case EventSummary:
		l.printSummary(ev.Summary)
	}
}

func (l *LineSink) printSummary(s *Summary) {
	if s == nil {
		return
	}
	fmt.Fprintf(l.out, "copied %d, overwritten %d, deleted %d, skipped %d, conflicts %d (%s transferred)\n",
		s.Copied, s.Overwritten, s.Deleted, s.Skipped, s.Conflicts, humanize.IBytes(uint64(s.BytesCopied)))
	for _, err := range s.Errors {
		fmt.Fprintf(l.out, "  error: %v\n", err)
	}
}

func (l *LineSink) Close() {}
