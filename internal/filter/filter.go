// Package filter compiles include/exclude glob patterns plus the contents of
// ignore files found at a scan root into a matcher that classifies a
// relative path as kept or skipped.
//
// Matching is done with github.com/bmatcuk/doublestar/v4 for "**" recursive
// matching against forward-slash relative paths (as opposed to
// path/filepath.Match, which doesn't support "**" and is anchored to OS
// path semantics).
package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// pattern is one parsed exclude/include rule.
type pattern struct {
	raw           string
	directoryOnly bool // trailing "/" in the source pattern
	matchLeaf     bool // pattern has no "/" of its own; also match the base name
	glob          string
}

// newPattern parses a single glob pattern, validating it against doublestar.
// A trailing "/" restricts the pattern to directories only and is stripped
// before compilation.
func newPattern(raw string) (*pattern, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	clean := raw
	directoryOnly := false
	if strings.HasSuffix(clean, "/") && len(clean) > 1 {
		directoryOnly = true
		clean = strings.TrimSuffix(clean, "/")
	}
	// Validate by attempting a match against a throwaway path; doublestar's
	// only failure mode is a malformed pattern, so this surfaces it without
	// needing a separate validation entry point.
	if _, err := doublestar.Match(clean, "a"); err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", raw, err)
	}
	return &pattern{
		raw:           raw,
		directoryOnly: directoryOnly,
		matchLeaf:     !strings.Contains(clean, "/"),
		glob:          clean,
	}, nil
}

func (p *pattern) matches(relPath string, isDir bool) bool {
	if p.directoryOnly && !isDir {
		return false
	}
	if ok, _ := doublestar.Match(p.glob, relPath); ok {
		return true
	}
	if p.matchLeaf {
		if ok, _ := doublestar.Match(p.glob, path.Base(relPath)); ok {
			return true
		}
	}
	return false
}

// Filter classifies scanned paths as kept or skipped. A path is kept iff it
// does not match any exclude pattern, or it matches an include pattern
// (include always wins). Pattern evaluation itself is infallible — all
// fallibility is resolved at Compile time.
type Filter struct {
	excludes []*pattern
	includes []*pattern
}

// Compile builds a Filter from explicit exclude/include glob lists plus the
// line-oriented contents of any ignoreFiles (".gitignore"/".kopyignore"
// style: blank lines and lines starting with "#" are skipped, a leading "!"
// negates a pattern by routing it into the include list instead). Pattern
// compilation failures return a non-nil error, failing the run with a
// ConfigError.
func Compile(exclude, include []string, ignoreFiles ...io.Reader) (*Filter, error) {
	f := &Filter{}

	for _, raw := range exclude {
		p, err := newPattern(raw)
		if err != nil {
			return nil, fmt.Errorf("exclude pattern: %w", err)
		}
		f.excludes = append(f.excludes, p)
	}
	for _, raw := range include {
		p, err := newPattern(raw)
		if err != nil {
			return nil, fmt.Errorf("include pattern: %w", err)
		}
		f.includes = append(f.includes, p)
	}

	for _, r := range ignoreFiles {
		if err := f.loadIgnoreFile(r); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// CompileAt builds a Filter the way the orchestrator does it in practice:
// explicit exclude/include lists plus whatever .gitignore/.kopyignore files
// exist at root.
func CompileAt(root string, exclude, include []string) (*Filter, error) {
	var readers []io.Reader
	for _, name := range []string{".gitignore", ".kopyignore"} {
		f, err := os.Open(path.Join(root, name))
		if err != nil {
			continue // absence is not an error
		}
		defer func() { _ = f.Close() }()
		readers = append(readers, f)
	}
	return Compile(exclude, include, readers...)
}

func (f *Filter) loadIgnoreFile(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		negated := false
		if strings.HasPrefix(line, "!") {
			negated = true
			line = line[1:]
		}
		p, err := newPattern(line)
		if err != nil {
			return fmt.Errorf("ignore file pattern %q: %w", line, err)
		}
		if negated {
			f.includes = append(f.includes, p)
		} else {
			f.excludes = append(f.excludes, p)
		}
	}
	return scanner.Err()
}

// Keep reports whether relPath (forward-slash, relative to the scan root)
// should be kept. isDir distinguishes directory entries for directory-only
// patterns.
func (f *Filter) Keep(relPath string, isDir bool) bool {
	excluded := false
	for _, p := range f.excludes {
		if p.matches(relPath, isDir) {
			excluded = true
			break
		}
	}
	if !excluded {
		return true
	}
	for _, p := range f.includes {
		if p.matches(relPath, isDir) {
			return true
		}
	}
	return false
}
