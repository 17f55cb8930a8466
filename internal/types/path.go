// Package types provides the shared path and entry model used across kopy:
// relative-path normalization, the per-file record, and the tree container
// that scanning produces and diffing consumes.
package types

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath cleans a relative path fragment (already forward-slash, as
// produced on a POSIX filesystem) into the canonical form stored in a
// FileEntry. It rejects paths that would escape the scan root (".."
// components) or that are absolute.
func NormalizePath(p string) (string, error) {
	clean := path.Clean(p)
	if clean == "." {
		return "", fmt.Errorf("empty relative path")
	}
	if strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("path %q is absolute", p)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path %q escapes root", p)
	}
	return clean, nil
}
