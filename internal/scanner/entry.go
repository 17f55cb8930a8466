package scanner

import (
	"os"
	"path"
	"syscall"

	"github.com/ivoronin/kopy/internal/types"
)

// newFileEntry builds a types.FileEntry from a stat result and a relative
// path built by joinRel, running it through types.NormalizePath first —
// the one place a path is assigned to a FileEntry, so it's the one place
// the "never escapes root" invariant needs enforcing. joinRel's output is
// expected to already satisfy it; an error here means the walker handed us
// something it shouldn't have, and the entry is dropped rather than
// trusted.
func newFileEntry(relPath string, info os.FileInfo, isSymlink bool, symlinkTarget string) (*types.FileEntry, error) {
	norm, err := types.NormalizePath(relPath)
	if err != nil {
		return nil, err
	}

	var mode uint32
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		mode = uint32(st.Mode) & 0o7777 //nolint:unconvert // platform-dependent type
	} else {
		mode = uint32(info.Mode().Perm())
	}

	size := info.Size()
	if isSymlink {
		size = 0
	}

	return &types.FileEntry{
		Path:          norm,
		Size:          size,
		ModTime:       info.ModTime(),
		Mode:          mode,
		IsSymlink:     isSymlink,
		SymlinkTarget: symlinkTarget,
	}, nil
}

// isSkippableSpecialFile reports whether info describes a named pipe,
// socket, or device file — kinds the scanner warns about and skips rather
// than records.
func isSkippableSpecialFile(info os.FileInfo) bool {
	m := info.Mode()
	return m&(os.ModeNamedPipe|os.ModeSocket|os.ModeDevice|os.ModeCharDevice) != 0
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}
