// Package fsutil provides the stat/path primitives spec §4.2 (C2) needs:
// file-type classification, mtime copying, symlink read/write, and a
// chunked mmap-based byte copy. It operates directly on OS path strings,
// unlike the teacher's fs.FS/AbsolutePath abstraction, because vault only
// ever mediates a single local filesystem (see SPEC_FULL.md's C2 section).
package fsutil

import (
	"os"

	"github.com/polydawn/vault/vaulterr"
)

// FileType classifies a path the way spec §4.2 enumerates it.
type FileType string

const (
	TypeFile    FileType = "file"
	TypeDir     FileType = "dir"
	TypeSymlink FileType = "symlink"
	TypeSocket  FileType = "socket"
	TypeChar    FileType = "char"
	TypeBlock   FileType = "block"
	TypeFifo    FileType = "fifo"
	TypeAbsent  FileType = "absent"
	TypeUnknown FileType = "unknown"
)

// Stat is a lazily-refreshed lstat snapshot of a path, mirroring the
// original source's StatBase/Stat split (file-util.hpp): callers ask for
// the type, id, size, mode as needed and can Refresh() to re-stat.
type Stat struct {
	Path string

	exists bool
	typ    FileType
	info   os.FileInfo
	err    error
}

// NewStat lstats path immediately.
func NewStat(path string) *Stat {
	s := &Stat{Path: path}
	s.Refresh()
	return s
}

// Refresh re-runs lstat on Path, updating the cached type/info.
func (s *Stat) Refresh() {
	info, err := os.Lstat(s.Path)
	switch {
	case err == nil:
		s.exists = true
		s.info = info
		s.typ = classify(info.Mode())
		s.err = nil
	case os.IsNotExist(err):
		s.exists = false
		s.info = nil
		s.typ = TypeAbsent
		s.err = nil
	default:
		s.exists = false
		s.info = nil
		s.typ = TypeUnknown
		s.err = vaulterr.WrapPath(vaulterr.IO, s.Path, err)
	}
}

func classify(mode os.FileMode) FileType {
	switch {
	case mode&os.ModeSymlink != 0:
		return TypeSymlink
	case mode.IsDir():
		return TypeDir
	case mode&os.ModeSocket != 0:
		return TypeSocket
	case mode&os.ModeCharDevice != 0:
		return TypeChar
	case mode&os.ModeDevice != 0:
		return TypeBlock
	case mode&os.ModeNamedPipe != 0:
		return TypeFifo
	case mode.IsRegular():
		return TypeFile
	default:
		return TypeUnknown
	}
}

// Exists reports whether the path existed as of the last Refresh.
func (s *Stat) Exists() bool { return s.exists }

// Err returns a stat error that wasn't simply "does not exist", nil
// otherwise. Per spec §4.2, Unknown type classification is itself treated
// as a failure by callers that require a known file type.
func (s *Stat) Err() error { return s.err }

// Type returns the classified file type.
func (s *Stat) Type() FileType { return s.typ }

// Mode returns the raw permission+mode bits, or 0 if absent.
func (s *Stat) Mode() os.FileMode {
	if s.info == nil {
		return 0
	}
	return s.info.Mode()
}

// Size returns the size lstat reports, or 0 if absent. For non-regular
// entries (directories, symlinks) this is the filesystem's own size value.
func (s *Stat) Size() int64 {
	if s.info == nil {
		return 0
	}
	return s.info.Size()
}

// ID returns the (device, inode) pair used to break cycles in the
// traversal (spec §3's "visited set").
func (s *Stat) ID() (FileID, bool) {
	if s.info == nil {
		return FileID{}, false
	}
	return fileID(s.info), true
}

// FileID is the (device, inode) identity of a file, platform-specific
// underneath (see filetype_unix.go).
type FileID struct {
	Dev uint64
	Ino uint64
}
