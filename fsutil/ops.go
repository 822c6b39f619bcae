package fsutil

import (
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/polydawn/vault/vaulterr"
)

// CopyUtime copies atime/mtime from src onto target, with nanosecond
// precision where available, and without following target if it is a
// symlink -- per spec §4.2 ("must not follow symlinks when the target is a
// symlink"). Grounded on file-util.cpp's copy_utime(string,Stat) overload.
func CopyUtime(target string, src *Stat) error {
	if src.info == nil {
		return vaulterr.Errorf(vaulterr.IO, "copy_utime: source %q has no stat info", src.Path)
	}
	atime := atimeOf(src.info)
	mtime := src.info.ModTime()
	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	var err error
	if src.Type() == TypeSymlink {
		err = unix.UtimesNanoAt(unix.AT_FDCWD, target, ts, unix.AT_SYMLINK_NOFOLLOW)
	} else {
		err = unix.UtimesNanoAt(unix.AT_FDCWD, target, ts, 0)
	}
	if err != nil {
		return vaulterr.WrapPath(vaulterr.IO, target, err)
	}
	return nil
}

// Symlink creates a symlink at link pointing at target, matching
// file-util.hpp's symlink(tgt, link) signature order.
func Symlink(target, link string) error {
	if err := os.Symlink(target, link); err != nil {
		return vaulterr.WrapPath(vaulterr.IO, link, err)
	}
	return nil
}

// Readlink reads the raw link target (not resolved/joined against anything).
func Readlink(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", vaulterr.WrapPath(vaulterr.IO, path, err)
	}
	return target, nil
}

// Unlink removes a single path (used when a destination exists as a
// symlink and must be replaced with a regular file, spec §4.4).
func Unlink(path string) error {
	if err := os.Remove(path); err != nil {
		return vaulterr.WrapPath(vaulterr.IO, path, err)
	}
	return nil
}

// Mkdir creates a single directory (non-recursive) with the given mode.
func Mkdir(path string, mode os.FileMode) error {
	if err := os.Mkdir(path, mode); err != nil && !os.IsExist(err) {
		return vaulterr.WrapPath(vaulterr.IO, path, err)
	}
	return nil
}

// chunkSize is the mmap copy window spec §4.2 requires ("chunks in ≤ 1 MiB
// windows").
const chunkSize = 1 << 20 // 1 MiB

// CopyBytes copies exactly n bytes from src to dst, mmap'ing each side in
// ≤1MiB windows and pre-sizing the destination to n bytes first. Grounded
// on file-util.cpp's `copy(FdHandle&, FdHandle&, size_t, ErrorCallback)` and
// cor::git::Tree::blob_add's chunked mmap loop.
func CopyBytes(dst, src *os.File, n int64) error {
	if n == 0 {
		return nil
	}
	if err := dst.Truncate(n); err != nil {
		return vaulterr.WrapPath(vaulterr.IO, dst.Name(), err)
	}
	var off int64
	for off < n {
		size := int64(chunkSize)
		if remaining := n - off; remaining < size {
			size = remaining
		}
		if err := copyWindow(dst, src, off, size); err != nil {
			return err
		}
		off += size
	}
	return nil
}

func copyWindow(dst, src *os.File, off, size int64) error {
	srcMap, err := unix.Mmap(int(src.Fd()), off, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return vaulterr.WrapPath(vaulterr.IO, src.Name(), err)
	}
	defer unix.Munmap(srcMap)

	dstMap, err := unix.Mmap(int(dst.Fd()), off, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return vaulterr.WrapPath(vaulterr.IO, dst.Name(), err)
	}
	defer unix.Munmap(dstMap)

	copy(dstMap, srcMap)
	return nil
}

// CopyStream copies all of src into dst using plain buffered IO, for cases
// where the byte count isn't known up front and mmap's pre-sizing
// requirement doesn't apply.
func CopyStream(dst io.Writer, src io.Reader) (int64, error) {
	n, err := io.Copy(dst, src)
	if err != nil {
		return n, vaulterr.Errorf(vaulterr.IO, "copy stream: %s", err)
	}
	return n, nil
}

func atimeOf(info os.FileInfo) time.Time {
	return atimeSys(info)
}
