// Package blobstore implements spec §4.3 (C3): a pure content-addressed
// sidecar keyed by a 40-char hex hash, stored at
// `<root>/blobs/<hash[0:2]>/<hash[2:]>`.
//
// Grounded on warehouse/impl/kvfs/kvfs.go's content-addressed ("ca+file")
// mode and warehouse/util/util.go's ChunkifyHash, adapted from a 3/3/rest
// base58 split to the 2/38 hex split spec.md §3/§4.3 specifies.
package blobstore

import (
	"io"
	"os"
	"path/filepath"

	"github.com/polydawn/vault/fsutil"
	"github.com/polydawn/vault/vaulterr"
)

const hashLen = 40

// Dir returns the `<root>/blobs` subtree.
func Dir(root string) string {
	return filepath.Join(root, "blobs")
}

// Path returns the on-disk path for the blob with the given hash.
func Path(root, hash string) (string, error) {
	if len(hash) != hashLen {
		return "", vaulterr.Errorf(vaulterr.Logic, "blobstore: wrong hash length %d (want %d): %q", len(hash), hashLen, hash)
	}
	return filepath.Join(Dir(root), hash[:2], hash[2:]), nil
}

// Exists reports whether a blob is already present.
func Exists(root, hash string) (bool, error) {
	path, err := Path(root, hash)
	if err != nil {
		return false, err
	}
	return fsutil.NewStat(path).Exists(), nil
}

// Put writes src's bytes into the blob store under hash, creating the
// `<aa>` prefix directory owner-only (0700) first. Per spec §4.3, this is
// write-idempotent: if the blob already exists, the write is skipped
// entirely (the name guarantees content equality).
func Put(root, hash string, src io.Reader, perms os.FileMode) error {
	path, err := Path(root, hash)
	if err != nil {
		return err
	}
	if fsutil.NewStat(path).Exists() {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return vaulterr.WrapPath(vaulterr.IO, dir, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perms)
	if err != nil {
		if os.IsExist(err) {
			// Raced with another writer placing the same content; since the
			// name is the content hash, whatever is there is equivalent.
			return nil
		}
		return vaulterr.WrapPath(vaulterr.IO, path, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		os.Remove(path)
		return vaulterr.WrapPath(vaulterr.IO, path, err)
	}
	return nil
}

// PutFile copies the file at srcPath into the blob store under hash,
// preserving byte-for-byte content via fsutil's chunked mmap copy and
// srcPath's own permission bits.
func PutFile(root, hash, srcPath string) error {
	path, err := Path(root, hash)
	if err != nil {
		return err
	}
	if fsutil.NewStat(path).Exists() {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return vaulterr.WrapPath(vaulterr.IO, dir, err)
	}
	srcStat := fsutil.NewStat(srcPath)
	if !srcStat.Exists() {
		return vaulterr.Errorf(vaulterr.IO, "blobstore: source %q does not exist", srcPath)
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return vaulterr.WrapPath(vaulterr.IO, srcPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, srcStat.Mode().Perm())
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return vaulterr.WrapPath(vaulterr.IO, path, err)
	}
	defer dst.Close()

	if err := fsutil.CopyBytes(dst, src, srcStat.Size()); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// Open opens the blob with the given hash for reading.
func Open(root, hash string) (*os.File, error) {
	path, err := Path(root, hash)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vaulterr.Errorf(vaulterr.NotFound, "blobstore: blob %q not found", hash)
		}
		return nil, vaulterr.WrapPath(vaulterr.IO, path, err)
	}
	return f, nil
}
