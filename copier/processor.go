package copier

import (
	"container/list"
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/polydawn/vault/blobstore"
	"github.com/polydawn/vault/events"
	"github.com/polydawn/vault/fsutil"
	"github.com/polydawn/vault/internal/vlog"
	"github.com/polydawn/vault/vaulterr"
)

// job is one queued (options, action, src, dst) tuple, per spec §3's
// "Operation context". Dst is always the *containing directory*; the
// concrete target path is dst/basename(src), computed fresh each time the
// item is popped (so a Deref requeue can recompute it against a new src).
type job struct {
	Options
	Action Action
	Src    string
	Dst    string
}

func (j job) targetPath() string {
	return filepath.Join(j.Dst, filepath.Base(j.Src))
}

type visitKey struct {
	SrcDev, SrcIno, DstDev, DstIno uint64
}

// Processor runs one directory-tree copy, per spec §4.4's traversal. It is
// single-use: construct with New, Add the root job(s), then Execute.
type Processor struct {
	items   *list.List
	visited map[visitKey]bool
	log     *vlog.Logger
	mon     events.Monitor
	op      events.Operation
	unit    string
}

// New creates a Processor that reports progress through mon tagged with op
// and unit (unit may be empty for non-unit copies like export/import).
func New(mon events.Monitor, op events.Operation, unit string, log *vlog.Logger) *Processor {
	if log == nil {
		log = vlog.Default()
	}
	return &Processor{
		items:   list.New(),
		visited: map[visitKey]bool{},
		log:     log,
		mon:     mon,
		op:      op,
		unit:    unit,
	}
}

// Add seeds the work queue with one (src, dstDir) copy, where the copied
// entry will land at dstDir/basename(src).
func (p *Processor) Add(opts Options, action Action, src, dstDir string) {
	p.items.PushBack(job{Options: opts, Action: action, Src: src, Dst: dstDir})
}

func (p *Processor) pushFront(j job) { p.items.PushFront(j) }

// Execute drains the work queue, depth-first (front-insertion of children
// finishes a subtree before moving on to siblings queued earlier).
func (p *Processor) Execute() error {
	for p.items.Len() > 0 {
		front := p.items.Front()
		j := p.items.Remove(front).(job)
		if err := p.step(j); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) step(j job) error {
	dstPath := j.targetPath()
	srcStat := fsutil.NewStat(j.Src)
	dstStat := fsutil.NewStat(dstPath)

	if key, ok := visitKeyOf(srcStat, dstStat); ok {
		if p.visited[key] {
			return nil
		}
		defer func() { p.visited[key] = true }()
	}

	switch srcStat.Type() {
	case fsutil.TypeSymlink:
		return p.stepSymlink(j, srcStat, dstStat, dstPath)
	case fsutil.TypeDir:
		return p.stepDir(j, srcStat, dstStat, dstPath)
	case fsutil.TypeFile:
		return p.stepFile(j, srcStat, dstStat, dstPath)
	case fsutil.TypeAbsent:
		return vaulterr.Errorf(vaulterr.IO, "copier: source %q does not exist", j.Src)
	default:
		p.log.Warnf("copier: no handler for %s (%s), skipping", j.Src, srcStat.Type())
		return nil
	}
}

func visitKeyOf(src, dst *fsutil.Stat) (visitKey, bool) {
	srcID, srcOK := src.ID()
	dstID, dstOK := dst.ID()
	if !srcOK || !dstOK {
		return visitKey{}, false
	}
	return visitKey{srcID.Dev, srcID.Ino, dstID.Dev, dstID.Ino}, true
}

func (p *Processor) stepSymlink(j job, srcStat, dstStat *fsutil.Stat, dstPath string) error {
	if j.Deref == DerefYes {
		target, err := fsutil.Readlink(j.Src)
		if err != nil {
			return err
		}
		resolved := target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(j.Src), target)
		}
		next := j
		next.Src = resolved
		p.pushFront(next)
		return nil
	}
	target, err := fsutil.Readlink(j.Src)
	if err != nil {
		return err
	}
	if dstStat.Exists() {
		if j.Overwrite != OverwriteYes {
			return nil
		}
		if err := fsutil.Unlink(dstPath); err != nil {
			return err
		}
	}
	return fsutil.Symlink(target, dstPath)
}

func (p *Processor) stepDir(j job, srcStat, dstStat *fsutil.Stat, dstPath string) error {
	switch dstStat.Type() {
	case fsutil.TypeAbsent:
		if err := fsutil.Mkdir(dstPath, srcStat.Mode().Perm()); err != nil {
			return err
		}
	case fsutil.TypeDir:
		if j.Overwrite == OverwriteYes {
			if err := fsutil.CopyUtime(dstPath, srcStat); err != nil {
				return err
			}
		}
	default:
		return vaulterr.Errorf(vaulterr.IO, "copier: destination %q exists and is not a directory", dstPath)
	}

	if j.Depth == Shallow {
		p.log.Debugf("copier: shallow depth, skipping contents of %q", j.Src)
		return nil
	}

	entries, err := os.ReadDir(j.Src)
	if err != nil {
		return vaulterr.WrapPath(vaulterr.IO, j.Src, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	// Push in reverse so that, after all front-pushes, the children end up
	// queued in their original enumeration order.
	for i := len(names) - 1; i >= 0; i-- {
		p.pushFront(job{
			Options: j.Options,
			Action:  j.Action,
			Src:     filepath.Join(j.Src, names[i]),
			Dst:     dstPath,
		})
	}
	p.mon.Progress(p.op, map[string]interface{}{"unit": p.unit, "stage": "dir", "path": j.Src})
	return nil
}

func (p *Processor) stepFile(j job, srcStat, dstStat *fsutil.Stat, dstPath string) error {
	if dstStat.Exists() {
		if j.Overwrite != OverwriteYes {
			return nil
		}
		if dstStat.Type() == fsutil.TypeSymlink {
			if err := fsutil.Unlink(dstPath); err != nil {
				return err
			}
		}
	}

	switch j.Data {
	case Compact:
		if err := copyCompact(j.Src, dstPath, srcStat); err != nil {
			return err
		}
	case Big:
		switch j.Action {
		case Export:
			if err := copyBigExport(j.BlobRoot, j.Src, dstPath, srcStat); err != nil {
				return err
			}
		case Import:
			if err := copyBigImport(j.BlobRoot, j.Src, dstPath); err != nil {
				return err
			}
		}
	}

	if err := fsutil.CopyUtime(dstPath, srcStat); err != nil {
		return err
	}
	p.mon.Progress(p.op, map[string]interface{}{"unit": p.unit, "stage": "file", "path": j.Src})
	return nil
}

func copyCompact(srcPath, dstPath string, srcStat *fsutil.Stat) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return vaulterr.WrapPath(vaulterr.IO, srcPath, err)
	}
	defer src.Close()
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, srcStat.Mode().Perm())
	if err != nil {
		return vaulterr.WrapPath(vaulterr.IO, dstPath, err)
	}
	defer dst.Close()
	return fsutil.CopyBytes(dst, src, srcStat.Size())
}

// copyBigExport hashes srcPath, lands its bytes in the blob store under
// that hash if not already present, and writes a reference file at
// dstPath containing the hash, preserving srcPath's permission bits.
func copyBigExport(blobRoot, srcPath, dstPath string, srcStat *fsutil.Stat) error {
	hash, err := hashFile(srcPath)
	if err != nil {
		return err
	}
	exists, err := blobstore.Exists(blobRoot, hash)
	if err != nil {
		return err
	}
	if !exists {
		if err := blobstore.PutFile(blobRoot, hash, srcPath); err != nil {
			return err
		}
	}
	return os.WriteFile(dstPath, []byte(hash+"\n"), srcStat.Mode().Perm())
}

// copyBigImport reads the hash out of the reference file at srcPath,
// copies the matching blob's bytes to dstPath, and applies srcPath's own
// permission bits (the reference file's), per spec §4.4.
func copyBigImport(blobRoot, srcPath, dstPath string) error {
	refStat := fsutil.NewStat(srcPath)
	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return vaulterr.WrapPath(vaulterr.IO, srcPath, err)
	}
	hash := strings.TrimSpace(string(raw))
	if len(hash) != 40 {
		return vaulterr.Errorf(vaulterr.IO, "copier: %q is not a valid blob reference (got %d chars)", srcPath, len(hash))
	}
	blob, err := blobstore.Open(blobRoot, hash)
	if err != nil {
		return err
	}
	defer blob.Close()
	blobInfo, err := blob.Stat()
	if err != nil {
		return vaulterr.WrapPath(vaulterr.IO, srcPath, err)
	}
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, refStat.Mode().Perm())
	if err != nil {
		return vaulterr.WrapPath(vaulterr.IO, dstPath, err)
	}
	defer dst.Close()
	return fsutil.CopyBytes(dst, blob, blobInfo.Size())
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", vaulterr.WrapPath(vaulterr.IO, path, err)
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", vaulterr.WrapPath(vaulterr.IO, path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
