package engine

import (
	"os"
	"path/filepath"

	"github.com/polydawn/vault/copier"
	"github.com/polydawn/vault/events"
	"github.com/polydawn/vault/fsutil"
	"github.com/polydawn/vault/vaulterr"
)

// ExportImportAction distinguishes the two directions ExportImportPrepare
// and ExportImportExecute can run.
type ExportImportAction int

const (
	ExternalExport ExportImportAction = iota // vault -> external path
	ExternalImport                           // external path -> vault
)

// Descriptor is what ExportImportPrepare returns for the caller to confirm
// before ExportImportExecute actually moves bytes.
type Descriptor struct {
	Path           string
	Action         ExportImportAction
	LooksLikeVault bool
	FreeBytes      uint64
}

// ExportImportPrepare inspects path: it must be a directory (created if
// absent for export), and for import must look like a previously exported
// vault root (has a blobs/ subtree). Free space is checked best-effort.
func (e *Engine) ExportImportPrepare(action ExportImportAction, path string) (Descriptor, error) {
	if err := e.requireConnected(); err != nil {
		return Descriptor{}, err
	}
	st := fsutil.NewStat(path)
	if !st.Exists() {
		if action == ExternalImport {
			return Descriptor{}, vaulterr.Errorf(vaulterr.Config, "export-import prepare: %q does not exist", path)
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return Descriptor{}, wrapIOErr(path, err)
		}
		st.Refresh()
	}
	if st.Type() != fsutil.TypeDir {
		return Descriptor{}, vaulterr.Errorf(vaulterr.Config, "export-import prepare: %q is not a directory", path)
	}

	blobsSt := fsutil.NewStat(filepath.Join(path, "blobs"))
	desc := Descriptor{
		Path:           path,
		Action:         action,
		LooksLikeVault: blobsSt.Type() == fsutil.TypeDir,
		FreeBytes:      freeBytes(path),
	}
	if action == ExternalImport && !desc.LooksLikeVault {
		return desc, vaulterr.Errorf(vaulterr.Config, "export-import prepare: %q does not look like an exported vault (no blobs/ subtree)", path)
	}
	return desc, nil
}

// ExportImportExecute runs the copier in recursive mode between the vault
// root and path, with Data=Big so large files route through whichever
// side is the source vault's blob store. It copies srcRoot's *contents*
// into dstRoot (not srcRoot itself into dstRoot), so the target ends up
// holding the same top-level layout as the source rather than a nested
// copy named after the source's basename -- the §8 "export then import
// into a fresh vault" round trip requires landing exactly at dstRoot.
func (e *Engine) ExportImportExecute(mon events.Monitor, desc Descriptor) error {
	if err := e.requireConnected(); err != nil {
		return err
	}
	var srcRoot, dstRoot, blobRoot string
	switch desc.Action {
	case ExternalExport:
		srcRoot, dstRoot, blobRoot = e.root, desc.Path, e.root
	case ExternalImport:
		srcRoot, dstRoot, blobRoot = desc.Path, e.root, desc.Path
	}

	entries, err := os.ReadDir(srcRoot)
	if err != nil {
		return wrapIOErr(srcRoot, err)
	}

	opts := copier.Options{BlobRoot: blobRoot, Data: copier.Big, Depth: copier.Recursive}
	action := copier.Export
	if desc.Action == ExternalImport {
		action = copier.Import
	}

	p := copier.New(mon, events.OpExportImportExecute, "", e.log)
	for _, entry := range entries {
		p.Add(opts, action, filepath.Join(srcRoot, entry.Name()), dstRoot)
	}
	if err := p.Execute(); err != nil {
		mon.Error(events.OpExportImportExecute, map[string]interface{}{"msg": err.Error()})
		return err
	}
	mon.Done(events.OpExportImportExecute, map[string]interface{}{"path": desc.Path})
	return nil
}
