package copier

import (
	"github.com/polydawn/vault/events"
	"github.com/polydawn/vault/internal/vlog"
)

// CopyTree runs a full directory-tree copy of src into dstDir (landing at
// dstDir/basename(src)) under opts/action, reporting progress via mon. It
// is the convenience entry point engine uses for per-unit export/import and
// for ExportImportExecute's whole-vault copy.
func CopyTree(opts Options, action Action, src, dstDir string, mon events.Monitor, op events.Operation, unit string, log *vlog.Logger) error {
	p := New(mon, op, unit, log)
	p.Add(opts, action, src, dstDir)
	return p.Execute()
}
