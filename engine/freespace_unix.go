//go:build linux || darwin

package engine

import "golang.org/x/sys/unix"

// freeBytes is a best-effort free-space probe for ExportImportPrepare's
// descriptor (spec §4.6: "enough free space (best-effort)"). A failed
// probe yields 0 rather than an error -- it's advisory only.
func freeBytes(path string) uint64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize)
}
