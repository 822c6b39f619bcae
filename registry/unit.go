// Package registry implements spec §4.5 (C5): the on-disk registry of
// backup units under `<root>/.modules/<name>.json`, plus a vault-level
// wrapper that keeps that registry's changes in sync with the VCS adapter.
//
// Grounded on original_source vault_config.cpp's Unit/Config/Vault classes.
package registry

import (
	"path/filepath"
)

// Unit is one registered backup unit: a named handler script plus the
// options passed through to it on export/import.
type Unit struct {
	Name         string            `json:"name"`
	Script       string            `json:"script"`
	Root         string            `json:"root,omitempty"`
	Home         string            `json:"home,omitempty"`
	Options      map[string]string `json:"options,omitempty"`
	IsUnitConfig bool              `json:"is_unit_config,omitempty"`
}

// hasRequiredFields reports whether u carries the minimum fields (name,
// script) to be considered a valid, settable unit configuration, per spec
// §4.5/§6.
func (u Unit) hasRequiredFields() bool {
	return u.Name != "" && u.Script != ""
}

func (u Unit) equal(other Unit) bool {
	if u.Name != other.Name || u.Script != other.Script || u.Root != other.Root || u.Home != other.Home {
		return false
	}
	if len(u.Options) != len(other.Options) {
		return false
	}
	for k, v := range u.Options {
		if other.Options[k] != v {
			return false
		}
	}
	return true
}

const unitsDirName = ".modules"

// DefaultUnitsDir returns `<root>/.modules`, mirroring config/config.go's
// convention of deriving well-known subdirectories from a single root.
func DefaultUnitsDir(root string) string {
	return filepath.Join(root, unitsDirName)
}

func unitPath(dir, name string) string {
	return filepath.Join(dir, name+".json")
}
