package registry

import (
	"fmt"

	"github.com/polydawn/vault/internal/vlog"
	"github.com/polydawn/vault/vaulterr"
)

// VaultRegistry composes a *Config with the VCS adapter bookkeeping spec
// §4.5 describes for a vault's own unit registry: `set` stages and commits
// `.modules`, `rm` stages and commits the removal, and a remove that
// leaves the tree clean (i.e. nothing was actually tracked) is a logic
// error, since it means the registry's in-memory and on-disk state
// disagree about what was there.
type VaultRegistry struct {
	*Config
	adapter vaultAdapter
	log     *vlog.Logger
}

// vaultAdapter is the minimal vcsadapter.Adapter surface VaultRegistry
// needs; defined here (rather than depending on vcsadapter's AddMode type)
// so callers pass their own *vcsadapter.Adapter without an import cycle.
type vaultAdapter interface {
	AddAllUnder(path string) error
	AddUpdateOnly(path string) error
	Status(path string) (bool, error)
	CommitTagged(msg string) (string, error)
}

// NewVaultRegistry loads the on-disk unit registry at dir and pairs it with
// adapter for the add+commit choreography spec §4.5 requires.
func NewVaultRegistry(dir string, adapter vaultAdapter, log *vlog.Logger) (*VaultRegistry, error) {
	cfg, err := Load(dir, log)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = vlog.Default()
	}
	return &VaultRegistry{Config: cfg, adapter: adapter, log: log}, nil
}

// Set registers or updates unit u, then stages `.modules` (All) and commits
// "+<name>" iff the tree is actually dirty afterward.
func (r *VaultRegistry) Set(u Unit) (changed bool, err error) {
	changed, err = r.Config.Set(u)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	if err := r.adapter.AddAllUnder(r.Root()); err != nil {
		return true, err
	}
	clean, err := r.adapter.Status(r.Root())
	if err != nil {
		return true, err
	}
	if !clean {
		if _, err := r.adapter.CommitTagged(fmt.Sprintf("+%s", u.Name)); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Rm deletes the named unit's file, stages the removal (Update-only, since
// the file no longer exists to be added), and commits "-<name>" iff the
// tree is dirty. A remove that leaves the tree clean after staging a
// deletion is a Logic error: it means the file the registry thought it was
// tracking was never actually committed.
func (r *VaultRegistry) Rm(name string) (string, error) {
	deleted, err := r.Config.Rm(name)
	if err != nil {
		return "", err
	}
	if deleted == "" {
		return "", nil
	}
	if err := r.adapter.AddUpdateOnly(unitPath(r.Root(), name)); err != nil {
		return "", err
	}
	clean, err := r.adapter.Status(r.Root())
	if err != nil {
		return "", err
	}
	if clean {
		return "", vaulterr.Errorf(vaulterr.Logic,
			"removing unit %q left the tree clean: nothing was tracked to remove", name)
	}
	if _, err := r.adapter.CommitTagged(fmt.Sprintf("-%s", name)); err != nil {
		return "", err
	}
	return deleted, nil
}
