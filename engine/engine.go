// Package engine implements spec §4.6 (C6): the snapshot engine that
// orchestrates backup/restore/remove/export-import across registered units,
// manages the staging-branch lifecycle, commits atomically, and emits
// progress through an events.Monitor.
//
// Grounded on original_source vault-sync.cpp for the staging/commit/tag
// choreography and qml/Vault/vault.hpp's Operation enum for the operation
// set and event shape.
package engine

import (
	"os"
	"path/filepath"

	"github.com/polydawn/vault/events"
	"github.com/polydawn/vault/internal/vlog"
	"github.com/polydawn/vault/registry"
	"github.com/polydawn/vault/vcsadapter"
)

// Engine is a single vault's orchestrator. It is not safe for concurrent
// use by itself -- spec §5 requires a single worker (see the worker
// package) to serialize all calls into one at a time.
type Engine struct {
	root      string
	userName  string
	userEmail string
	homeDir   string
	log       *vlog.Logger

	adapter  *vcsadapter.Adapter
	registry *registry.VaultRegistry
}

// New constructs an unconnected Engine over root. Call Connect before any
// other operation; every other method returns a State error until then.
func New(root, userName, userEmail, homeDir string, log *vlog.Logger) *Engine {
	if log == nil {
		log = vlog.Default()
	}
	return &Engine{root: root, userName: userName, userEmail: userEmail, homeDir: homeDir, log: log}
}

func (e *Engine) Root() string { return e.root }

func (e *Engine) requireConnected() error {
	if e.adapter == nil || e.registry == nil {
		return stateNotConnected()
	}
	return nil
}

// Registry exposes the unit registry for CLI-level register/unregister
// commands outside the engine's own operation set.
func (e *Engine) Registry() (*registry.VaultRegistry, error) {
	if err := e.requireConnected(); err != nil {
		return nil, err
	}
	return e.registry, nil
}

// Connect ensures the vault root exists, initializes the VCS if absent,
// loads the unit registry, and reports done.
func (e *Engine) Connect(mon events.Monitor) error {
	if err := os.MkdirAll(e.root, 0755); err != nil {
		mon.Error(events.OpConnect, map[string]interface{}{"msg": "failed to create vault root", "error": err.Error()})
		return wrapIOErr(e.root, err)
	}
	adapter, err := vcsadapter.Init(e.root, e.userName, e.userEmail)
	if err != nil {
		mon.Error(events.OpConnect, map[string]interface{}{"msg": "vcs init failed", "error": err.Error()})
		return err
	}
	reg, err := registry.NewVaultRegistry(registry.DefaultUnitsDir(e.root), adapter, e.log)
	if err != nil {
		mon.Error(events.OpConnect, map[string]interface{}{"msg": "registry load failed", "error": err.Error()})
		return err
	}
	e.adapter = adapter
	e.registry = reg
	mon.Done(events.OpConnect, nil)
	return nil
}

// Snapshots returns the current tag list, newest first.
func (e *Engine) Snapshots() ([]vcsadapter.TagInfo, error) {
	if err := e.requireConnected(); err != nil {
		return nil, err
	}
	return e.adapter.ListTags()
}

// Notes returns the stored message for a snapshot.
func (e *Engine) Notes(snapshot string) (string, error) {
	if err := e.requireConnected(); err != nil {
		return "", err
	}
	return e.adapter.NotesGet(snapshot)
}

// RemoveSnapshot deletes a tag (and its notes, carried in the tag message).
// The now-unreferenced commit becomes garbage-collectable but is not
// eagerly removed, per spec §4.6.
func (e *Engine) RemoveSnapshot(mon events.Monitor, name string) error {
	if err := e.requireConnected(); err != nil {
		return err
	}
	if err := e.adapter.RemoveTag(name); err != nil {
		mon.Error(events.OpRemoveSnapshot, map[string]interface{}{"msg": "remove failed", "error": err.Error(), "snapshot": name})
		return err
	}
	mon.Done(events.OpRemoveSnapshot, map[string]interface{}{"snapshot": name})
	return nil
}

func (e *Engine) unitBlobsDir(unit string) string { return filepath.Join(e.root, unit, "blobs") }
func (e *Engine) unitDataDir(unit string) string  { return filepath.Join(e.root, unit, "data") }
func (e *Engine) unitDir(unit string) string      { return filepath.Join(e.root, unit) }

func (e *Engine) unitHome(u registry.Unit) string {
	if u.Home != "" {
		return u.Home
	}
	return e.homeDir
}
