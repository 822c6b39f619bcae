package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/polydawn/vault/internal/vlog"
	"github.com/polydawn/vault/vaulterr"
)

// Config is the on-disk unit registry: one JSON file per unit under dir.
type Config struct {
	dir   string
	units map[string]Unit
	log   *vlog.Logger
}

// Load reads every `*.json` file under dir into memory. A missing dir is
// not an error -- the registry is simply empty. A malformed file is logged
// and skipped, per spec §4.5, rather than aborting the whole load.
func Load(dir string, log *vlog.Logger) (*Config, error) {
	if log == nil {
		log = vlog.Default()
	}
	c := &Config{dir: dir, units: map[string]Unit{}, log: log}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, vaulterr.WrapPath(vaulterr.IO, dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("registry: skipping %q: %s", path, err)
			continue
		}
		var u Unit
		if err := json.Unmarshal(data, &u); err != nil {
			log.Warnf("registry: skipping malformed unit config %q: %s", path, err)
			continue
		}
		name := unitNameFromFile(entry.Name())
		u.Name = name
		c.units[name] = u
	}
	return c, nil
}

func unitNameFromFile(filename string) string {
	return filename[:len(filename)-len(".json")]
}

// Root returns the directory this config is rooted at.
func (c *Config) Root() string { return c.dir }

// Units returns a copy of the name -> Unit mapping.
func (c *Config) Units() map[string]Unit {
	out := make(map[string]Unit, len(c.units))
	for k, v := range c.units {
		out[k] = v
	}
	return out
}

// Get returns the named unit and whether it is registered.
func (c *Config) Get(name string) (Unit, bool) {
	u, ok := c.units[name]
	return u, ok
}

// Names returns registered unit names, sorted.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.units))
	for name := range c.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set validates and canonicalizes u, writes its JSON file, and reports
// whether anything actually changed (a brand-new unit, or any field
// differing from what was already registered). Per spec §4.5, a u whose
// IsUnitConfig flag is already set is trusted as a previously-serialized
// form and skips the name/script presence check; it is always written
// back out with the flag set, per spec §6.
func (c *Config) Set(u Unit) (changed bool, err error) {
	if !u.IsUnitConfig && !u.hasRequiredFields() {
		return false, vaulterr.Errorf(vaulterr.Config, "unit config requires name and script, got %+v", u)
	}
	u.Script = filepath.Clean(u.Script)
	u.IsUnitConfig = true

	existing, had := c.units[u.Name]
	if had && existing.equal(u) {
		return false, nil
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return false, vaulterr.WrapPath(vaulterr.IO, c.dir, err)
	}
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return false, vaulterr.Errorf(vaulterr.Logic, "marshal unit %q: %s", u.Name, err)
	}
	if err := os.WriteFile(unitPath(c.dir, u.Name), data, 0644); err != nil {
		return false, vaulterr.WrapPath(vaulterr.IO, unitPath(c.dir, u.Name), err)
	}
	c.units[u.Name] = u
	return true, nil
}

// Rm deletes the named unit's JSON file, returning the file name deleted,
// or "" if the unit wasn't registered.
func (c *Config) Rm(name string) (string, error) {
	if _, ok := c.units[name]; !ok {
		return "", nil
	}
	path := unitPath(c.dir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", vaulterr.WrapPath(vaulterr.IO, path, err)
	}
	delete(c.units, name)
	return filepath.Base(path), nil
}
