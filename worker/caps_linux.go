//go:build linux

package worker

import (
	"github.com/syndtr/gocapability/capability"

	"github.com/polydawn/vault/internal/vlog"
)

// dropCapabilities clears every capability set down to nothing. The worker
// goroutine only ever touches files the invoking user already owns and
// shells out to unit handlers under the same UID, so it needs no elevated
// capabilities at all -- ported from caps/caps.go's capability.NewPid(0)
// query, but applying a drop instead of merely reporting what's held.
func dropCapabilities() {
	caps, err := capability.NewPid(0)
	if err != nil {
		vlog.Default().Warnf("worker: capability probe failed, continuing without hardening: %s", err)
		return
	}
	caps.Clear(capability.CAPS | capability.BOUNDS | capability.AMBS)
	if err := caps.Apply(capability.CAPS | capability.BOUNDS | capability.AMBS); err != nil {
		vlog.Default().Warnf("worker: dropping capabilities failed, continuing unprivileged anyway: %s", err)
	}
}
