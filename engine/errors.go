package engine

import "github.com/polydawn/vault/vaulterr"

func stateNotConnected() error {
	return vaulterr.Errorf(vaulterr.State, "engine: operation invoked before Connect succeeded")
}

func wrapIOErr(path string, err error) error {
	return vaulterr.WrapPath(vaulterr.IO, path, err)
}
