// Package testutil holds small test fixtures shared across vault's package
// tests, adapted from the teacher's testutil package (which built the same
// kind of tmpdir/goconvey helpers for its own fs.FS abstraction).
package testutil

import (
	"os"
)

// WithTmpdir creates a fresh temp directory, hands its path to fn, and
// removes it afterwards regardless of outcome.
func WithTmpdir(fn func(dir string)) {
	dir, err := os.MkdirTemp("", "vault-test-")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)
	fn(dir)
}
