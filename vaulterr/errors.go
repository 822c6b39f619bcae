// Package vaulterr defines the categorized error kinds shared across the
// vault packages. Every error vault raises belongs to exactly one of these
// categories, so callers can `errcat.Category(err)` and switch on it instead
// of matching error strings.
package vaulterr

import (
	"fmt"

	errcat "github.com/warpfork/go-errcat"
)

// ErrorCategory is the categorization tag attached to every vault error.
type ErrorCategory string

const (
	// Config: missing/malformed unit JSON, unknown unit name.
	Config = ErrorCategory("vault-config")
	// IO: stat/open/read/write/mmap/symlink/unlink/mkdir failed.
	IO = ErrorCategory("vault-io")
	// Handler: a unit handler exited non-zero.
	Handler = ErrorCategory("vault-handler")
	// VCS: the underlying versioned store failed an operation.
	VCS = ErrorCategory("vault-vcs")
	// Logic: an invariant was violated. Indicates a bug, never user error.
	Logic = ErrorCategory("vault-logic")
	// State: an operation was invoked while the vault was not connected.
	State = ErrorCategory("vault-state")
	// Usage: bad CLI / caller input.
	Usage = ErrorCategory("vault-usage")
	// NotFound: a named thing (snapshot, unit, blob) does not exist.
	NotFound = ErrorCategory("vault-not-found")
)

// Error is the marker interface satisfied by the path-carrying errors that
// WrapPath returns. Errors raised through Errorf are go-errcat values and do
// not implement it; use Category to classify either kind. It mirrors the
// shape of the teacher's `rio.Error`.
type Error interface {
	error
	vaultError()
}

// Errorf raises a new categorized error, formatted like fmt.Errorf.
func Errorf(category ErrorCategory, format string, args ...interface{}) error {
	return errcat.Errorf(category, format, args...)
}

// Category extracts the ErrorCategory of err, or "" if err doesn't carry one.
func Category(err error) ErrorCategory {
	cat, _ := errcat.Category(err).(ErrorCategory)
	return cat
}

// withPath decorates an IO-category error with the path it happened to.
type withPath struct {
	category ErrorCategory
	path     string
	cause    error
}

func (e *withPath) vaultError() {}
func (e *withPath) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.category, e.path, e.cause)
}
func (e *withPath) Unwrap() error { return e.cause }

// Category implements go-errcat's own Categorized interface (the thing
// errcat.Category actually type-asserts against), so a path-wrapped error
// categorizes exactly like one raised directly through Errorf.
func (e *withPath) Category() interface{} { return e.category }

// WrapPath wraps cause as a categorized error carrying path, e.g. for
// IO errors that need the destination path and underlying OS error string
// per spec §7.
func WrapPath(category ErrorCategory, path string, cause error) error {
	if cause == nil {
		return nil
	}
	return &withPath{category: category, path: path, cause: cause}
}
