//go:build !linux

package worker

// dropCapabilities is a no-op off Linux, matching caps/caps.go's own
// platform guard (capability sets are a Linux-only concept).
func dropCapabilities() {}
