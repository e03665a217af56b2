//go:build !unix

package writer

// chownPath is a no-op on platforms without a uid/gid ownership model.
func chownPath(_ string, _ int) error { return nil }
