//go:build linux

// Package diskstats reports free/total disk space for the cache root,
// grounded on the teacher's (zynqcloud/go-storage) internal/store
// diskstats_linux.go/diskstats_other.go split — carried over unchanged in
// shape, adapted into a standalone package so both the HTTP readiness
// handler and internal/cleanup's future min-free-space checks can use it
// without depending on the legacy store package.
package diskstats

import "syscall"

// Stats returns the available and total bytes on the filesystem containing
// path. Uses Bavail (blocks available to unprivileged processes) rather
// than Bfree (root-reserved blocks included), since the cache process
// itself is assumed non-root.
func Stats(path string) (avail, total uint64) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0
	}
	bsize := uint64(st.Bsize)
	return st.Bavail * bsize, st.Blocks * bsize
}
