//go:build unix

package index

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
	"github.com/zynqcloud/go-storage/internal/pathlayout"
)

// AppendLocked behaves like Append but first takes an exclusive advisory
// flock on a per-bucket ".lock" side file. Spec.md §4.3 allows unlocked
// O_APPEND on filesystems where appends under PIPE_BUF are atomic; this is
// the fallback path for implementations (or filesystems, e.g. some network
// mounts) that cannot rely on that guarantee.
//
// Grounded on the advisory-lock architecture in
// calvinalkan-agent-task/pkg/slotcache/lock.go: a side lock file distinct
// from the data file, released unconditionally via defer.
func AppendLocked(root string, e Entry) error {
	bucket := pathlayout.BucketPath(root, e.Key)
	lockPath := bucket + ".lock"

	if err := os.MkdirAll(filepath.Dir(bucket), 0o750); err != nil {
		return cacheerr.WrapPath("mkdir", filepath.Dir(bucket), err)
	}

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return cacheerr.WrapPath("open", lockPath, err)
	}
	defer lockFile.Close()

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return cacheerr.WrapPath("flock", lockPath, err)
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN) //nolint:errcheck

	return Append(root, e)
}
