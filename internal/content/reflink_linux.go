//go:build linux

package content

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
)

// reflink clones src onto dst via the FICLONE ioctl, which XFS, btrfs, and
// overlayfs (when the lower/upper share a filesystem) support. Falls back
// to cacheerr.ErrUnsupportedOperation for any other failure — including
// cross-filesystem destinations and filesystems without COW clone support —
// so ReflinkOrCopy callers know to fall back to a buffered copy.
func reflink(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, cacheerr.WrapPath("open", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return 0, cacheerr.WrapPath("open", dst, err)
	}
	defer out.Close()

	if err := unix.IoctlFileClone(int(out.Fd()), int(in.Fd())); err != nil {
		os.Remove(dst) //nolint:errcheck
		return 0, cacheerr.ErrUnsupportedOperation
	}

	info, err := out.Stat()
	if err != nil {
		return 0, cacheerr.WrapPath("stat", dst, err)
	}
	return info.Size(), nil
}

func hardlinkError(err error) error {
	if os.IsExist(err) {
		return cacheerr.WrapPath("link", "", err)
	}
	return cacheerr.ErrUnsupportedOperation
}
