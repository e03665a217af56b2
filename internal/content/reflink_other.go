//go:build !linux

package content

import (
	"os"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
)

// reflink is not implemented on platforms without FICLONE (or an
// equivalent); always returns ErrUnsupportedOperation so ReflinkOrCopy
// callers fall back to a buffered copy.
func reflink(_, _ string) (int64, error) {
	return 0, cacheerr.ErrUnsupportedOperation
}

func hardlinkError(err error) error {
	if os.IsExist(err) {
		return cacheerr.WrapPath("link", "", err)
	}
	return cacheerr.ErrUnsupportedOperation
}
