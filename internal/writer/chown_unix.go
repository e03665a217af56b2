//go:build unix

package writer

import "os"

// chownPath applies uid to path, leaving the group unchanged (gid -1),
// mirroring original_source/src/index.rs's chownr::chownr(path, uid, gid)
// calls on the bucket directory and bucket file. Best-effort: a failure here
// (e.g. not running as root) does not unwind an already-committed write.
func chownPath(path string, uid int) error {
	return os.Chown(path, uid, -1)
}
