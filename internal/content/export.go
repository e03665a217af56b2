package content

import (
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
	"github.com/zynqcloud/go-storage/internal/integrity"
	"github.com/zynqcloud/go-storage/internal/pathlayout"
)

// ExportMode selects the mechanism Export uses to place a blob at a
// destination path (spec.md §4.2, §4.5 export table).
type ExportMode int

const (
	// Copy streams the blob through a verified reader into dst.
	Copy ExportMode = iota
	// Reflink creates a copy-on-write clone sharing extents with the source.
	// Fails with cacheerr.ErrUnsupportedOperation if the filesystem or
	// platform doesn't support it.
	Reflink
	// ReflinkOrCopy attempts Reflink and silently falls back to Copy.
	ReflinkOrCopy
	// HardLink creates a hard link to the content file. Fails with
	// cacheerr.ErrUnsupportedOperation across filesystem boundaries.
	HardLink
)

// Export places the blob addressed by sri at dst using mode. When verify is
// true, a full integrity pass is performed: during the streamed copy for
// Copy/ReflinkOrCopy-fallback, or by re-reading the destination *after* the
// link is created for Reflink/HardLink (spec.md §4.2 — this detects
// tampering reachable through the shared inode/extent). Returns the number
// of bytes placed.
func (s *Store) Export(sri integrity.Integrity, dst string, mode ExportMode, verify bool) (int64, error) {
	src, err := pathlayout.ContentPath(s.root, sri)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return 0, cacheerr.WrapPath("mkdir", filepath.Dir(dst), err)
	}

	switch mode {
	case Copy:
		return s.exportCopy(sri, dst, verify)
	case Reflink:
		n, err := reflink(src, dst)
		if err != nil {
			return 0, err
		}
		if verify {
			if err := s.verifyDestination(sri, dst); err != nil {
				os.Remove(dst) //nolint:errcheck
				return 0, err
			}
		}
		return n, nil
	case ReflinkOrCopy:
		n, err := reflink(src, dst)
		if err == nil {
			if verify {
				if vErr := s.verifyDestination(sri, dst); vErr != nil {
					os.Remove(dst) //nolint:errcheck
					return 0, vErr
				}
			}
			return n, nil
		}
		return s.exportCopy(sri, dst, verify)
	case HardLink:
		if err := os.Link(src, dst); err != nil {
			return 0, hardlinkError(err)
		}
		info, statErr := os.Stat(dst)
		if statErr != nil {
			return 0, cacheerr.WrapPath("stat", dst, statErr)
		}
		if verify {
			if err := s.verifyDestination(sri, dst); err != nil {
				os.Remove(dst) //nolint:errcheck
				return 0, err
			}
		}
		return info.Size(), nil
	default:
		return 0, cacheerr.ErrUnsupportedOperation
	}
}

// exportCopy streams the blob through a VerifiedReader into dst. verify
// controls whether Finalize's result is checked; an unchecked copy still
// streams through the verifier machinery but ignores its verdict, matching
// the spec's "trust the filesystem" unchecked variants.
func (s *Store) exportCopy(sri integrity.Integrity, dst string, verify bool) (int64, error) {
	r, err := s.Open(sri)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	tmp := dst + ".export-tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, cacheerr.WrapPath("open", tmp, err)
	}

	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(tmp) //nolint:errcheck
		return 0, cacheerr.WrapPath("copy", dst, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp) //nolint:errcheck
		return 0, cacheerr.WrapPath("close", tmp, closeErr)
	}

	if verify {
		if _, err := r.Finalize(); err != nil {
			os.Remove(tmp) //nolint:errcheck
			return 0, err
		}
	}

	if err := atomic.ReplaceFile(tmp, dst); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return 0, cacheerr.WrapPath("rename", dst, err)
	}
	return n, nil
}

// verifyDestination re-reads dst (reached through a shared inode/extent for
// HardLink/Reflink) and checks it against sri, detecting tampering of the
// shared content through any other path that references it.
func (s *Store) verifyDestination(sri integrity.Integrity, dst string) error {
	f, err := os.Open(dst)
	if err != nil {
		return cacheerr.WrapPath("open", dst, err)
	}
	defer f.Close()

	v, err := integrity.NewVerifier(sri)
	if err != nil {
		return err
	}
	if _, err := io.Copy(v, f); err != nil {
		return cacheerr.WrapPath("read", dst, err)
	}
	_, err = v.Finalize()
	return err
}
