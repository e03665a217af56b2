// Package reader implements the cache's verified streaming reads plus the
// external-source linker (spec.md §4.5). The verified reader itself lives
// in internal/content (VerifiedReader) since it is the content store's
// read path; this package adds the "link in an external file" operation,
// which is distinct: it derives an integrity token from a caller-owned file
// outside the cache and publishes it under the content store's addressing
// scheme via a symlink, without ever copying the bytes.
//
// Grounded on original_source/src/linkto.rs (cacache-rs's `link_to`/
// `link_to_sync` path) for the algorithm, adapted to Go's os.Symlink and
// the project's own Integrity/index types.
package reader

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
	"github.com/zynqcloud/go-storage/internal/index"
	"github.com/zynqcloud/go-storage/internal/integrity"
	"github.com/zynqcloud/go-storage/internal/pathlayout"
)

// Linker implements the external-source "symlink in" operation against a
// cache rooted at Root.
type Linker struct {
	Root      string
	Algorithm string // defaults to integrity.SHA256 if empty
}

// LinkOptions configures LinkExternal.
type LinkOptions struct {
	// Key, if non-empty, binds the derived integrity to an index entry.
	Key string

	Time        uint64
	Metadata    []byte
	RawMetadata []byte
}

// LinkExternal reads externalPath to end-of-file computing its integrity,
// then creates a symlink at the corresponding content path pointing at
// externalPath (spec.md §4.5 algorithm, steps 1-5). If a key is given, an
// index record binding it to the derived integrity is appended.
//
// Platform-conditional: symlink creation requires POSIX symlinks or the
// Windows file-symlink privilege. When symlink creation fails with a
// permission error, this returns cacheerr.ErrUnsupportedOperation and no
// index record is appended (the content directory may already exist).
func (l *Linker) LinkExternal(externalPath string, opts LinkOptions) (integrity.Integrity, error) {
	algo := l.Algorithm
	if algo == "" {
		algo = integrity.SHA256
	}

	f, err := os.Open(externalPath)
	if err != nil {
		return integrity.Integrity{}, cacheerr.WrapPath("open", externalPath, err)
	}
	defer f.Close()

	hasher, err := integrity.Hash(algo)
	if err != nil {
		return integrity.Integrity{}, err
	}
	if _, err := io.Copy(hasher, f); err != nil {
		return integrity.Integrity{}, cacheerr.WrapPath("read", externalPath, err)
	}
	sri := integrity.New(algo, hasher.Sum(nil))

	dst, err := pathlayout.ContentPath(l.Root, sri)
	if err != nil {
		return integrity.Integrity{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return integrity.Integrity{}, cacheerr.WrapPath("mkdir", filepath.Dir(dst), err)
	}

	if err := os.Symlink(externalPath, dst); err != nil {
		// Idempotent: if some valid realization of this integrity already
		// exists at dst, that's sufficient (spec.md §4.5 step 4). A platform
		// without symlink support (e.g. Windows without the symlink
		// privilege) also lands here and surfaces as ErrUnsupportedOperation.
		if _, statErr := os.Lstat(dst); statErr != nil {
			if os.IsPermission(err) {
				return integrity.Integrity{}, cacheerr.ErrUnsupportedOperation
			}
			return integrity.Integrity{}, cacheerr.WrapPath("symlink", dst, err)
		}
	}

	if opts.Key != "" {
		info, statErr := os.Stat(externalPath)
		var size uint64
		if statErr == nil {
			size = uint64(info.Size())
		}
		ts := opts.Time
		if ts == 0 {
			ts = uint64(time.Now().UnixMilli())
		}
		entry := index.Entry{
			Key:         opts.Key,
			Integrity:   sri,
			Time:        ts,
			Size:        size,
			Metadata:    opts.Metadata,
			RawMetadata: opts.RawMetadata,
		}
		if err := index.Append(l.Root, entry); err != nil {
			return integrity.Integrity{}, err
		}
	}

	return sri, nil
}
