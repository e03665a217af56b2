// Package content implements the cache's content store (spec.md §4.2):
// atomic placement of blobs under a stable content-addressed path, existence
// probes, and integrity-verified reads.
//
// Grounded on the teacher's (zynqcloud/go-storage) internal/store/cas.go —
// same temp-file + hash + rename shape — generalized from a hardcoded
// sha256 scheme to the spec's pluggable-algorithm Integrity tokens, and
// extended with the export and remove operations the teacher's CAS lacked.
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

// Store is a content-addressable blob store rooted at a cache directory.
// All methods are safe for concurrent use: placement races are resolved by
// filesystem rename atomicity (spec.md §5), not by in-process locking.
type Store struct {
	root string
}

// New returns a Store rooted at root. root must already exist; callers
// (internal/cache) are responsible for creating the cache root layout.
func New(root string) *Store { return &Store{root: root} }

// Root returns the cache root this store operates under.
func (s *Store) Root() string { return s.root }

// Exists reports whether a blob for sri is present, via a path-exists probe
// that follows symlinks (os.Stat) — the uniform choice documented in
// SPEC_FULL.md for the teacher's has_content/has_content_async divergence.
func (s *Store) Exists(sri integrity.Integrity) (bool, error) {
	path, err := pathlayout.ContentPath(s.root, sri)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, cacheerr.WrapPath("stat", path, err)
}

// VerifiedReader wraps an open content file and tees every read byte into an
// incremental verifier keyed on the requested integrity (spec.md §4.5).
// Callers must call Finalize after reading to end-of-stream; until then, no
// integrity guarantee is offered.
type VerifiedReader struct {
	f        *os.File
	verifier *integrity.Verifier
	done     bool
}

// Read implements io.Reader. Every byte successfully read is fed to the
// verifier before being returned to the caller (never a partial tail of an
// internal buffer — os.File.Read already gives us exactly the bytes we
// return).
func (r *VerifiedReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if n > 0 {
		r.verifier.Write(p[:n]) //nolint:errcheck
	}
	return n, err
}

// Close releases the underlying file handle without finalizing. Safe to
// call after Finalize or instead of it (e.g. on a cancelled read) — no cache
// state is mutated by reads (spec.md §5).
func (r *VerifiedReader) Close() error {
	return r.f.Close()
}

// Finalize consumes the reader, returning the algorithm that verified
// successfully, or a *cacheerr.IntegrityMismatchError if none did.
func (r *VerifiedReader) Finalize() (string, error) {
	if r.done {
		return "", cacheerr.ErrClosed
	}
	r.done = true
	return r.verifier.Finalize()
}

// Open opens the blob addressed by sri for verified streaming reads.
func (s *Store) Open(sri integrity.Integrity) (*VerifiedReader, error) {
	path, err := pathlayout.ContentPath(s.root, sri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, cacheerr.WrapPath("open", path, err)
	}
	v, err := integrity.NewVerifier(sri)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &VerifiedReader{f: f, verifier: v}, nil
}

// ReadAll is equivalent to Open + io.ReadAll + Finalize, returning the full
// blob contents once verified.
func (s *Store) ReadAll(sri integrity.Integrity) ([]byte, error) {
	r, err := s.Open(sri)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, cacheerr.WrapPath("read", "", err)
	}
	if _, err := r.Finalize(); err != nil {
		return nil, err
	}
	return data, nil
}

// Remove unlinks the content file for sri. Any index entries still
// referencing it become dangling (spec.md §4.2) — the index is not
// consulted or updated here.
func (s *Store) Remove(sri integrity.Integrity) error {
	path, err := pathlayout.ContentPath(s.root, sri)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return cacheerr.WrapPath("remove", path, err)
	}
	return nil
}

// Persist moves a temp file already hashed to sri into its canonical
// content path, creating parent directories as needed. If the rename target
// already exists (a race with a parallel writer of identical content), that
// is treated as success — blobs are content-addressed, so the existing file
// is bit-identical (spec.md §4.4 step 5, §5 "Across concurrent writers of
// the same blob").
//
// Uses natefinch/atomic.ReplaceFile rather than a bare os.Rename: it
// retries through Windows' transient ERROR_ACCESS_DENIED on MoveFileEx and
// falls back to rename(2) on POSIX, so the content store gets one
// rename-based commit path that behaves the same on every platform the
// cache runs on, matching its one other caller in internal/content/export.go.
//
// Returns isNew reporting whether this call actually materialized the blob
// (false for a dedup hit against content a concurrent writer already
// committed), mirroring the teacher's CAS.Put PutResult.IsNew for callers
// that want that telemetry.
func (s *Store) Persist(tmpPath string, sri integrity.Integrity) (isNew bool, err error) {
	dst, perr := pathlayout.ContentPath(s.root, sri)
	if perr != nil {
		return false, perr
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return false, cacheerr.WrapPath("mkdir", dir, err)
	}
	preexisting := false
	if _, statErr := os.Stat(dst); statErr == nil {
		preexisting = true
	}
	if err := atomic.ReplaceFile(tmpPath, dst); err != nil {
		if _, statErr := os.Stat(dst); statErr == nil {
			// Destination already materialized by a concurrent writer of
			// identical content. Discard our temp copy; the blob is the same
			// either way.
			os.Remove(tmpPath) //nolint:errcheck
			return false, nil
		}
		return false, cacheerr.WrapPath("rename", tmpPath+" -> "+dst, err)
	}
	return !preexisting, nil
}
