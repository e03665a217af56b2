// Package writer implements the cache's streaming writer (spec.md §4.4): a
// resumable write pipeline that computes an integrity digest while spooling
// to a temp file (optionally memory-mapped), then atomically persists the
// result into the content store and, if a key was given, appends an index
// record for it.
//
// Grounded on the teacher's (zynqcloud/go-storage) internal/store/cas.go
// Put method for the temp-file + hash + rename shape, and on
// calvinalkan-agent-task/internal/ticket/cache.go +
// calvinalkan-agent-task/pkg/slotcache/open.go for the syscall.Mmap idiom
// used for the writer's memory-mapped spool path.
package writer

import (
	"encoding/json"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"time"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
	"github.com/zynqcloud/go-storage/internal/content"
	"github.com/zynqcloud/go-storage/internal/index"
	"github.com/zynqcloud/go-storage/internal/integrity"
	"github.com/zynqcloud/go-storage/internal/pathlayout"
)

// MmapCeiling is the largest expected size, in bytes, for which Open will
// preallocate and memory-map the temp file (spec.md §4.4, MMAP_CEILING).
const MmapCeiling = 1 << 20 // 1 MiB

type state int

const (
	stateOpen state = iota
	stateWriting
	stateCommitted
	stateAborted
)

// Options configures a writer at Open time (spec.md §4.4 "Open" inputs).
type Options struct {
	// Key binds the written blob to an index entry on commit. Empty means
	// "content-only insertion" — no index record is appended.
	Key string

	// Algorithm selects the digest algorithm; defaults to integrity.SHA256.
	Algorithm string

	// Size, if non-nil, is checked against the actual written byte count at
	// commit time and also drives the mmap preallocation decision.
	Size *int64

	// Expected, if non-zero, is checked against the computed digest at
	// commit time.
	Expected integrity.Integrity

	// Metadata is recorded verbatim in the index entry (ignored if Key is
	// empty).
	Metadata json.RawMessage

	// RawMetadata is recorded verbatim in the index entry (ignored if Key is
	// empty).
	RawMetadata []byte

	// Time overrides the index entry's recorded timestamp (unix ms). Zero
	// means "now".
	Time uint64

	// Owner, if non-nil, chowns the committed content blob and (if Key is
	// set) the index bucket file to this uid after commit, mirroring
	// original_source/src/index.rs's chownr::chownr calls. A no-op when nil
	// or on platforms without chown (see chown_other.go).
	Owner *int
}

// Writer is a single-use streaming write pipeline whose states run
// open → writing → committed | aborted.
type Writer struct {
	root  string
	store *content.Store
	opts  Options

	tmpFile *os.File
	tmpPath string
	hasher  hash.Hash

	mmapData []byte // non-nil while the mmap fast path is active
	written  int64

	state state
}

// Open begins a new write: creates root/tmp/ if absent, allocates a
// uniquely-named tempfile there, and — if opts.Size is supplied and at most
// MmapCeiling — preallocates the file to that size and memory-maps it for
// writing.
func Open(root string, opts Options) (*Writer, error) {
	algo := opts.Algorithm
	if algo == "" {
		algo = integrity.SHA256
	}
	hasher, err := integrity.Hash(algo)
	if err != nil {
		return nil, err
	}

	tmpDir := filepath.Join(root, pathlayout.TmpDir)
	if err := os.MkdirAll(tmpDir, 0o750); err != nil {
		return nil, cacheerr.WrapPath("mkdir", tmpDir, err)
	}

	tmp, err := os.CreateTemp(tmpDir, ".writer-*")
	if err != nil {
		return nil, cacheerr.WrapPath("create", tmpDir, err)
	}

	w := &Writer{
		root:    root,
		store:   content.New(root),
		opts:    opts,
		tmpFile: tmp,
		tmpPath: tmp.Name(),
		hasher:  hasher,
		state:   stateOpen,
	}
	w.opts.Algorithm = algo

	if opts.Size != nil && *opts.Size >= 0 && *opts.Size <= MmapCeiling {
		if err := w.mapSpool(*opts.Size); err != nil {
			// mmap is a best-effort fast path; any failure (unsupported fs,
			// out of address space) falls back to plain file writes rather
			// than aborting the whole write.
			w.mmapData = nil
		}
	}

	return w, nil
}

// Write feeds p to the digest builder and spools it, to the mmap region if
// active (falling back to plain file writes once the mapped region is
// exhausted) or to the temp file otherwise.
func (w *Writer) Write(p []byte) (int, error) {
	if w.state == stateCommitted || w.state == stateAborted {
		return 0, cacheerr.ErrClosed
	}
	w.state = stateWriting

	w.hasher.Write(p) //nolint:errcheck

	if w.mmapData != nil {
		end := w.written + int64(len(p))
		if end <= int64(len(w.mmapData)) {
			copy(w.mmapData[w.written:end], p)
			w.written = end
			return len(p), nil
		}
		// The caller is writing past the declared size: demote to plain
		// file writes for the remainder. Bytes already placed in the mmap
		// are already physically present in the backing file (MAP_SHARED).
		if err := w.unmapSpool(); err != nil {
			return 0, err
		}
	}

	n, err := w.tmpFile.Write(p)
	w.written += int64(n)
	if err != nil {
		return n, cacheerr.WrapPath("write", w.tmpPath, err)
	}
	return n, nil
}

// Flush commits any pending spooled bytes toward durable storage. For the
// mmap path this issues an asynchronous msync; for the plain file path the
// kernel already owns the bytes once Write returns, so Flush is a no-op
// beyond that.
func (w *Writer) Flush() error {
	if w.mmapData != nil {
		return w.msyncAsync()
	}
	return nil
}

// WrittenBytes returns the number of bytes written so far.
func (w *Writer) WrittenBytes() int64 { return w.written }

// Commit finalizes the digest, validates it (and the expected size, if one
// was declared) against the caller's expectations, persists the temp file
// into its content-addressed path, and — if a key was supplied — appends an
// index record. Returns the computed integrity token.
func (w *Writer) Commit() (integrity.Integrity, error) {
	sri, _, err := w.commit()
	return sri, err
}

// CommitReportNew is Commit's variant reporting whether the blob was newly
// materialized by this call, for callers tracking dedup-hit telemetry (the
// teacher's CAS.Put PutResult.IsNew).
func (w *Writer) CommitReportNew() (integrity.Integrity, bool, error) {
	return w.commit()
}

func (w *Writer) commit() (integrity.Integrity, bool, error) {
	if w.state == stateCommitted || w.state == stateAborted {
		return integrity.Integrity{}, false, cacheerr.ErrClosed
	}

	if w.mmapData != nil {
		if err := w.unmapSpool(); err != nil {
			return integrity.Integrity{}, false, err
		}
	}

	sum := w.hasher.Sum(nil)
	computed := integrity.New(w.opts.Algorithm, sum)

	if !w.opts.Expected.IsZero() && !w.opts.Expected.Matches(computed) {
		w.abortTmp()
		return integrity.Integrity{}, false, &cacheerr.IntegrityMismatchError{
			Expected: w.opts.Expected.String(),
			Actual:   computed.String(),
		}
	}
	if w.opts.Size != nil && *w.opts.Size != w.written {
		w.abortTmp()
		return integrity.Integrity{}, false, &cacheerr.SizeMismatchError{
			Expected: *w.opts.Size,
			Actual:   w.written,
		}
	}

	if err := w.tmpFile.Close(); err != nil {
		w.abortTmp()
		return integrity.Integrity{}, false, cacheerr.WrapPath("close", w.tmpPath, err)
	}

	isNew, err := w.store.Persist(w.tmpPath, computed)
	if err != nil {
		return integrity.Integrity{}, false, err
	}
	w.state = stateCommitted

	if w.opts.Owner != nil {
		if contentPath, perr := pathlayout.ContentPath(w.root, computed); perr == nil {
			chownPath(contentPath, *w.opts.Owner) //nolint:errcheck
		}
	}

	if w.opts.Key != "" {
		ts := w.opts.Time
		if ts == 0 {
			ts = uint64(time.Now().UnixMilli())
		}
		entry := index.Entry{
			Key:         w.opts.Key,
			Integrity:   computed,
			Time:        ts,
			Size:        uint64(w.written),
			Metadata:    w.opts.Metadata,
			RawMetadata: w.opts.RawMetadata,
		}
		if err := index.Append(w.root, entry); err != nil {
			// The blob itself is already committed and addressable by
			// computed; only the key->integrity binding failed to record.
			// Callers that care about the key can retry index.Append
			// directly with computed, so it is returned alongside the error
			// rather than discarded.
			return computed, isNew, fmt.Errorf("writer: commit blob but append index for key %q: %w", w.opts.Key, err)
		}
		if w.opts.Owner != nil {
			chownPath(pathlayout.BucketPath(w.root, w.opts.Key), *w.opts.Owner) //nolint:errcheck
		}
	}

	return computed, isNew, nil
}

// Abort discards the writer's temp file without persisting anything.
// Writers are single-use: calling Abort after Commit (or twice) is a no-op.
func (w *Writer) Abort() error {
	if w.state == stateCommitted || w.state == stateAborted {
		return nil
	}
	if w.mmapData != nil {
		w.unmapSpool() //nolint:errcheck
	}
	w.abortTmp()
	return nil
}

func (w *Writer) abortTmp() {
	w.state = stateAborted
	w.tmpFile.Close() //nolint:errcheck
	os.Remove(w.tmpPath) //nolint:errcheck
}
