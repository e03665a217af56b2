// Package cache assembles internal/pathlayout, internal/content,
// internal/index, internal/writer and internal/reader into the public
// per-operation surface spec.md §1 calls "out of scope" for the core
// (convenience wrappers, the concurrency runtime) — built here the way the
// teacher assembles its HTTP handlers on top of internal/store, rather than
// invented from nothing.
package cache

import (
	"bytes"
	"io"
	"os"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
	"github.com/zynqcloud/go-storage/internal/content"
	"github.com/zynqcloud/go-storage/internal/index"
	"github.com/zynqcloud/go-storage/internal/integrity"
	"github.com/zynqcloud/go-storage/internal/reader"
	"github.com/zynqcloud/go-storage/internal/writer"
)

// Cache is the blocking public surface over a cache directory rooted at
// Root. It holds no mutable state of its own beyond the path; every
// operation re-derives its working set from the filesystem, matching the
// no-in-process-locking design of internal/content and internal/index
// (spec.md §5).
type Cache struct {
	Root      string
	Algorithm string // default digest algorithm for writes; "" -> integrity.SHA256

	store  *content.Store
	reader *reader.Reader
	linker *reader.Linker
}

// New returns a Cache rooted at root, creating the root directory (but not
// its content-v2/index-v5 subtrees, which are created lazily on first
// write) if it does not already exist.
func New(root string, algorithm string) (*Cache, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, cacheerr.WrapPath("mkdir", root, err)
	}
	return &Cache{
		Root:      root,
		Algorithm: algorithm,
		store:     content.New(root),
		reader:    reader.New(root),
		linker:    &reader.Linker{Root: root, Algorithm: algorithm},
	}, nil
}

// PutOptions configures Put.
type PutOptions struct {
	// Size, when HasSize is set, is checked against the written byte count
	// and drives the writer's mmap decision (spec.md §4.4).
	Size int64
	// HasSize distinguishes "Size: 0" from "no declared size".
	HasSize bool

	Expected    integrity.Integrity
	Metadata    []byte
	RawMetadata []byte
	Time        uint64

	// Owner, if non-nil, chowns the committed blob (and index bucket) to
	// this uid (SPEC_FULL.md's supplemented chown/ownership propagation).
	Owner *int
}

// Put streams r to completion, computing its integrity and committing it
// under key. Returns the computed integrity token.
func (c *Cache) Put(key string, r io.Reader, opts PutOptions) (integrity.Integrity, error) {
	wOpts := writer.Options{
		Key:         key,
		Algorithm:   c.Algorithm,
		Expected:    opts.Expected,
		Metadata:    opts.Metadata,
		RawMetadata: opts.RawMetadata,
		Time:        opts.Time,
		Owner:       opts.Owner,
	}
	if opts.HasSize {
		size := opts.Size
		wOpts.Size = &size
	}

	w, err := writer.Open(c.Root, wOpts)
	if err != nil {
		return integrity.Integrity{}, err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Abort() //nolint:errcheck
		return integrity.Integrity{}, err
	}
	return w.Commit()
}

// PutReportNew is Put's variant reporting whether the blob was newly
// materialized or matched one already present (a dedup hit), for callers
// that want that telemetry (the teacher's CAS.Put PutResult.IsNew).
func (c *Cache) PutReportNew(key string, r io.Reader, opts PutOptions) (integrity.Integrity, bool, error) {
	wOpts := writer.Options{
		Key:         key,
		Algorithm:   c.Algorithm,
		Expected:    opts.Expected,
		Metadata:    opts.Metadata,
		RawMetadata: opts.RawMetadata,
		Time:        opts.Time,
		Owner:       opts.Owner,
	}
	if opts.HasSize {
		size := opts.Size
		wOpts.Size = &size
	}

	w, err := writer.Open(c.Root, wOpts)
	if err != nil {
		return integrity.Integrity{}, false, err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Abort() //nolint:errcheck
		return integrity.Integrity{}, false, err
	}
	return w.CommitReportNew()
}

// PutBytes is the common-case, buffer-in-hand variant of Put.
func (c *Cache) PutBytes(key string, data []byte, opts PutOptions) (integrity.Integrity, error) {
	opts.Size = int64(len(data))
	opts.HasSize = true
	return c.Put(key, bytes.NewReader(data), opts)
}

// Get opens key for verified streaming reads. Callers must Finalize the
// returned reader after consuming it.
func (c *Cache) Get(key string) (*content.VerifiedReader, index.Entry, error) {
	return c.reader.ByKey(key)
}

// GetBytes reads and verifies key's full contents.
func (c *Cache) GetBytes(key string) ([]byte, index.Entry, error) {
	return c.reader.ReadAllByKey(key)
}

// GetByHash opens a blob directly by its integrity token, bypassing the
// index (the "read-by-hash" half of spec.md's get/get_hash duality,
// reintroduced per SPEC_FULL.md's supplemented features).
func (c *Cache) GetByHash(sri integrity.Integrity) (*content.VerifiedReader, error) {
	return c.reader.ByHash(sri)
}

// Has reports whether key currently resolves to a live (non-tombstoned)
// entry whose blob exists on disk.
func (c *Cache) Has(key string) (bool, index.Entry, error) {
	entry, ok, err := index.Find(c.Root, key)
	if err != nil || !ok {
		return false, index.Entry{}, err
	}
	exists, err := c.store.Exists(entry.Integrity)
	if err != nil {
		return false, entry, err
	}
	return exists, entry, nil
}

// Find resolves key's current index entry without touching the content
// store.
func (c *Cache) Find(key string) (index.Entry, bool, error) {
	return index.Find(c.Root, key)
}

// RemoveEntry tombstones key, leaving the underlying blob (and any other key
// that happens to reference it) untouched (spec.md §4.3 "rm" with survive
// semantics; SPEC_FULL.md's rm duality).
func (c *Cache) RemoveEntry(key string) error {
	return index.Tombstone(c.Root, key)
}

// Purge removes key's index bucket entirely and its current blob, per
// spec.md §4.3's full-delete purge. This also discards any other key that
// happens to share the same bucket shard; callers that cannot accept that
// cost should use RemoveEntry instead.
func (c *Cache) Purge(key string) error {
	return index.Purge(c.Root, key, c.store.Remove)
}

// List returns every live (non-tombstoned) index entry across the whole
// cache (spec.md §4.3 scan, exposed publicly per SPEC_FULL.md's ls
// supplement).
func (c *Cache) List() ([]index.Entry, error) {
	return index.Scan(c.Root)
}

// Clear removes every entry returned by List along with its blob. An error
// on an individual key does not abort the sweep; the first such error is
// returned once every key has been tried.
func (c *Cache) Clear() error {
	entries, err := index.Scan(c.Root)
	if err != nil {
		return err
	}
	var firstErr error
	for _, e := range entries {
		if err := index.Purge(c.Root, e.Key, c.store.Remove); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LinkExternal records externalPath's content under key without copying its
// bytes, via internal/reader.Linker (spec.md §4.5).
func (c *Cache) LinkExternal(externalPath, key string) (integrity.Integrity, error) {
	return c.linker.LinkExternal(externalPath, reader.LinkOptions{Key: key})
}
