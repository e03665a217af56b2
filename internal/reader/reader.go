package reader

import (
	"github.com/zynqcloud/go-storage/internal/cacheerr"
	"github.com/zynqcloud/go-storage/internal/content"
	"github.com/zynqcloud/go-storage/internal/index"
	"github.com/zynqcloud/go-storage/internal/integrity"
)

// Reader resolves reads against a cache rooted at Root, covering both faces
// of the read-by-key/read-by-hash duality (SPEC_FULL.md "Supplemented
// features"): ByKey goes through the index to find the current integrity for
// a key, ByHash reads a blob directly when the caller already holds its
// integrity token (e.g. from a prior Find or a Writer.Commit result).
type Reader struct {
	Root  string
	store *content.Store
}

// New returns a Reader over root.
func New(root string) *Reader {
	return &Reader{Root: root, store: content.New(root)}
}

// ByHash opens sri for verified streaming reads directly, with no index
// lookup.
func (r *Reader) ByHash(sri integrity.Integrity) (*content.VerifiedReader, error) {
	return r.store.Open(sri)
}

// ByKey resolves key's current index entry and opens its blob for verified
// streaming reads. Returns cacheerr.ErrNotFound if the key has no live entry
// (never existed, or was removed via a tombstone).
func (r *Reader) ByKey(key string) (*content.VerifiedReader, index.Entry, error) {
	entry, ok, err := index.Find(r.Root, key)
	if err != nil {
		return nil, index.Entry{}, err
	}
	if !ok {
		return nil, index.Entry{}, cacheerr.ErrNotFound
	}
	rd, err := r.store.Open(entry.Integrity)
	if err != nil {
		return nil, index.Entry{}, err
	}
	return rd, entry, nil
}

// ReadAllByKey is the non-streaming equivalent of ByKey: resolve key, read
// the full blob, and verify it.
func (r *Reader) ReadAllByKey(key string) ([]byte, index.Entry, error) {
	entry, ok, err := index.Find(r.Root, key)
	if err != nil {
		return nil, index.Entry{}, err
	}
	if !ok {
		return nil, index.Entry{}, cacheerr.ErrNotFound
	}
	data, err := r.store.ReadAll(entry.Integrity)
	if err != nil {
		return nil, index.Entry{}, err
	}
	return data, entry, nil
}
