package cache

import (
	"github.com/zynqcloud/go-storage/internal/cacheerr"
	"github.com/zynqcloud/go-storage/internal/content"
	"github.com/zynqcloud/go-storage/internal/index"
	"github.com/zynqcloud/go-storage/internal/integrity"
)

// ExportMode re-exports internal/content's export mode enum so callers
// never need to import internal/content directly.
type ExportMode = content.ExportMode

const (
	Copy          = content.Copy
	Reflink       = content.Reflink
	ReflinkOrCopy = content.ReflinkOrCopy
	HardLink      = content.HardLink
)

// CopyOut places key's current blob at dst using mode (spec.md §4.2/§4.5
// export table; SPEC_FULL.md's copy/copy_hash duality — this is the by-key
// half).
func (c *Cache) CopyOut(key, dst string, mode ExportMode, verify bool) (int64, error) {
	entry, ok, err := index.Find(c.Root, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, cacheerr.ErrNotFound
	}
	return c.store.Export(entry.Integrity, dst, mode, verify)
}

// CopyOutByHash is CopyOut's by-hash half: it places a blob directly by its
// integrity token, bypassing the index.
func (c *Cache) CopyOutByHash(sri integrity.Integrity, dst string, mode ExportMode, verify bool) (int64, error) {
	return c.store.Export(sri, dst, mode, verify)
}
