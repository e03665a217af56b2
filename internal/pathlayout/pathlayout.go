// Package pathlayout implements the cache's deterministic, pure path
// mapping functions (spec.md §4.1): content addresses derived from an
// Integrity token, and index bucket addresses derived from a key's SHA-1.
//
// Grounded on the teacher's (zynqcloud/go-storage) content-addressed blob
// layout in internal/store/cas.go, generalized from a single hardcoded
// sha256 scheme to the spec's pluggable-algorithm, two-level shard scheme.
package pathlayout

import (
	"crypto/sha1" //nolint:gosec // sharding only, not a security boundary
	"encoding/hex"
	"path/filepath"

	"github.com/zynqcloud/go-storage/internal/integrity"
)

// ContentVersion and IndexVersion are the persisted version strings
// (spec.md §6). No part of the cache inspects a root for directories under
// other version strings: a root that also holds, say, content-v1/ is opened
// as usual and that directory is ignored.
const (
	ContentVersion = "content-v2"
	IndexVersion   = "index-v5"
	TmpDir         = "tmp"
)

// ContentPath returns the on-disk path for the blob addressed by sri's
// strongest algorithm: root/content-v2/<algo>/<hh>/<hh>/<rest>.
func ContentPath(root string, sri integrity.Integrity) (string, error) {
	entry, ok := sri.Strongest()
	if !ok {
		return "", errEmptyIntegrity
	}
	return ContentPathForAlgo(root, entry.Algorithm, entry.Hex()), nil
}

// ContentPathForAlgo builds the content path directly from an algorithm name
// and lowercase hex digest, for callers that already resolved the strongest
// entry (e.g. the writer, which knows the algorithm it hashed with).
func ContentPathForAlgo(root, algo, hexDigest string) string {
	if len(hexDigest) < 4 {
		// Degenerate digests (e.g. from a zero-length test hasher) still need
		// a deterministic path; fall back to placing the whole string
		// directly under the algorithm directory, with no shard levels.
		return filepath.Join(root, ContentVersion, algo, hexDigest)
	}
	return filepath.Join(root, ContentVersion, algo, hexDigest[0:2], hexDigest[2:4], hexDigest[4:])
}

// BucketPath returns the on-disk path for the index bucket holding key:
// root/index-v5/<kk>/<kk>/<rest>, where kk/kk/rest is a 2/2/remainder shard
// of lowercase-hex SHA-1(key) (spec.md §4.1). SHA-1 here is a sharding
// function only, not a security boundary.
func BucketPath(root, key string) string {
	sum := sha1.Sum([]byte(key)) //nolint:gosec
	h := hex.EncodeToString(sum[:])
	return filepath.Join(root, IndexVersion, h[0:2], h[2:4], h[4:])
}

var errEmptyIntegrity = pathlayoutError("empty integrity token has no content path")

type pathlayoutError string

func (e pathlayoutError) Error() string { return string(e) }
