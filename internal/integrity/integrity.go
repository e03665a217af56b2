// Package integrity implements the Subresource-Integrity-style token used
// throughout the cache: "<algo>-<base64(digest)>", optionally with
// space-separated alternative algorithms. It supports parsing, canonical
// formatting, strength-ordered comparison, and incremental verification
// against a set of pluggable hashers.
package integrity

import (
	"crypto/sha1" //nolint:gosec // sharding only, not a security boundary (spec §4.1)
	"crypto/sha256"
	"crypto/sha512" // also provides SHA-384 (sha512.New384)
	"encoding/base64"
	"fmt"
	"hash"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
)

// Algorithm names as they appear in an Integrity token and on disk under
// content-v2/<algo>/... (spec.md §3, §6).
const (
	SHA256 = "sha256"
	SHA384 = "sha384"
	SHA512 = "sha512"
	SHA1   = "sha1"
	XXH3   = "xxh3"
)

// strength ranks algorithms from weakest to strongest for comparison
// purposes (spec.md §3: "Ordering picks the strongest available algorithm").
var strength = map[string]int{
	SHA1:   0,
	XXH3:   1,
	SHA256: 2,
	SHA384: 3,
	SHA512: 4,
}

// Hash constructs a new incremental hasher for algo, or an error if algo is
// unknown. xxh3 is backed by cespare/xxhash/v2 (a 64-bit xxHash variant used
// here as the project's fast, non-cryptographic option); all others are
// standard library.
func Hash(algo string) (hash.Hash, error) {
	switch algo {
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	case SHA1:
		return sha1.New(), nil //nolint:gosec
	case XXH3:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", cacheerr.ErrBadIntegrity, algo)
	}
}

// Entry is one "<algo>-<base64digest>" component of an Integrity token.
type Entry struct {
	Algorithm string
	Digest    []byte // raw, decoded digest bytes
}

func (e Entry) String() string {
	return e.Algorithm + "-" + base64.StdEncoding.EncodeToString(e.Digest)
}

// Hex returns the lowercase hex encoding of the digest, used to derive
// on-disk content paths (spec.md §4.1).
func (e Entry) Hex() string {
	return fmt.Sprintf("%x", e.Digest)
}

// Integrity is a parsed SRI-style token: one or more alternative digests of
// the same bytes, each under a (possibly different) algorithm.
type Integrity struct {
	entries []Entry
}

// Parse decodes a textual integrity token of the form
// "<algo>-<base64>(?:[ ?]<algo>-<base64>)*". Unknown algorithms and
// malformed base64 are rejected with cacheerr.ErrBadIntegrity.
func Parse(s string) (Integrity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Integrity{}, fmt.Errorf("%w: empty token", cacheerr.ErrBadIntegrity)
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '?' })
	if len(fields) == 0 {
		return Integrity{}, fmt.Errorf("%w: empty token", cacheerr.ErrBadIntegrity)
	}
	entries := make([]Entry, 0, len(fields))
	for _, f := range fields {
		idx := strings.IndexByte(f, '-')
		if idx <= 0 {
			return Integrity{}, fmt.Errorf("%w: malformed component %q", cacheerr.ErrBadIntegrity, f)
		}
		algo, b64 := f[:idx], f[idx+1:]
		if _, known := strength[algo]; !known {
			return Integrity{}, fmt.Errorf("%w: unknown algorithm %q", cacheerr.ErrBadIntegrity, algo)
		}
		digest, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return Integrity{}, fmt.Errorf("%w: bad base64 in %q: %v", cacheerr.ErrBadIntegrity, f, err)
		}
		entries = append(entries, Entry{Algorithm: algo, Digest: digest})
	}
	return Integrity{entries: entries}, nil
}

// New builds an Integrity token directly from a single algorithm and raw
// digest bytes — the common case after a writer finalizes a hash.
func New(algo string, digest []byte) Integrity {
	return Integrity{entries: []Entry{{Algorithm: algo, Digest: append([]byte(nil), digest...)}}}
}

// IsZero reports whether i holds no entries (the tombstone / "absent" case
// in the index data model, spec.md §3).
func (i Integrity) IsZero() bool { return len(i.entries) == 0 }

// String renders the canonical textual form: entries space-separated,
// strongest first. Round-trips through Parse (spec.md §8, property 5),
// modulo the fact that alternative-order is not itself significant.
func (i Integrity) String() string {
	if i.IsZero() {
		return ""
	}
	sorted := append([]Entry(nil), i.entries...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return strength[sorted[a].Algorithm] > strength[sorted[b].Algorithm]
	})
	parts := make([]string, len(sorted))
	for idx, e := range sorted {
		parts[idx] = e.String()
	}
	return strings.Join(parts, " ")
}

// Strongest returns the entry using the highest-strength algorithm present.
func (i Integrity) Strongest() (Entry, bool) {
	if i.IsZero() {
		return Entry{}, false
	}
	best := i.entries[0]
	for _, e := range i.entries[1:] {
		if strength[e.Algorithm] > strength[best.Algorithm] {
			best = e
		}
	}
	return best, true
}

// Entries returns the component entries in token order (not strength order).
func (i Integrity) Entries() []Entry { return append([]Entry(nil), i.entries...) }

// Matches reports whether the digests of i and other agree under the
// highest-strength algorithm the two share (tokens with no algorithm in
// common never match) — the rule used to accept a computed digest against a
// caller-declared expected integrity (spec.md §4.4, commit step 2), and to
// compare two tokens using "the highest-strength algo shared between two
// tokens" (spec.md §6).
func (i Integrity) Matches(other Integrity) bool {
	if i.IsZero() || other.IsZero() {
		return false
	}
	var bestShared int = -1
	matched := false
	for _, a := range i.entries {
		for _, b := range other.entries {
			if a.Algorithm != b.Algorithm {
				continue
			}
			s := strength[a.Algorithm]
			eq := byteEqual(a.Digest, b.Digest)
			if s > bestShared {
				// A stronger shared algorithm decides the outcome on its own.
				bestShared, matched = s, eq
			} else if s == bestShared && eq {
				matched = true
			}
		}
	}
	return matched
}

func byteEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for idx := range a {
		if a[idx] != b[idx] {
			return false
		}
	}
	return true
}
