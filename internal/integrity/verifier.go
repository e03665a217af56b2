package integrity

import (
	"fmt"
	"hash"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
)

// Verifier incrementally feeds bytes to one hasher per algorithm present in
// an expected Integrity token, and reports on Finalize whether any of them
// matches. This is the engine behind the verified reader (spec.md §4.5) and
// the writer's commit-time check (spec.md §4.4).
//
// Every byte passed to Write must be exactly the bytes the caller intends to
// verify (spec.md §4.5: "never the tail of a partially-filled buffer").
type Verifier struct {
	expected Integrity
	hashers  []namedHasher
}

type namedHasher struct {
	algo string
	h    hash.Hash
}

// NewVerifier builds a Verifier that will check fed bytes against every
// algorithm present in expected.
func NewVerifier(expected Integrity) (*Verifier, error) {
	if expected.IsZero() {
		return nil, fmt.Errorf("%w: verifier requires a non-empty integrity token", cacheerr.ErrBadIntegrity)
	}
	v := &Verifier{expected: expected}
	seen := make(map[string]bool, len(expected.entries))
	for _, e := range expected.entries {
		if seen[e.Algorithm] {
			continue
		}
		seen[e.Algorithm] = true
		h, err := Hash(e.Algorithm)
		if err != nil {
			return nil, err
		}
		v.hashers = append(v.hashers, namedHasher{algo: e.Algorithm, h: h})
	}
	return v, nil
}

// Write feeds p into every live hasher. It never returns an error; hash.Hash
// implementations in the standard library and xxhash are documented never
// to fail.
func (v *Verifier) Write(p []byte) (int, error) {
	for _, nh := range v.hashers {
		nh.h.Write(p) //nolint:errcheck
	}
	return len(p), nil
}

// Finalize computes the digest of every fed algorithm and compares against
// the expected token. It returns the name of the first matching algorithm
// (in token order) or a *cacheerr.IntegrityMismatchError if none matched.
func (v *Verifier) Finalize() (string, error) {
	var computed []Entry
	for _, nh := range v.hashers {
		computed = append(computed, Entry{Algorithm: nh.algo, Digest: nh.h.Sum(nil)})
	}
	computedIntegrity := Integrity{entries: computed}

	for _, want := range v.expected.entries {
		for _, got := range computed {
			if want.Algorithm == got.Algorithm && byteEqual(want.Digest, got.Digest) {
				return got.Algorithm, nil
			}
		}
	}
	return "", &cacheerr.IntegrityMismatchError{
		Expected: v.expected.String(),
		Actual:   computedIntegrity.String(),
	}
}
