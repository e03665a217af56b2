package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
)

func digestOf(t *testing.T, algo string, data []byte) Integrity {
	t.Helper()
	h, err := Hash(algo)
	require.NoError(t, err)
	h.Write(data) //nolint:errcheck
	return New(algo, h.Sum(nil))
}

func TestVerifierAcceptsMatchingData(t *testing.T) {
	data := []byte("hello, cache")
	expected := digestOf(t, SHA256, data)

	v, err := NewVerifier(expected)
	require.NoError(t, err)

	n, err := v.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	algo, err := v.Finalize()
	require.NoError(t, err)
	assert.Equal(t, SHA256, algo)
}

func TestVerifierRejectsTamperedData(t *testing.T) {
	expected := digestOf(t, SHA256, []byte("original"))

	v, err := NewVerifier(expected)
	require.NoError(t, err)
	v.Write([]byte("tampered")) //nolint:errcheck

	_, err = v.Finalize()
	require.Error(t, err)
	var mismatch *cacheerr.IntegrityMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestVerifierIncrementalWrites(t *testing.T) {
	data := []byte("streamed in several chunks across calls")
	expected := digestOf(t, SHA256, data)

	v, err := NewVerifier(expected)
	require.NoError(t, err)
	for i := 0; i < len(data); i += 7 {
		end := i + 7
		if end > len(data) {
			end = len(data)
		}
		v.Write(data[i:end]) //nolint:errcheck
	}

	algo, err := v.Finalize()
	require.NoError(t, err)
	assert.Equal(t, SHA256, algo)
}

func TestVerifierRejectsEmptyExpected(t *testing.T) {
	_, err := NewVerifier(Integrity{})
	assert.Error(t, err)
}

func TestVerifierMultiAlgorithmPicksAnyMatch(t *testing.T) {
	data := []byte("multi-algo payload")
	sha := digestOf(t, SHA256, data)
	bogus := New(SHA1, []byte{0x00, 0x01, 0x02, 0x03, 0x04})

	combined, err := Parse(bogus.String() + " " + sha.String())
	require.NoError(t, err)

	v, err := NewVerifier(combined)
	require.NoError(t, err)
	v.Write(data) //nolint:errcheck

	algo, err := v.Finalize()
	require.NoError(t, err)
	assert.Equal(t, SHA256, algo)
}
