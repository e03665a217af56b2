package pathlayout

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynqcloud/go-storage/internal/integrity"
)

func TestContentPathShardsHexDigest(t *testing.T) {
	sri := integrity.New(integrity.SHA256, []byte{0xab, 0xcd, 0xef, 0x01})
	got, err := ContentPath("/root", sri)
	require.NoError(t, err)
	assert.Equal(t, "/root/content-v2/sha256/ab/cd/ef01", got)
}

func TestContentPathEmptyIntegrity(t *testing.T) {
	_, err := ContentPath("/root", integrity.Integrity{})
	assert.Error(t, err)
}

func TestContentPathUsesStrongestAlgorithm(t *testing.T) {
	weak := integrity.New(integrity.SHA1, []byte{0x11, 0x22, 0x33, 0x44})
	strong := integrity.New(integrity.SHA512, []byte{0x55, 0x66, 0x77, 0x88})
	combined, err := integrity.Parse(weak.String() + " " + strong.String())
	require.NoError(t, err)

	got, err := ContentPath("/root", combined)
	require.NoError(t, err)
	assert.True(t, strings.Contains(got, "/sha512/"))
}

func TestContentPathForAlgoShortDigest(t *testing.T) {
	got := ContentPathForAlgo("/root", "sha256", "ab")
	assert.Equal(t, "/root/content-v2/sha256/ab", got)
}

func TestBucketPathDeterministic(t *testing.T) {
	a := BucketPath("/root", "my-key")
	b := BucketPath("/root", "my-key")
	assert.Equal(t, a, b)
}

func TestBucketPathDiffersByKey(t *testing.T) {
	a := BucketPath("/root", "key-one")
	b := BucketPath("/root", "key-two")
	assert.NotEqual(t, a, b)
}

func TestBucketPathShape(t *testing.T) {
	got := BucketPath("/root", "some-key")
	assert.True(t, strings.HasPrefix(got, "/root/index-v5/"))
	rest := strings.TrimPrefix(got, "/root/index-v5/")
	parts := strings.Split(rest, "/")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 2)
	assert.Len(t, parts[1], 2)
}
