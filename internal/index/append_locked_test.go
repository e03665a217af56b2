//go:build unix

package index

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendLockedResolvesLikeAppend(t *testing.T) {
	root := t.TempDir()
	sri := mustSRI(t, 1)
	require.NoError(t, AppendLocked(root, Entry{Key: "k1", Integrity: sri}))

	got, ok, err := Find(root, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sri.String(), got.Integrity.String())
}

func TestAppendLockedSerializesConcurrentWriters(t *testing.T) {
	root := t.TempDir()
	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sri := mustSRI(t, byte(n))
			AppendLocked(root, Entry{Key: "shared", Integrity: sri, Time: uint64(n)}) //nolint:errcheck
		}(i)
	}
	wg.Wait()

	_, ok, err := Find(root, "shared")
	require.NoError(t, err)
	assert.True(t, ok, "one of the concurrent writers should have left a resolvable entry")
}
