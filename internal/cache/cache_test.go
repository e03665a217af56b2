package cache

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
	"github.com/zynqcloud/go-storage/internal/integrity"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	root := t.TempDir()
	c, err := New(root, integrity.SHA256)
	require.NoError(t, err)
	return c
}

func TestPutBytesAndGetBytes(t *testing.T) {
	c := newTestCache(t)
	data := []byte("hello cache")

	sri, err := c.PutBytes("greeting", data, PutOptions{})
	require.NoError(t, err)
	assert.False(t, sri.IsZero())

	got, entry, err := c.GetBytes("greeting")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "greeting", entry.Key)
}

func TestPutReportNewTracksDedup(t *testing.T) {
	c := newTestCache(t)
	data := []byte("shared payload")

	_, isNew1, err := c.PutReportNew("k1", bytes.NewReader(data), PutOptions{})
	require.NoError(t, err)
	assert.True(t, isNew1)

	_, isNew2, err := c.PutReportNew("k2", bytes.NewReader(data), PutOptions{})
	require.NoError(t, err)
	assert.False(t, isNew2)
}

func TestGetMissingKey(t *testing.T) {
	c := newTestCache(t)
	_, _, err := c.Get("nope")
	assert.ErrorIs(t, err, cacheerr.ErrNotFound)
}

func TestHasReflectsLiveEntry(t *testing.T) {
	c := newTestCache(t)
	_, err := c.PutBytes("present", []byte("data"), PutOptions{})
	require.NoError(t, err)

	ok, _, err := c.Has("present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = c.Has("absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveEntryTombstonesButKeepsBlobForSharedContent(t *testing.T) {
	c := newTestCache(t)
	data := []byte("shared blob")
	_, err := c.PutBytes("key-a", data, PutOptions{})
	require.NoError(t, err)
	_, err = c.PutBytes("key-b", data, PutOptions{})
	require.NoError(t, err)

	require.NoError(t, c.RemoveEntry("key-a"))

	_, _, err = c.Get("key-a")
	assert.ErrorIs(t, err, cacheerr.ErrNotFound)

	got, _, err := c.GetBytes("key-b")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPurgeRemovesEntryAndBlob(t *testing.T) {
	c := newTestCache(t)
	sri, err := c.PutBytes("to-purge", []byte("gone soon"), PutOptions{})
	require.NoError(t, err)

	require.NoError(t, c.Purge("to-purge"))

	_, _, err = c.Get("to-purge")
	assert.ErrorIs(t, err, cacheerr.ErrNotFound)

	exists, err := c.store.Exists(sri)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListReturnsLiveKeys(t *testing.T) {
	c := newTestCache(t)
	_, err := c.PutBytes("one", []byte("1"), PutOptions{})
	require.NoError(t, err)
	_, err = c.PutBytes("two", []byte("2"), PutOptions{})
	require.NoError(t, err)
	require.NoError(t, c.RemoveEntry("two"))

	entries, err := c.List()
	require.NoError(t, err)

	keys := map[string]bool{}
	for _, e := range entries {
		keys[e.Key] = true
	}
	assert.True(t, keys["one"])
	assert.False(t, keys["two"])
}

func TestClearRemovesEverything(t *testing.T) {
	c := newTestCache(t)
	_, err := c.PutBytes("one", []byte("1"), PutOptions{})
	require.NoError(t, err)
	_, err = c.PutBytes("two", []byte("2"), PutOptions{})
	require.NoError(t, err)

	require.NoError(t, c.Clear())

	entries, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetByHashBypassesIndex(t *testing.T) {
	c := newTestCache(t)
	sri, err := c.PutBytes("by-hash-key", []byte("hash content"), PutOptions{})
	require.NoError(t, err)

	rc, err := c.GetByHash(sri)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("hash content"), got)
}

func TestLinkExternalViaCache(t *testing.T) {
	c := newTestCache(t)
	extDir := t.TempDir()
	extPath := filepath.Join(extDir, "ext.bin")
	data := []byte("external cache content")
	require.NoError(t, os.WriteFile(extPath, data, 0o640))

	sri, err := c.LinkExternal(extPath, "linked")
	require.NoError(t, err)
	assert.False(t, sri.IsZero())

	got, _, err := c.GetBytes("linked")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

