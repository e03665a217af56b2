package reader

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
	"github.com/zynqcloud/go-storage/internal/integrity"
	"github.com/zynqcloud/go-storage/internal/writer"
)

func commitViaWriter(t *testing.T, root, key string, data []byte) (string, error) {
	t.Helper()
	w, err := writer.Open(root, writer.Options{Key: key})
	require.NoError(t, err)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Abort() //nolint:errcheck
		return "", err
	}
	sri, err := w.Commit()
	if err != nil {
		return "", err
	}
	return sri.String(), nil
}

func TestByKeyRoundTrip(t *testing.T) {
	root := t.TempDir()
	data := []byte("round trip via key")
	_, err := commitViaWriter(t, root, "mykey", data)
	require.NoError(t, err)

	r := New(root)
	vr, entry, err := r.ByKey("mykey")
	require.NoError(t, err)
	defer vr.Close()

	got, err := io.ReadAll(vr)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "mykey", entry.Key)

	_, err = vr.Finalize()
	require.NoError(t, err)
}

func TestByKeyNotFound(t *testing.T) {
	root := t.TempDir()
	r := New(root)
	_, _, err := r.ByKey("missing")
	assert.ErrorIs(t, err, cacheerr.ErrNotFound)
}

func TestByHashBypassesIndex(t *testing.T) {
	root := t.TempDir()
	data := []byte("by hash content")
	sriStr, err := commitViaWriter(t, root, "", data)
	require.NoError(t, err)

	sri, err := integrity.Parse(sriStr)
	require.NoError(t, err)

	r := New(root)
	vr, err := r.ByHash(sri)
	require.NoError(t, err)
	defer vr.Close()

	got, err := io.ReadAll(vr)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadAllByKey(t *testing.T) {
	root := t.TempDir()
	data := []byte("full read via key")
	_, err := commitViaWriter(t, root, "full-key", data)
	require.NoError(t, err)

	r := New(root)
	got, entry, err := r.ReadAllByKey("full-key")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "full-key", entry.Key)
}

func TestReadAllByKeyNotFound(t *testing.T) {
	root := t.TempDir()
	r := New(root)
	_, _, err := r.ReadAllByKey("missing")
	assert.ErrorIs(t, err, cacheerr.ErrNotFound)
}
