package writer

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
	"github.com/zynqcloud/go-storage/internal/index"
	"github.com/zynqcloud/go-storage/internal/integrity"
)

func TestCommitWithoutKeyOmitsIndexEntry(t *testing.T) {
	root := t.TempDir()
	w, err := Open(root, Options{})
	require.NoError(t, err)

	_, err = io.Copy(w, bytes.NewReader([]byte("content-only write")))
	require.NoError(t, err)

	sri, err := w.Commit()
	require.NoError(t, err)
	assert.False(t, sri.IsZero())

	_, ok, err := index.Find(root, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCommitWithKeyAppendsIndexEntry(t *testing.T) {
	root := t.TempDir()
	w, err := Open(root, Options{Key: "my-key"})
	require.NoError(t, err)

	data := []byte("keyed write")
	_, err = io.Copy(w, bytes.NewReader(data))
	require.NoError(t, err)

	sri, err := w.Commit()
	require.NoError(t, err)

	entry, ok, err := index.Find(root, "my-key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sri.String(), entry.Integrity.String())
	assert.EqualValues(t, len(data), entry.Size)
}

func TestCommitReportNewDedup(t *testing.T) {
	root := t.TempDir()
	data := []byte("dedup payload")

	w1, err := Open(root, Options{Key: "k1"})
	require.NoError(t, err)
	io.Copy(w1, bytes.NewReader(data)) //nolint:errcheck
	_, isNew1, err := w1.CommitReportNew()
	require.NoError(t, err)
	assert.True(t, isNew1)

	w2, err := Open(root, Options{Key: "k2"})
	require.NoError(t, err)
	io.Copy(w2, bytes.NewReader(data)) //nolint:errcheck
	_, isNew2, err := w2.CommitReportNew()
	require.NoError(t, err)
	assert.False(t, isNew2, "identical content committed under a second key is still a dedup hit")
}

func TestCommitRejectsSizeMismatch(t *testing.T) {
	root := t.TempDir()
	size := int64(100)
	w, err := Open(root, Options{Size: &size})
	require.NoError(t, err)

	io.Copy(w, bytes.NewReader([]byte("too short"))) //nolint:errcheck

	_, err = w.Commit()
	require.Error(t, err)
	var sizeErr *cacheerr.SizeMismatchError
	assert.ErrorAs(t, err, &sizeErr)
}

func TestCommitRejectsExpectedIntegrityMismatch(t *testing.T) {
	root := t.TempDir()
	wrong := integrity.New(integrity.SHA256, []byte{0x00, 0x01, 0x02, 0x03})
	w, err := Open(root, Options{Expected: wrong})
	require.NoError(t, err)

	io.Copy(w, bytes.NewReader([]byte("actual content"))) //nolint:errcheck

	_, err = w.Commit()
	require.Error(t, err)
	var mismatch *cacheerr.IntegrityMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestCommitAcceptsMatchingExpectedIntegrity(t *testing.T) {
	root := t.TempDir()
	data := []byte("matches expected")
	h, err := integrity.Hash(integrity.SHA256)
	require.NoError(t, err)
	h.Write(data) //nolint:errcheck
	expected := integrity.New(integrity.SHA256, h.Sum(nil))

	w, err := Open(root, Options{Expected: expected})
	require.NoError(t, err)
	io.Copy(w, bytes.NewReader(data)) //nolint:errcheck

	sri, err := w.Commit()
	require.NoError(t, err)
	assert.Equal(t, expected.String(), sri.String())
}

func TestAbortDiscardsTempFile(t *testing.T) {
	root := t.TempDir()
	w, err := Open(root, Options{})
	require.NoError(t, err)
	tmpPath := w.tmpPath

	io.Copy(w, bytes.NewReader([]byte("abandoned"))) //nolint:errcheck
	require.NoError(t, w.Abort())

	_, statErr := os.Stat(tmpPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteAfterCommitFails(t *testing.T) {
	root := t.TempDir()
	w, err := Open(root, Options{})
	require.NoError(t, err)
	io.Copy(w, bytes.NewReader([]byte("data"))) //nolint:errcheck
	_, err = w.Commit()
	require.NoError(t, err)

	_, err = w.Write([]byte("more"))
	assert.ErrorIs(t, err, cacheerr.ErrClosed)
}

func TestAbortAfterCommitIsNoOp(t *testing.T) {
	root := t.TempDir()
	w, err := Open(root, Options{})
	require.NoError(t, err)
	io.Copy(w, bytes.NewReader([]byte("data"))) //nolint:errcheck
	_, err = w.Commit()
	require.NoError(t, err)

	assert.NoError(t, w.Abort())
}

func TestCommitWithOwnerCommitsAndIndexes(t *testing.T) {
	root := t.TempDir()
	uid := os.Getuid()
	w, err := Open(root, Options{Key: "owned-key", Owner: &uid})
	require.NoError(t, err)

	_, err = io.Copy(w, bytes.NewReader([]byte("owned content")))
	require.NoError(t, err)

	sri, err := w.Commit()
	require.NoError(t, err)
	assert.False(t, sri.IsZero())

	entry, ok, err := index.Find(root, "owned-key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sri.String(), entry.Integrity.String())
}

func TestCommitWithNilOwnerIsNoOp(t *testing.T) {
	root := t.TempDir()
	w, err := Open(root, Options{Key: "unowned-key"})
	require.NoError(t, err)

	_, err = io.Copy(w, bytes.NewReader([]byte("unowned content")))
	require.NoError(t, err)

	_, err = w.Commit()
	require.NoError(t, err)
}

func TestMmapPathBelowCeiling(t *testing.T) {
	root := t.TempDir()
	size := int64(1024)
	w, err := Open(root, Options{Size: &size})
	require.NoError(t, err)

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	_, err = io.Copy(w, bytes.NewReader(data))
	require.NoError(t, err)

	sri, err := w.Commit()
	require.NoError(t, err)
	assert.False(t, sri.IsZero())
}

