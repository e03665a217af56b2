package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncExec runs tasks inline, making the async surface deterministic to
// test without needing a real goroutine pool.
func syncExec(fn func()) { fn() }

func TestAsyncWriteThenCommit(t *testing.T) {
	root := t.TempDir()
	w, err := Open(root, Options{Key: "async-key"})
	require.NoError(t, err)
	a := NewAsync(w)

	writeTask, err := a.PollWrite(syncExec, []byte("async payload"))
	require.NoError(t, err)
	n, err := writeTask.Wait()
	require.NoError(t, err)
	assert.Equal(t, len("async payload"), n)

	closeTask, err := a.PollClose(syncExec)
	require.NoError(t, err)
	sri, err := closeTask.Wait()
	require.NoError(t, err)
	assert.False(t, sri.IsZero())
}

func TestAsyncRejectsConcurrentTasks(t *testing.T) {
	root := t.TempDir()
	w, err := Open(root, Options{})
	require.NoError(t, err)
	a := NewAsync(w)

	blockExec := func(fn func()) { /* never runs fn, simulating in-flight work */ }
	_, err = a.PollWrite(blockExec, []byte("first"))
	require.NoError(t, err)

	_, err = a.PollWrite(syncExec, []byte("second"))
	assert.Error(t, err, "a second task while one is in flight should be rejected")
}

func TestAsyncRejectsOperationsAfterClose(t *testing.T) {
	root := t.TempDir()
	w, err := Open(root, Options{})
	require.NoError(t, err)
	a := NewAsync(w)

	closeTask, err := a.PollClose(syncExec)
	require.NoError(t, err)
	_, err = closeTask.Wait()
	require.NoError(t, err)

	_, err = a.PollWrite(syncExec, []byte("too late"))
	assert.Error(t, err)
}

func TestAsyncCancelAbortsWriter(t *testing.T) {
	root := t.TempDir()
	w, err := Open(root, Options{})
	require.NoError(t, err)
	a := NewAsync(w)

	require.NoError(t, a.Cancel())

	_, err = a.PollWrite(syncExec, []byte("after cancel"))
	assert.Error(t, err)
}
