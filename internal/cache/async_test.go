package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAsyncWriteAndClose(t *testing.T) {
	c := newTestCache(t)
	a, err := c.OpenAsync("async-key", PutOptions{})
	require.NoError(t, err)

	data := []byte("non-blocking payload")
	writeTask, err := a.PollWrite(GoExecutor, data)
	require.NoError(t, err)
	n, err := writeTask.Wait()
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	closeTask, err := a.PollClose(GoExecutor)
	require.NoError(t, err)
	sri, err := closeTask.Wait()
	require.NoError(t, err)
	assert.False(t, sri.IsZero())

	got, _, err := c.GetBytes("async-key")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
