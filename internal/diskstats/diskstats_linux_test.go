//go:build linux

package diskstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatsReportsNonZeroForRealPath(t *testing.T) {
	avail, total := Stats(t.TempDir())
	assert.Greater(t, total, uint64(0))
	assert.LessOrEqual(t, avail, total)
}

func TestStatsReturnsZeroForMissingPath(t *testing.T) {
	avail, total := Stats("/this/path/does/not/exist/hopefully")
	assert.EqualValues(t, 0, avail)
	assert.EqualValues(t, 0, total)
}
