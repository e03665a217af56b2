package telemetry

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitInstallsLoggerReturnedByLog(t *testing.T) {
	Init(slog.LevelDebug)
	got := Log()
	assert.NotNil(t, got)
	assert.Same(t, got, slog.Default())
}

func TestErrAttrWrapsError(t *testing.T) {
	attr := Err(errors.New("boom"))
	assert.Equal(t, "err", attr.Key)
	assert.Equal(t, "boom", attr.Value.Any().(error).Error())
}

func TestLogNeverNilBeforeInit(t *testing.T) {
	assert.NotNil(t, Log())
}
