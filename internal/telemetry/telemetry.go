// Package telemetry wraps the package-level slog logger so the components
// that log — handlers, cleanup, cmd/server — share one structured-logging
// convention (the writer and index return errors rather than logging),
// grounded on the teacher's cmd/server/main.go slog.NewJSONHandler
// setup.
package telemetry

import (
	"log/slog"
	"os"
)

// logger is replaced by Init at startup; the zero value falls back to
// slog.Default() so packages can log before Init runs (e.g. in tests).
var logger = slog.Default()

// Init installs a JSON-handler logger at the given level as the package
// default, mirroring cmd/server/main.go's original slog.NewJSONHandler(os.Stdout, ...)
// setup, generalized to take a level instead of hardcoding Info.
func Init(level slog.Level) {
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// Log returns the shared logger.
func Log() *slog.Logger { return logger }

// Err builds the standard "err" attribute used throughout the cache's log
// lines (spec.md's error taxonomy surfaces as structured fields, not
// formatted strings).
func Err(err error) slog.Attr { return slog.Any("err", err) }
