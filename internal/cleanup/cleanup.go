// Package cleanup reclaims disk space from abandoned upload sessions.
//
// When a client calls InitUpload but then disconnects (network drop, crash,
// timeout) without calling CompleteUpload or AbortUpload, the session directory
// under .uploads/<sessionID>/ is left on disk indefinitely. At 100k uploads/day
// this accumulates gigabytes of orphaned part files. RunPeriodic removes any
// session directory whose mtime is older than the configured TTL.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/zynqcloud/go-storage/internal/telemetry"
)

// Sessions scans uploadsDir and removes subdirectories older than ttl.
// It is safe to call concurrently with active uploads: it only removes directories
// whose mtime pre-dates the cutoff, so in-progress sessions (recently modified) are
// left untouched.
func Sessions(uploadsDir string, ttl time.Duration, logger *slog.Logger) {
	entries, err := os.ReadDir(uploadsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("cleanup: readdir failed", "dir", uploadsDir, telemetry.Err(err))
		}
		return
	}

	cutoff := time.Now().Add(-ttl)
	var removed int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			dir := filepath.Join(uploadsDir, e.Name())
			age := time.Since(info.ModTime()).Round(time.Minute)
			if err := os.RemoveAll(dir); err != nil {
				logger.Warn("cleanup: remove failed", "session", e.Name(), telemetry.Err(err))
			} else {
				removed++
				logger.Info("cleanup: removed stale session", "session", e.Name(), "age", age)
			}
		}
	}
	if removed > 0 {
		logger.Info("cleanup: cycle complete", "removed", removed)
	}
}

// RunPeriodic starts a background goroutine that calls Sessions on every interval
// until ctx is cancelled. A first pass runs immediately at startup to flush
// sessions left over from a previous crash or restart. The returned channel is
// closed once the goroutine has observed ctx.Done and returned, so callers can
// wait for the final pass to finish during shutdown.
//
// Recommended values: ttl=24h, interval=1h.
func RunPeriodic(ctx context.Context, uploadsDir string, ttl, interval time.Duration, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Immediate first pass clears sessions from prior runs.
		Sessions(uploadsDir, ttl, logger)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				Sessions(uploadsDir, ttl, logger)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// Tmp scans a writer's tmp/ spool directory (pathlayout.TmpDir under a cache
// root) and removes files older than ttl: these are the temp files a Writer
// leaves behind when a process crashes mid-write, between Open and
// Commit/Abort ever running. A live in-progress write's temp file is
// continuously appended to, so its mtime stays recent and it is never
// mistaken for an orphan.
func Tmp(tmpDir string, ttl time.Duration, logger *slog.Logger) {
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("cleanup: readdir failed", "dir", tmpDir, telemetry.Err(err))
		}
		return
	}

	cutoff := time.Now().Add(-ttl)
	var removed int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(tmpDir, e.Name())
			if err := os.Remove(path); err != nil {
				logger.Warn("cleanup: remove failed", "file", e.Name(), telemetry.Err(err))
			} else {
				removed++
			}
		}
	}
	if removed > 0 {
		logger.Info("cleanup: tmp sweep complete", "removed", removed)
	}
}

// RunPeriodicTmp is Tmp's RunPeriodic equivalent: it sweeps a cache's tmp/
// directory on the same immediate-then-ticker cadence, until ctx is
// cancelled.
func RunPeriodicTmp(ctx context.Context, tmpDir string, ttl, interval time.Duration, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		Tmp(tmpDir, ttl, logger)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				Tmp(tmpDir, ttl, logger)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}
