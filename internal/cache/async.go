package cache

import (
	"github.com/zynqcloud/go-storage/internal/writer"
)

// GoExecutor is the default writer.Executor for the non-blocking surface: it
// runs the task on a freshly-spawned goroutine. Supplied here (rather than
// by internal/writer) because the choice of concurrency runtime is
// explicitly out of the core's scope (spec.md §1) — internal/cache is where
// the project picks one, the way cmd/server picks an HTTP server.
func GoExecutor(fn func()) { go fn() }

// OpenAsync begins a non-blocking write under key, mirroring Put's options,
// and returns an Async handle. Each PollWrite/PollFlush/PollClose call takes
// the writer.Executor its work runs on (GoExecutor is this package's).
func (c *Cache) OpenAsync(key string, opts PutOptions) (*writer.Async, error) {
	wOpts := writer.Options{
		Key:         key,
		Algorithm:   c.Algorithm,
		Expected:    opts.Expected,
		Metadata:    opts.Metadata,
		RawMetadata: opts.RawMetadata,
		Time:        opts.Time,
		Owner:       opts.Owner,
	}
	if opts.HasSize {
		size := opts.Size
		wOpts.Size = &size
	}
	w, err := writer.Open(c.Root, wOpts)
	if err != nil {
		return nil, err
	}
	return writer.NewAsync(w), nil
}
