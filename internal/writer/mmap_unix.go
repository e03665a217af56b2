//go:build unix

package writer

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
)

// mapSpool preallocates the temp file to size and memory-maps it for
// writing. Grounded on the syscall.Mmap idiom in
// calvinalkan-agent-task/internal/ticket/cache.go and
// calvinalkan-agent-task/pkg/slotcache/open.go.
func (w *Writer) mapSpool(size int64) error {
	if size == 0 {
		// Nothing to map; zero-length mmaps are invalid on most platforms,
		// and a zero-byte blob needs no spool at all.
		return errZeroSizeMmap
	}
	if err := w.tmpFile.Truncate(size); err != nil {
		return cacheerr.WrapPath("truncate", w.tmpPath, err)
	}
	data, err := syscall.Mmap(int(w.tmpFile.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return cacheerr.WrapPath("mmap", w.tmpPath, err)
	}
	w.mmapData = data
	return nil
}

// unmapSpool flushes and releases the mmap, seeking the underlying file to
// the current write offset so subsequent plain Write calls continue from
// the right place.
func (w *Writer) unmapSpool() error {
	if w.mmapData == nil {
		return nil
	}
	data := w.mmapData
	w.mmapData = nil

	if err := unix.Msync(data, unix.MS_SYNC); err != nil {
		syscall.Munmap(data) //nolint:errcheck
		return cacheerr.WrapPath("msync", w.tmpPath, err)
	}
	if err := syscall.Munmap(data); err != nil {
		return cacheerr.WrapPath("munmap", w.tmpPath, err)
	}
	if _, err := w.tmpFile.Seek(w.written, 0); err != nil {
		return cacheerr.WrapPath("seek", w.tmpPath, err)
	}
	return nil
}

// msyncAsync issues a best-effort asynchronous flush of the mmap region
// (spec.md §4.4: "the mmap flush is asynchronous where supported").
func (w *Writer) msyncAsync() error {
	if w.mmapData == nil {
		return nil
	}
	if err := unix.Msync(w.mmapData, unix.MS_ASYNC); err != nil {
		return cacheerr.WrapPath("msync", w.tmpPath, err)
	}
	return nil
}

var errZeroSizeMmap = mmapError("zero-size mmap request")

type mmapError string

func (e mmapError) Error() string { return string(e) }
