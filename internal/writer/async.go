package writer

import (
	"sync"

	"github.com/zynqcloud/go-storage/internal/cacheerr"
	"github.com/zynqcloud/go-storage/internal/integrity"
)

// Async wraps a Writer for the cache's non-blocking surface (spec.md §4.4
// "Concurrency note", §5). It delegates every blocking operation (mmap
// flush, temp-file I/O, rename-persist) to a caller-supplied blocking
// executor, and serializes calls through an explicit state discriminant so
// that at most one blocking task is in flight per writer at a time — the
// mutex is released before the task itself runs.
//
// This is a one-line adapter over the same Writer state machine used by the
// blocking surface, not a reimplementation (spec.md's design note on
// replacing runtime-flavored async duplication).
type Async struct {
	mu   sync.Mutex
	w    *Writer
	busy bool
	done bool
}

// Executor runs fn on a blocking worker; it returns nothing, and completion
// is reported through the Task returned by the Poll method that called it.
// internal/cache supplies a concrete Executor (GoExecutor) for its
// non-blocking surface; the core itself is agnostic to the scheduler, per
// spec.md §1's "the choice of concurrency runtime" being out of core scope.
type Executor func(fn func())

// NewAsync wraps w for non-blocking use.
func NewAsync(w *Writer) *Async {
	return &Async{w: w}
}

// Task represents a pending blocking operation. Callers either poll Done()
// or block on Wait().
type Task[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newTask[T any]() *Task[T] {
	return &Task[T]{done: make(chan struct{})}
}

func (t *Task[T]) finish(val T, err error) {
	t.val, t.err = val, err
	close(t.done)
}

// Done reports whether the task has completed without blocking.
func (t *Task[T]) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task completes and returns its result.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	return t.val, t.err
}

// acquire transitions Idle -> Busy, failing if a task is already in flight
// or the writer is closed. The mutex is held only for this check; it is
// never held while exec runs the blocking work.
func (a *Async) acquire() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return cacheerr.ErrClosed
	}
	if a.busy {
		return errBusy
	}
	a.busy = true
	return nil
}

func (a *Async) release(closed bool) {
	a.mu.Lock()
	a.busy = false
	if closed {
		a.done = true
	}
	a.mu.Unlock()
}

// PollWrite spools p asynchronously via exec.
func (a *Async) PollWrite(exec Executor, p []byte) (*Task[int], error) {
	if err := a.acquire(); err != nil {
		return nil, err
	}
	t := newTask[int]()
	exec(func() {
		n, err := a.w.Write(p)
		a.release(false)
		t.finish(n, err)
	})
	return t, nil
}

// PollFlush flushes asynchronously via exec.
func (a *Async) PollFlush(exec Executor) (*Task[struct{}], error) {
	if err := a.acquire(); err != nil {
		return nil, err
	}
	t := newTask[struct{}]()
	exec(func() {
		err := a.w.Flush()
		a.release(false)
		t.finish(struct{}{}, err)
	})
	return t, nil
}

// PollClose commits the writer asynchronously via exec, transitioning Async
// to Closed regardless of outcome (the underlying Writer is single-use).
func (a *Async) PollClose(exec Executor) (*Task[integrity.Integrity], error) {
	if err := a.acquire(); err != nil {
		return nil, err
	}
	t := newTask[integrity.Integrity]()
	exec(func() {
		sri, err := a.w.Commit()
		a.release(true)
		t.finish(sri, err)
	})
	return t, nil
}

// Cancel aborts the underlying writer. Safe to call from the caller's
// cancellation path (spec.md §5: dropping a non-blocking operation before
// completion cancels it at the next suspension point; the tempfile is
// cleaned up on drop). While a task is in flight Cancel does nothing and
// returns an error, since the blocking worker already owns the Writer; Wait
// on the task first.
func (a *Async) Cancel() error {
	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		return errBusy
	}
	a.done = true
	a.mu.Unlock()
	return a.w.Abort()
}

var errBusy = asyncError("writer: a task is already in flight")

type asyncError string

func (e asyncError) Error() string { return string(e) }
