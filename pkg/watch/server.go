package watch

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/watchkit/watchkit/pkg/logging"
)

// platformServer is implemented by each operating system's run-loop backend
// (macServer, linuxServer, windowsServer). Go has no class inheritance, so
// the shared bookkeeping (WatchPoint accounting, the mutation mutex, the
// termination condition variable, and the cross-thread request queue) lives
// in baseServer, held by every platformServer implementation, while the
// OS-specific run loop and event mapping live in the concrete type.
type platformServer interface {
	// run executes the run loop until shutdown completes. It sends exactly
	// one value on ready: nil once initialization has succeeded and the
	// loop is ready to accept registerPath/unregisterPath calls, or a
	// non-nil *Error (always KindInitializationError) if the loop could not
	// start. run must be invoked on its own goroutine by the caller.
	run(ready chan<- error)
	// registerPath installs an OS-level watch for path. It is only ever
	// invoked on the run-loop goroutine, via baseServer.enqueue.
	registerPath(path string) *Error
	// unregisterPath removes any OS-level watch for path, if one exists. It
	// is only ever invoked on the run-loop goroutine, via baseServer.enqueue.
	unregisterPath(path string)
	// beginShutdown asks the run loop to release all OS resources and
	// exit once draining completes. It is only ever invoked on the
	// run-loop goroutine, via baseServer.enqueue.
	beginShutdown()
}

// workItem is a unit of cross-thread work handed to the run-loop goroutine
// through baseServer.requests: a generic "enqueue a work item for the loop;
// wake it" mechanism that each platform's run loop drains using whatever
// OS-specific mechanism it uses to actually wake up (a channel select on
// macOS/Linux, an APC on Windows).
type workItem struct {
	fn   func() *Error
	done chan *Error
}

// baseServer holds the state shared by every platformServer implementation.
type baseServer struct {
	sink    ChangeSink
	latency time.Duration
	filter  Filter
	logger  *logging.Logger
	handle  uuid.UUID

	// requests is the cross-thread wakeup queue: StartWatching/StopWatching/
	// Close construct a workItem and send it here, then block on its done
	// channel. The run loop drains this channel as part of its OS-specific
	// wait primitive and executes each item's fn synchronously in FIFO order,
	// which is what guarantees "WatchPoint set is only mutated from the
	// run-loop thread." It holds one item, so the hand-off completes before
	// wakeHook runs even while the run loop is blocked elsewhere.
	requests chan workItem

	// wakeHook, if set by the platform constructor, is called immediately
	// after a workItem is handed off, so that a run loop blocked in an
	// OS-specific wait primitive notices the new request without a separate
	// polling interval. Only the Linux backend sets it (a self-pipe write
	// that wakes unix.Poll). macOS needs no extra poke, since its run loop is
	// a native Go select over base.requests, and on Windows a forwarding
	// goroutine turns each request into an APC for the alertable wait.
	wakeHook func()

	// mutationMutex serializes StartWatching/StopWatching/Close calls from
	// the caller side.
	mutationMutex sync.Mutex

	// registered tracks which paths are currently believed to be watched,
	// for AlreadyWatching detection and the "were all paths previously
	// watched" return value of StopWatching. It is guarded by mutationMutex
	// and only touched by the caller-side Watcher methods; a watch that the
	// run loop drops on its own (a deleted root) stays listed here.
	registered map[string]bool

	// runLoopDone is closed once the run loop has fully exited.
	runLoopDone chan struct{}

	// terminationMutex and terminationCond let Close block on terminationCond,
	// waiting up to its timeout for terminated to become true.
	terminationMutex sync.Mutex
	terminationCond  *sync.Cond
	terminated       bool
	closeCalled      bool
}

func newBaseServer(sink ChangeSink, latency time.Duration, filter Filter, logger *logging.Logger) baseServer {
	b := baseServer{
		sink:        sink,
		latency:     latency,
		filter:      filter,
		logger:      logger,
		handle:      uuid.New(),
		requests:    make(chan workItem, 1),
		registered:  make(map[string]bool),
		runLoopDone: make(chan struct{}),
	}
	b.terminationCond = sync.NewCond(&b.terminationMutex)
	return b
}

// enqueue hands fn to the run-loop goroutine and blocks for its result. If
// the run loop has already exited, it returns an InternalError rather than
// blocking forever.
func (b *baseServer) enqueue(fn func() *Error) *Error {
	item := workItem{fn: fn, done: make(chan *Error, 1)}
	select {
	case b.requests <- item:
		if b.wakeHook != nil {
			b.wakeHook()
		}
	case <-b.runLoopDone:
		return newError(KindInternalError, "run loop is no longer active", "", 0, nil)
	}
	select {
	case err := <-item.done:
		return err
	case <-b.runLoopDone:
		return newError(KindInternalError, "run loop terminated before completing request", "", 0, nil)
	}
}

// reportEvent normalizes and dispatches a single change to the sink, honoring
// any configured Filter. relativePath is used only for filter evaluation;
// absolutePath, always an absolute path, is what's delivered to the sink and
// what lets a Filter built by CompileRootIgnorePatterns tell which watch root
// the event came from.
func (b *baseServer) reportEvent(eventType ChangeType, absolutePath, relativePath string) {
	if b.filter != nil && b.filter(absolutePath, relativePath) {
		return
	}
	dispatch(b.sink, b.logger, eventType, absolutePath)
}

// reportInternalError delivers a non-fatal, run-loop-originated error to the
// sink's ReportError method, logging it first if a logger is configured.
func (b *baseServer) reportInternalError(err *Error) {
	if b.logger != nil {
		b.logger.Warn(err)
	}
	b.sink.ReportError(err)
}

// validateTarget checks that path is absolute and, on platforms that
// require the target to already exist (everywhere except macOS, where
// FSEvents tolerates watching a path that doesn't exist yet), that it
// refers to an existing directory.
func validateTarget(path string, requireExistingDirectory bool) *Error {
	if !filepath.IsAbs(path) {
		return newError(KindInvalidTarget, "watch target must be an absolute path", path, 0, nil)
	}
	if !requireExistingDirectory {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return newError(KindInvalidTarget, "watch target does not exist", path, 0, err)
	}
	if !info.IsDir() {
		return newError(KindInvalidTarget, "watch target is not a directory", path, 0, nil)
	}
	return nil
}
