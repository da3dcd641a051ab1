package watch

import (
	"runtime"
	"time"

	"github.com/watchkit/watchkit/pkg/logging"
)

// Option configures optional behavior of a Watcher created via CreateWatcher.
// Options are additive: none of them change CreateWatcher, StartWatching,
// StopWatching, or Close's documented signatures or failure modes.
type Option func(*config)

type config struct {
	filter              Filter
	maxWatchDescriptors int
	logger              *logging.Logger
}

// WithFilter attaches a Filter that excludes matching paths from ever
// reaching the ChangeSink. See CompileIgnorePatterns for a glob-based
// implementation.
func WithFilter(filter Filter) Option {
	return func(c *config) {
		c.filter = chain(c.filter, filter)
	}
}

// WithMaxWatchDescriptors bounds the number of concurrently active Linux
// inotify watch descriptors a Watcher will install, guarding against the
// kernel's systemwide max_user_watches ceiling. It has no effect on macOS
// or Windows.
func WithMaxWatchDescriptors(max int) Option {
	return func(c *config) {
		c.maxWatchDescriptors = max
	}
}

// WithLogger attaches a logger used to report internal, non-fatal
// conditions. If not supplied, logging.RootLogger is used.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Watcher is the opaque public handle returned by CreateWatcher. It drives
// exactly one platformServer.
type Watcher struct {
	base     *baseServer
	platform platformServer
}

// CreateWatcher creates and starts a Watcher backed by the current
// platform's native filesystem change notification facility. It blocks
// until the run loop has finished initializing (or failed to). latency is
// the coalescing window hint passed to platforms that support one (macOS);
// it is ignored, but accepted, on platforms that do not.
func CreateWatcher(sink ChangeSink, latency time.Duration, opts ...Option) (*Watcher, error) {
	if latency < 0 {
		return nil, newError(KindInvalidTarget, "latency must be non-negative", "", 0, nil)
	}

	var c config
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = logging.RootLogger
	}

	base := newBaseServer(sink, latency, c.filter, c.logger)
	// newBaseServer returns its value by copy, so bind the condition variable
	// to this copy's terminationMutex rather than the original's.
	base.terminationCond.L = &base.terminationMutex
	platform := newPlatformServer(&base, c.maxWatchDescriptors)

	ready := make(chan error, 1)
	go func() {
		// Pin the run-loop goroutine to its OS thread. This is required on
		// Windows, where APC delivery and alertable waits are scoped to a
		// specific OS thread, and is harmless (if unnecessary) on the other
		// platforms, giving every backend a single dedicated OS thread for
		// its run loop.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		platform.run(ready)
		close(base.runLoopDone)

		base.terminationMutex.Lock()
		base.terminated = true
		base.terminationCond.Broadcast()
		base.terminationMutex.Unlock()
	}()

	if err := <-ready; err != nil {
		return nil, err
	}

	return &Watcher{base: &base, platform: platform}, nil
}

// StartWatching validates and registers each path. Paths must be absolute;
// on every platform except macOS, each path must also refer to an existing
// directory (the fsevents backend accepts non-existent or non-directory
// targets silently, and this implementation preserves that behavior rather
// than "fixing" it). If any path fails validation or is already watched,
// StartWatching returns an error and paths registered earlier in the same
// call remain registered.
func (w *Watcher) StartWatching(paths []string) error {
	w.base.mutationMutex.Lock()
	defer w.base.mutationMutex.Unlock()

	for _, path := range paths {
		if err := validateTarget(path, requiresExistingDirectory()); err != nil {
			return err
		}
		if w.base.registered[path] {
			return newError(KindAlreadyWatching, "path is already being watched", path, 0, nil)
		}
	}

	for _, path := range paths {
		if err := w.base.enqueue(func() *Error { return w.platform.registerPath(path) }); err != nil {
			return err
		}
		w.base.registered[path] = true
	}
	return nil
}

// StopWatching unregisters each path. It is idempotent: paths that were
// never watched are silently accepted. It returns whether every supplied
// path had previously been watched.
func (w *Watcher) StopWatching(paths []string) bool {
	w.base.mutationMutex.Lock()
	defer w.base.mutationMutex.Unlock()

	allWatched := true
	for _, path := range paths {
		if !w.base.registered[path] {
			allWatched = false
			continue
		}
		_ = w.base.enqueue(func() *Error { w.platform.unregisterPath(path); return nil })
		delete(w.base.registered, path)
	}
	return allWatched
}

// Close requests termination of the run loop and waits up to timeout for it
// to complete. It returns true if the loop terminated within timeout, false
// if the timeout elapsed while the loop was still draining; in the latter
// case, Close may be called again to extend the wait. Calling Close after it
// has already completed successfully returns an AlreadyClosed error.
func (w *Watcher) Close(timeout time.Duration) (bool, error) {
	w.base.mutationMutex.Lock()
	alreadyClosed := w.base.closeCalled && w.isTerminated()
	if !w.base.closeCalled {
		w.base.closeCalled = true
		_ = w.base.enqueue(func() *Error { w.platform.beginShutdown(); return nil })
	}
	w.base.mutationMutex.Unlock()

	if alreadyClosed {
		return false, newError(KindAlreadyClosed, "watcher already closed", "", 0, nil)
	}

	return w.waitForTermination(timeout), nil
}

func (w *Watcher) isTerminated() bool {
	w.base.terminationMutex.Lock()
	defer w.base.terminationMutex.Unlock()
	return w.base.terminated
}

// waitForTermination blocks on the termination condition variable for up to
// timeout. If the timeout elapses first, the spawned goroutine remains
// blocked in Cond.Wait until the run loop eventually broadcasts, at which
// point it exits; it is not leaked indefinitely.
func (w *Watcher) waitForTermination(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		w.base.terminationMutex.Lock()
		for !w.base.terminated {
			w.base.terminationCond.Wait()
		}
		w.base.terminationMutex.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return w.isTerminated()
	}
}

// requiresExistingDirectory returns false only on macOS, where the fsevents
// backend tolerates watching a path that doesn't exist (yet).
func requiresExistingDirectory() bool {
	return runtime.GOOS != "darwin"
}
