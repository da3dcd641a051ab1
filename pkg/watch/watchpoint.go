package watch

import "sync"

// watchPointBase holds the state common to platforms that keep a
// persistent per-directory object: the watched path (stored exactly as the
// caller supplied it, never canonicalized) and its lifecycle status. macOS
// and Windows embed this base and add whatever OS
// handle/descriptor they need, since each needs a long-lived object anyway
// (an fsevents.EventStream, an OVERLAPPED read buffer). Linux has no
// equivalent type: inotify's watch descriptor is sufficient bookkeeping on
// its own, so linuxServer tracks paths directly in its byPath/byWD maps.
type watchPointBase struct {
	mu     sync.Mutex
	path   string
	status Status
}

// newWatchPointBase constructs a watchPointBase for path in the
// StatusUninitialized state.
func newWatchPointBase(path string) watchPointBase {
	return watchPointBase{path: path, status: StatusUninitialized}
}

// Path returns the absolute path this WatchPoint watches.
func (w *watchPointBase) Path() string {
	return w.path
}

// Status returns the WatchPoint's current lifecycle status.
func (w *watchPointBase) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// setStatus records a lifecycle transition.
func (w *watchPointBase) setStatus(s Status) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}
