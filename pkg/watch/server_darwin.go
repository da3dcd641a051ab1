//go:build darwin

package watch

import (
	"path/filepath"
	"time"

	"github.com/mutagen-io/fsevents"
)

// macServer implements platformServer using FSEvents. Each WatchPoint owns
// its own fsevents.EventStream (rather than a
// single process-wide stream) so that StopWatching can stop one root's
// stream without perturbing any other. A long-lived forwarding goroutine per
// stream fans batches into a single channel that the run loop's select
// statement can multiplex alongside base.requests, since Go's select cannot
// range over a dynamically-sized set of channels directly.
type macServer struct {
	base *baseServer

	streams map[string]*macWatchPoint
	batches chan macBatch

	shuttingDown bool
}

// macBatch is one fan-in unit: a batch of raw FSEvents entries for one root,
// or a closed-channel notice if the stream ended unexpectedly.
type macBatch struct {
	path   string
	events []fsevents.Event
	ok     bool
}

// macWatchPoint pairs an fsevents.EventStream with the watchPointBase
// bookkeeping and the forwarding goroutine's cancellation signal.
type macWatchPoint struct {
	watchPointBase
	stream *fsevents.EventStream
	done   chan struct{}
}

// macFlags: NoDefer delivers an isolated event immediately rather than
// waiting out a full coalescing window, WatchRoot lets us detect root
// invalidation, and FileEvents requests file-level (not just
// directory-level) granularity.
const macFlags = fsevents.NoDefer | fsevents.WatchRoot | fsevents.FileEvents

func newPlatformServer(base *baseServer, _ int) platformServer {
	return &macServer{
		base:    base,
		streams: make(map[string]*macWatchPoint),
		batches: make(chan macBatch, 16),
	}
}

// run implements platformServer.run. FSEvents' underlying CFRunLoop
// machinery is managed internally by the fsevents package on its own
// dedicated thread per stream, so this run loop only needs to multiplex
// base.requests against the fan-in channel fed by each stream's forwarding
// goroutine.
func (m *macServer) run(ready chan<- error) {
	ready <- nil

	for {
		select {
		case item := <-m.base.requests:
			item.done <- item.fn()
			if m.shuttingDown && len(m.streams) == 0 {
				return
			}
		case b := <-m.batches:
			if !b.ok {
				m.base.reportInternalError(newError(KindInternalError, "fsevents stream closed unexpectedly", b.path, 0, nil))
				m.removeStream(b.path)
				if m.shuttingDown && len(m.streams) == 0 {
					return
				}
				continue
			}
			m.processBatch(b.path, b.events)
		}
	}
}

// processBatch normalizes one batch of FSEvents entries, mapping event flags
// to ChangeType and emitting created/modified/removed in that order when a
// single event carries more than one flag.
func (m *macServer) processBatch(root string, events []fsevents.Event) {
	for _, event := range events {
		if event.Flags&fsevents.RootChanged != 0 {
			m.base.reportEvent(ChangeInvalidated, root, "")
			m.removeStream(root)
			continue
		}
		if event.Flags&fsevents.MustScanSubDirs != 0 {
			m.base.reportEvent(ChangeOverflow, root, "")
			continue
		}

		relative, err := filepath.Rel(root, event.Path)
		if err != nil {
			relative = ""
		}

		var emittedAny bool
		if event.Flags&(fsevents.ItemCreated|fsevents.ItemRenamed) != 0 {
			m.base.reportEvent(ChangeCreated, event.Path, relative)
			emittedAny = true
		}
		if event.Flags&(fsevents.ItemModified|fsevents.ItemInodeMetaMod|
			fsevents.ItemFinderInfoMod|fsevents.ItemChangeOwner|fsevents.ItemXattrMod) != 0 {
			m.base.reportEvent(ChangeModified, event.Path, relative)
			emittedAny = true
		}
		if event.Flags&fsevents.ItemRemoved != 0 {
			m.base.reportEvent(ChangeRemoved, event.Path, relative)
			emittedAny = true
		}
		if !emittedAny {
			m.base.reportEvent(ChangeUnknown, event.Path, relative)
		}
	}
}

// registerPath implements platformServer.registerPath. Non-existent or
// non-directory targets are not pre-validated here: FSEvents itself accepts
// them silently, and this implementation preserves that platform behavior
// rather than "fixing" it.
func (m *macServer) registerPath(path string) *Error {
	if _, exists := m.streams[path]; exists {
		return newError(KindAlreadyWatching, "path is already being watched", path, 0, nil)
	}

	latency := m.base.latency
	if latency <= 0 {
		latency = time.Millisecond
	}

	stream := &fsevents.EventStream{
		Events:  make(chan []fsevents.Event, 50),
		Paths:   []string{path},
		Latency: latency,
		Flags:   macFlags,
	}
	stream.Start()

	wp := &macWatchPoint{
		watchPointBase: newWatchPointBase(path),
		stream:         stream,
		done:           make(chan struct{}),
	}
	wp.setStatus(StatusListening)
	m.streams[path] = wp

	go m.forward(path, wp)
	return nil
}

// forward relays batches from one stream's Events channel into the shared
// fan-in channel until either the stream's channel is closed or the
// WatchPoint's done signal fires.
func (m *macServer) forward(path string, wp *macWatchPoint) {
	for {
		select {
		case events, ok := <-wp.stream.Events:
			if !ok {
				select {
				case m.batches <- macBatch{path: path, ok: false}:
				case <-wp.done:
				}
				return
			}
			select {
			case m.batches <- macBatch{path: path, events: events, ok: true}:
			case <-wp.done:
				return
			}
		case <-wp.done:
			return
		}
	}
}

// unregisterPath implements platformServer.unregisterPath.
func (m *macServer) unregisterPath(path string) {
	m.removeStream(path)
}

func (m *macServer) removeStream(path string) {
	wp, exists := m.streams[path]
	if !exists {
		return
	}
	delete(m.streams, path)
	wp.stream.Stop()
	wp.setStatus(StatusFinished)
	close(wp.done)
}

// beginShutdown implements platformServer.beginShutdown.
func (m *macServer) beginShutdown() {
	m.shuttingDown = true
	for path := range m.streams {
		m.removeStream(path)
	}
}
