//go:build linux

package watch

import (
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// linuxServer implements platformServer using inotify: a single inotify
// file descriptor shared by all WatchPoints, a
// bidirectional path/descriptor map, and a self-pipe integrated into the
// same poll set used to block on the notification fd, so that cross-thread
// mutation requests can wake the run loop without a second blocking read.
type linuxServer struct {
	base *baseServer

	inotifyFD int
	pipeRead  int
	pipeWrite int

	byPath map[string]int32
	byWD   map[int32]string

	maxDescriptors int
	pressure       *descriptorPressureTracker

	shuttingDown bool
}

// linuxWatchMask is the inotify mask installed for every registered path.
const linuxWatchMask = unix.IN_CREATE | unix.IN_MODIFY | unix.IN_ATTRIB |
	unix.IN_CLOSE_WRITE | unix.IN_MOVED_FROM | unix.IN_MOVED_TO |
	unix.IN_DELETE | unix.IN_DELETE_SELF | unix.IN_MOVE_SELF | unix.IN_ONLYDIR

// inotifyReadBufferSize is sized generously for a batch of records; each
// record is at least unix.SizeofInotifyEvent bytes plus its (padded) name.
const inotifyReadBufferSize = 64 * 1024

func newPlatformServer(base *baseServer, maxWatchDescriptors int) platformServer {
	l := &linuxServer{
		base:           base,
		byPath:         make(map[string]int32),
		byWD:           make(map[int32]string),
		maxDescriptors: maxWatchDescriptors,
	}
	base.wakeHook = l.wake
	return l
}

// run implements platformServer.run.
func (l *linuxServer) run(ready chan<- error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		ready <- newError(KindInitializationError, "unable to initialize inotify", "", int(errno(err)), err)
		return
	}
	l.inotifyFD = fd

	pipeFDs := make([]int, 2)
	if err := unix.Pipe2(pipeFDs, unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		ready <- newError(KindInitializationError, "unable to create wakeup pipe", "", int(errno(err)), err)
		return
	}
	l.pipeRead, l.pipeWrite = pipeFDs[0], pipeFDs[1]
	l.pressure = newDescriptorPressureTracker(l.maxDescriptors, l.base.logger)

	ready <- nil

	buffer := make([]byte, inotifyReadBufferSize)
	drainBuf := make([]byte, 512)

	for {
		pollFDs := []unix.PollFd{
			{Fd: int32(l.inotifyFD), Events: unix.POLLIN},
			{Fd: int32(l.pipeRead), Events: unix.POLLIN},
		}
		_, err := unix.Poll(pollFDs, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			l.base.reportInternalError(newError(KindInternalError, "poll failed", "", int(errno(err)), err))
			break
		}

		if pollFDs[1].Revents&unix.POLLIN != 0 {
			for {
				if _, err := unix.Read(l.pipeRead, drainBuf); err != nil {
					break
				}
			}
			l.drainRequests()
			if l.shuttingDown && len(l.byWD) == 0 {
				l.closeDescriptors()
				return
			}
		}

		if pollFDs[0].Revents&unix.POLLIN != 0 {
			n, err := unix.Read(l.inotifyFD, buffer)
			if err != nil {
				if err == unix.EAGAIN {
					continue
				}
				l.base.reportInternalError(newError(KindInternalError, "inotify read failed", "", int(errno(err)), err))
				continue
			}
			l.processBatch(buffer[:n])
		}
	}
}

// drainRequests executes every workItem currently queued on base.requests
// without blocking: on wakeup the run loop drains pending mutation requests
// before resuming its poll.
func (l *linuxServer) drainRequests() {
	for {
		select {
		case item := <-l.base.requests:
			item.done <- item.fn()
		default:
			return
		}
	}
}

// wake implements the cross-thread wakeup poke that baseServer.enqueue calls
// after handing off a workItem, so that a run loop blocked in unix.Poll
// notices the new request promptly.
func (l *linuxServer) wake() {
	var b [1]byte
	_, _ = unix.Write(l.pipeWrite, b[:])
}

// processBatch walks one inotify read buffer, normalizing each record into
// zero or one Event (an IN_Q_OVERFLOW record yields one per watched root),
// and collapses a MODIFY followed by CLOSE_WRITE for the
// same descriptor within the same read into a single ChangeModified.
func (l *linuxServer) processBatch(buffer []byte) {
	collapsedThisRead := make(map[int32]bool)

	var offset uint32
	length := uint32(len(buffer))
	for offset+unix.SizeofInotifyEvent <= length {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buffer[offset]))
		nameLen := raw.Len

		var name string
		if nameLen > 0 {
			nameBytes := buffer[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen]
			name = strings.TrimRight(string(nameBytes), "\x00")
		}
		offset += unix.SizeofInotifyEvent + nameLen

		l.handleRecord(raw.Wd, raw.Mask, name, collapsedThisRead)
	}
}

// handleRecord normalizes a single inotify record into a ChangeType.
func (l *linuxServer) handleRecord(wd int32, mask uint32, name string, collapsedThisRead map[int32]bool) {
	if mask&unix.IN_Q_OVERFLOW != 0 {
		for _, root := range l.byWD {
			l.base.reportEvent(ChangeOverflow, root, "")
		}
		return
	}

	root, known := l.byWD[wd]
	if !known {
		// Includes IN_IGNORED: the descriptor is already gone.
		return
	}
	if mask&unix.IN_IGNORED != 0 {
		// The kernel dropped a still-tracked watch on its own.
		l.forgetDescriptor(wd)
		return
	}

	isSelf := mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF) != 0
	path := root
	relative := ""
	if !isSelf && name != "" {
		path = filepath.Join(root, name)
		relative = name
	}

	switch {
	case mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0:
		l.base.reportEvent(ChangeCreated, path, relative)
	case mask&(unix.IN_DELETE|unix.IN_MOVED_FROM|unix.IN_DELETE_SELF|unix.IN_MOVE_SELF) != 0:
		l.base.reportEvent(ChangeRemoved, path, relative)
		if isSelf {
			l.forgetDescriptor(wd)
		}
	case mask&(unix.IN_MODIFY|unix.IN_ATTRIB|unix.IN_CLOSE_WRITE) != 0:
		if collapsedThisRead[wd] {
			return
		}
		collapsedThisRead[wd] = true
		l.base.reportEvent(ChangeModified, path, relative)
	default:
		l.base.reportEvent(ChangeUnknown, path, relative)
	}
}

// forgetDescriptor removes bookkeeping for a watch descriptor that the
// kernel has already invalidated (via *_SELF removal or IN_IGNORED).
func (l *linuxServer) forgetDescriptor(wd int32) {
	if path, ok := l.byWD[wd]; ok {
		delete(l.byWD, wd)
		delete(l.byPath, path)
	}
}

// registerPath implements platformServer.registerPath.
func (l *linuxServer) registerPath(path string) *Error {
	if _, exists := l.byPath[path]; exists {
		return newError(KindAlreadyWatching, "path is already being watched", path, 0, nil)
	}
	if l.maxDescriptors > 0 && len(l.byWD) >= l.maxDescriptors {
		return newError(KindWatchFailed, "maximum number of watch descriptors reached", path, 0, nil)
	}

	wd, err := unix.InotifyAddWatch(l.inotifyFD, path, linuxWatchMask)
	if err != nil {
		return newError(KindWatchFailed, "unable to install inotify watch", path, int(errno(err)), err)
	}

	l.byPath[path] = int32(wd)
	l.byWD[int32(wd)] = path
	l.pressure.touch(path)
	return nil
}

// unregisterPath implements platformServer.unregisterPath.
func (l *linuxServer) unregisterPath(path string) {
	wd, exists := l.byPath[path]
	if !exists {
		return
	}
	_, _ = unix.InotifyRmWatch(l.inotifyFD, uint32(wd))
	delete(l.byPath, path)
	delete(l.byWD, wd)
}

// beginShutdown implements platformServer.beginShutdown.
func (l *linuxServer) beginShutdown() {
	l.shuttingDown = true
	for path := range l.byPath {
		l.unregisterPath(path)
	}
}

func (l *linuxServer) closeDescriptors() {
	unix.Close(l.inotifyFD)
	unix.Close(l.pipeRead)
	unix.Close(l.pipeWrite)
}

// errno extracts a raw OS error code from err, if it wraps one.
func errno(err error) unix.Errno {
	if e, ok := err.(unix.Errno); ok {
		return e
	}
	return 0
}
