//go:build windows

package watch

import (
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Constants not exposed by golang.org/x/sys/windows for FILE_NOTIFY_INFORMATION
// parsing, matching the well-known Win32 values (the same ones third-party
// Windows filesystem watching packages define for themselves).
const (
	fileActionAdded          = 0x00000001
	fileActionRemoved        = 0x00000002
	fileActionModified       = 0x00000003
	fileActionRenamedOldName = 0x00000004
	fileActionRenamedNewName = 0x00000005

	windowsNotifyMask = windows.FILE_NOTIFY_CHANGE_FILE_NAME |
		windows.FILE_NOTIFY_CHANGE_DIR_NAME |
		windows.FILE_NOTIFY_CHANGE_ATTRIBUTES |
		windows.FILE_NOTIFY_CHANGE_SIZE |
		windows.FILE_NOTIFY_CHANGE_LAST_WRITE |
		windows.FILE_NOTIFY_CHANGE_CREATION

	windowsChangeBufferSize = 16 * 1024

	// longPathThreshold is the point at which we start using the \\?\
	// prefix internally, staying under Win32's legacy MAX_PATH limit.
	longPathThreshold = 248
)

// fileNotifyInformation mirrors the Win32 FILE_NOTIFY_INFORMATION layout.
type fileNotifyInformation struct {
	NextEntryOffset uint32
	Action          uint32
	FileNameLength  uint32
}

// winWatchPoint is a single directory's asynchronous read state: one
// persistent OVERLAPPED and one persistent buffer. At most one asynchronous
// read is ever outstanding per WatchPoint, since a new read is only ever
// scheduled after the previous one's completion routine has run.
type winWatchPoint struct {
	watchPointBase
	handle     windows.Handle
	overlapped windows.Overlapped
	buffer     [windowsChangeBufferSize]byte
	server     *windowsServer
}

// windowsServer implements platformServer using ReadDirectoryChangesW with
// overlapped I/O and completion routines invoked via an alertable wait.
type windowsServer struct {
	base *baseServer

	points          map[string]*winWatchPoint
	overlappedIndex map[uintptr]*winWatchPoint

	runLoopThread windows.Handle
	shuttingDown  bool

	pendingMu   sync.Mutex
	pendingWork map[uintptr]workItem
	nextWorkID  uintptr

	apcCallback        uintptr
	completionCallback uintptr
}

func newPlatformServer(base *baseServer, _ int) platformServer {
	return &windowsServer{
		base:            base,
		points:          make(map[string]*winWatchPoint),
		overlappedIndex: make(map[uintptr]*winWatchPoint),
		pendingWork:     make(map[uintptr]workItem),
	}
}

// run implements platformServer.run.
func (w *windowsServer) run(ready chan<- error) {
	current := windows.CurrentThread()
	var duplicated windows.Handle
	process := windows.CurrentProcess()
	if err := windows.DuplicateHandle(process, current, process, &duplicated, 0, false, windows.DUPLICATE_SAME_ACCESS); err != nil {
		ready <- newError(KindInitializationError, "unable to duplicate run-loop thread handle", "", 0, err)
		return
	}
	w.runLoopThread = duplicated

	w.apcCallback = syscall.NewCallback(func(param uintptr) uintptr {
		w.runPendingWork(param)
		return 0
	})
	w.completionCallback = syscall.NewCallback(func(errCode, bytesTransferred, overlappedPtr uintptr) uintptr {
		w.handleCompletion(uint32(errCode), uint32(bytesTransferred), overlappedPtr)
		return 0
	})

	requestForwarderDone := make(chan struct{})
	go w.forwardRequests(requestForwarderDone)

	ready <- nil

	for {
		windows.SleepEx(windows.INFINITE, true)
		if w.shuttingDown && len(w.points) == 0 {
			windows.CloseHandle(w.runLoopThread)
			return
		}
	}
}

// forwardRequests receives workItems from base.requests (the generic
// cross-thread wakeup queue) and queues each as a user APC targeting the
// run-loop thread, since QueueUserAPC is how a registerPath/unregisterPath/
// shutdown request gets executed on that thread.
func (w *windowsServer) forwardRequests(done chan struct{}) {
	defer close(done)
	for {
		select {
		case item := <-w.base.requests:
			w.pendingMu.Lock()
			id := w.nextWorkID
			w.nextWorkID++
			w.pendingWork[id] = item
			w.pendingMu.Unlock()
			windows.QueueUserAPC(w.apcCallback, w.runLoopThread, id)
		case <-w.base.runLoopDone:
			return
		}
	}
}

// runPendingWork executes the workItem identified by id. It runs on the
// run-loop thread, invoked as a queued user APC during an alertable wait.
func (w *windowsServer) runPendingWork(id uintptr) {
	w.pendingMu.Lock()
	item, ok := w.pendingWork[id]
	delete(w.pendingWork, id)
	w.pendingMu.Unlock()
	if !ok {
		return
	}
	item.done <- item.fn()
}

// handleCompletion is invoked, on the run-loop thread, when a
// ReadDirectoryChangesW operation completes.
func (w *windowsServer) handleCompletion(errCode, bytesTransferred uint32, overlappedPtr uintptr) {
	wp, ok := w.overlappedIndex[overlappedPtr]
	if !ok {
		return
	}

	if windows.Errno(errCode) == windows.ERROR_OPERATION_ABORTED {
		w.finishWatchPoint(wp)
		return
	}

	if bytesTransferred == 0 {
		w.base.reportEvent(ChangeInvalidated, wp.Path(), "")
		if err := w.scheduleRead(wp); err != nil {
			w.base.reportInternalError(err)
			w.finishWatchPoint(wp)
		}
		return
	}

	w.processBuffer(wp, bytesTransferred)
	if err := w.scheduleRead(wp); err != nil {
		w.base.reportInternalError(err)
		w.finishWatchPoint(wp)
	}
}

// processBuffer walks one ReadDirectoryChangesW buffer, normalizing each
// FILE_NOTIFY_INFORMATION record's action into a ChangeType.
func (w *windowsServer) processBuffer(wp *winWatchPoint, length uint32) {
	var offset uint32
	for {
		info := (*fileNotifyInformation)(unsafe.Pointer(&wp.buffer[offset]))
		nameOffset := offset + 12
		nameBytes := wp.buffer[nameOffset : nameOffset+info.FileNameLength]

		utf16Name := make([]uint16, info.FileNameLength/2)
		for i := range utf16Name {
			utf16Name[i] = uint16(nameBytes[2*i]) | uint16(nameBytes[2*i+1])<<8
		}
		name := windows.UTF16ToString(utf16Name)
		name = strings.ReplaceAll(name, "\\", string(filepath.Separator))
		absolutePath := filepath.Join(wp.Path(), name)

		switch info.Action {
		case fileActionAdded, fileActionRenamedNewName:
			w.base.reportEvent(ChangeCreated, absolutePath, name)
		case fileActionRemoved, fileActionRenamedOldName:
			w.base.reportEvent(ChangeRemoved, absolutePath, name)
		case fileActionModified:
			w.base.reportEvent(ChangeModified, absolutePath, name)
		default:
			w.base.reportEvent(ChangeUnknown, absolutePath, name)
		}

		if info.NextEntryOffset == 0 {
			break
		}
		offset += info.NextEntryOffset
		if offset >= length {
			break
		}
	}
}

// scheduleRead arms (or re-arms) the single outstanding asynchronous read for
// wp, returning nil on success. Callers decide what a failure means for wp:
// registerPath's caller has never published wp anywhere, so it marks wp
// StatusFailedToListen and discards it, while handleCompletion's callers are
// re-arming an already-listening WatchPoint and tear it down via
// finishWatchPoint instead.
func (w *windowsServer) scheduleRead(wp *winWatchPoint) *Error {
	err := windows.ReadDirectoryChanges(
		wp.handle,
		&wp.buffer[0],
		uint32(len(wp.buffer)),
		true,
		windowsNotifyMask,
		nil,
		&wp.overlapped,
		w.completionCallback,
	)
	if err != nil {
		return newError(KindInternalError, "unable to schedule directory read", wp.Path(), int(err.(windows.Errno)), err)
	}
	return nil
}

// windowsPath applies the \\?\ long-path prefix internally when needed.
func windowsPath(path string) string {
	if len(path) < longPathThreshold || strings.HasPrefix(path, `\\?\`) {
		return path
	}
	return `\\?\` + path
}

// registerPath implements platformServer.registerPath. It runs on the
// run-loop thread, invoked via an APC scheduled by forwardRequests.
func (w *windowsServer) registerPath(path string) *Error {
	if _, exists := w.points[path]; exists {
		return newError(KindAlreadyWatching, "path is already being watched", path, 0, nil)
	}

	pathPtr, err := windows.UTF16PtrFromString(windowsPath(path))
	if err != nil {
		return newError(KindInvalidTarget, "invalid watch path", path, 0, err)
	}

	handle, err := windows.CreateFile(
		pathPtr,
		windows.FILE_LIST_DIRECTORY,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OVERLAPPED,
		0,
	)
	if err != nil {
		return newError(KindWatchFailed, "unable to open directory for watching", path, int(err.(windows.Errno)), err)
	}

	wp := &winWatchPoint{
		watchPointBase: newWatchPointBase(path),
		handle:         handle,
		server:         w,
	}

	// Arm the initial read before publishing wp anywhere. If it fails, wp is
	// marked failed and discarded without ever becoming visible to
	// unregisterPath, handleCompletion, or StopWatching's registered-path
	// bookkeeping.
	if err := w.scheduleRead(wp); err != nil {
		wp.setStatus(StatusFailedToListen)
		windows.CloseHandle(handle)
		return newError(KindWatchFailed, "unable to schedule initial directory read", path, 0, err)
	}

	key := uintptr(unsafe.Pointer(&wp.overlapped))
	w.overlappedIndex[key] = wp
	w.points[path] = wp
	wp.setStatus(StatusListening)
	return nil
}

// unregisterPath implements platformServer.unregisterPath. Cancellation is
// asynchronous: the WatchPoint is removed from the map only once its
// completion routine observes ERROR_OPERATION_ABORTED.
func (w *windowsServer) unregisterPath(path string) {
	wp, exists := w.points[path]
	if !exists {
		return
	}
	wp.setStatus(StatusNotListening)
	windows.CancelIo(wp.handle)
	windows.CloseHandle(wp.handle)
}

// finishWatchPoint completes a WatchPoint's teardown once its pending I/O
// has actually been cancelled.
func (w *windowsServer) finishWatchPoint(wp *winWatchPoint) {
	wp.setStatus(StatusFinished)
	delete(w.points, wp.Path())
	delete(w.overlappedIndex, uintptr(unsafe.Pointer(&wp.overlapped)))
}

// beginShutdown implements platformServer.beginShutdown.
func (w *windowsServer) beginShutdown() {
	w.shuttingDown = true
	for path := range w.points {
		w.unregisterPath(path)
	}
}
