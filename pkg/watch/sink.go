package watch

import (
	"fmt"

	"github.com/watchkit/watchkit/pkg/logging"
)

// ChangeSink is the collaborator that receives normalized change
// notifications and error reports from a Watcher. Implementations are
// invoked from the Watcher's run-loop goroutine, which is never the caller's
// own goroutine and must be assumed to be an arbitrary one.
//
// If PathChanged panics, the Watcher recovers, wraps the panic value in a
// *Error with Kind KindCallbackFailure, and delivers it via ReportError. A
// panic inside ReportError itself is recovered, logged as a warning through
// the Watcher's logger (when one is set), and suppressed.
type ChangeSink interface {
	// PathChanged is called synchronously, once per Event, in the order the
	// underlying operating system reported them for a given WatchPoint. No
	// ordering is guaranteed across different watched roots.
	PathChanged(eventType ChangeType, absolutePath string)
	// ReportError is called when the Watcher encounters a condition it
	// cannot resolve on its own, including a CallbackFailure resulting from
	// a prior PathChanged call.
	ReportError(err error)
}

// ChangeSinkFuncs adapts two plain functions to the ChangeSink interface,
// mirroring the standard library's http.HandlerFunc idiom for callers who
// have no other reason to declare a named ChangeSink type.
type ChangeSinkFuncs struct {
	// OnPathChanged is invoked by PathChanged. It must not be nil.
	OnPathChanged func(eventType ChangeType, absolutePath string)
	// OnError is invoked by ReportError. If nil, errors are silently
	// discarded.
	OnError func(err error)
}

// PathChanged implements ChangeSink.PathChanged.
func (f ChangeSinkFuncs) PathChanged(eventType ChangeType, absolutePath string) {
	f.OnPathChanged(eventType, absolutePath)
}

// ReportError implements ChangeSink.ReportError.
func (f ChangeSinkFuncs) ReportError(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

// dispatch invokes sink.PathChanged, recovering from a panic and converting
// it into a CallbackFailure delivered via sink.ReportError.
func dispatch(sink ChangeSink, logger *logging.Logger, eventType ChangeType, absolutePath string) {
	defer func() {
		if r := recover(); r != nil {
			reportCallbackFailure(sink, logger, r)
		}
	}()
	sink.PathChanged(eventType, absolutePath)
}

// reportCallbackFailure wraps a recovered panic value from PathChanged and
// delivers it via ReportError. A panic escaping ReportError itself is
// logged and suppressed, since there is nowhere left to report it.
func reportCallbackFailure(sink ChangeSink, logger *logging.Logger, recovered interface{}) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Warn(fmt.Errorf("change sink ReportError panicked: %v", r))
		}
	}()

	var message string
	if err, ok := recovered.(error); ok {
		message = err.Error()
	} else {
		message = fmt.Sprint(recovered)
	}
	sink.ReportError(newError(KindCallbackFailure, message, "", 0, nil))
}
