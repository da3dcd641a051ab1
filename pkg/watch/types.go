// Package watch implements a cross-platform filesystem change notification
// engine. It watches one or more directory trees and delivers normalized
// change events to a caller-supplied ChangeSink from a dedicated per-Watcher
// run-loop goroutine.
package watch

// ChangeType identifies the kind of change a normalized Event represents. It
// is a closed set: implementations never produce a value outside this list.
type ChangeType uint8

const (
	// ChangeUnknown indicates that the operating system reported an action
	// this engine does not map to any other ChangeType.
	ChangeUnknown ChangeType = iota
	// ChangeCreated indicates that a path was created (or renamed into
	// existence at that path).
	ChangeCreated
	// ChangeRemoved indicates that a path was removed (or renamed away from
	// that path).
	ChangeRemoved
	// ChangeModified indicates that a path's contents or metadata changed.
	ChangeModified
	// ChangeInvalidated indicates that the watched root is no longer
	// observable and the caller must re-scan it. It is not an error.
	ChangeInvalidated
	// ChangeOverflow indicates that events were dropped by the operating
	// system and a re-scan is required. It is not an error.
	ChangeOverflow
)

// String returns a human-readable name for the ChangeType.
func (c ChangeType) String() string {
	switch c {
	case ChangeCreated:
		return "created"
	case ChangeRemoved:
		return "removed"
	case ChangeModified:
		return "modified"
	case ChangeInvalidated:
		return "invalidated"
	case ChangeOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Event is a transient (ChangeType, Path) tuple. Events are never stored by
// the engine; they are dispatched synchronously to a ChangeSink from the
// run-loop goroutine and then discarded.
type Event struct {
	// Type is the kind of change observed.
	Type ChangeType
	// Path is the absolute path the change occurred at.
	Path string
}

// Status represents a WatchPoint's position in its lifecycle.
type Status uint8

const (
	// StatusUninitialized is the status of a WatchPoint that has been
	// allocated but has not yet attempted to install its OS-level
	// subscription.
	StatusUninitialized Status = iota
	// StatusListening is the status of a WatchPoint whose OS-level
	// subscription is active and delivering events.
	StatusListening
	// StatusNotListening is the status of a WatchPoint that has been asked
	// to stop but has not yet finished draining in-flight notifications.
	StatusNotListening
	// StatusFailedToListen is the status of a WatchPoint whose OS-level
	// subscription could not be installed.
	StatusFailedToListen
	// StatusFinished is the status of a WatchPoint that has fully released
	// its OS resource and is ready to be reaped by its owning Server.
	StatusFinished
)

// String returns a human-readable name for the Status.
func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusListening:
		return "listening"
	case StatusNotListening:
		return "not_listening"
	case StatusFailedToListen:
		return "failed_to_listen"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}
