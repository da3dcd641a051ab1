//go:build linux

package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// timeBetweenOperations gives the run loop enough time to observe and
// deliver one filesystem operation before the next is issued.
const timeBetweenOperations = 100 * time.Millisecond

// maximumEventWaitTime bounds how long a test will wait for an expected
// event before failing.
const maximumEventWaitTime = 5 * time.Second

// eventRecordingSink is a watch.ChangeSink that funnels every event onto a
// channel for a test goroutine to assert against.
type eventRecordingSink struct {
	events chan Event
	errors chan error
}

func newEventRecordingSink() *eventRecordingSink {
	return &eventRecordingSink{
		events: make(chan Event, 64),
		errors: make(chan error, 8),
	}
}

func (s *eventRecordingSink) PathChanged(eventType ChangeType, absolutePath string) {
	s.events <- Event{Type: eventType, Path: absolutePath}
}

func (s *eventRecordingSink) ReportError(err error) {
	s.errors <- err
}

func (s *eventRecordingSink) waitForType(t *testing.T, expected ChangeType) Event {
	t.Helper()
	deadline := time.After(maximumEventWaitTime)
	for {
		select {
		case event := <-s.events:
			if event.Type == expected {
				return event
			}
		case err := <-s.errors:
			t.Fatalf("unexpected error while waiting for %v: %v", expected, err)
		case <-deadline:
			t.Fatalf("timed out waiting for a %v event", expected)
		}
	}
}

// TestWatchCycle exercises the full lifecycle against a real directory:
// create, modify, remove, then a clean shutdown. It is not an exhaustive
// exercise of every inotify mapping, more of a litmus test.
func TestWatchCycle(t *testing.T) {
	directory := t.TempDir()

	sink := newEventRecordingSink()
	watcher, err := CreateWatcher(sink, 0)
	if err != nil {
		t.Fatalf("unable to create watcher: %v", err)
	}
	defer watcher.Close(maximumEventWaitTime)

	if err := watcher.StartWatching([]string{directory}); err != nil {
		t.Fatalf("unable to start watching: %v", err)
	}

	testFilePath := filepath.Join(directory, "test_file")

	file, err := os.Create(testFilePath)
	if err != nil {
		t.Fatalf("unable to create test file: %v", err)
	}
	file.Close()
	sink.waitForType(t, ChangeCreated)

	time.Sleep(timeBetweenOperations)

	if err := os.WriteFile(testFilePath, []byte("content"), 0644); err != nil {
		t.Fatalf("unable to write test file: %v", err)
	}
	sink.waitForType(t, ChangeModified)

	time.Sleep(timeBetweenOperations)

	if err := os.Remove(testFilePath); err != nil {
		t.Fatalf("unable to remove test file: %v", err)
	}
	sink.waitForType(t, ChangeRemoved)

	if terminated, err := watcher.Close(maximumEventWaitTime); err != nil {
		t.Fatalf("Close returned an error: %v", err)
	} else if !terminated {
		t.Fatal("expected Close to terminate within the wait window")
	}
}

// TestStartWatchingRejectsDuplicate verifies that registering the same path
// twice on one Watcher fails without disturbing the existing registration.
func TestStartWatchingRejectsDuplicate(t *testing.T) {
	directory := t.TempDir()

	sink := newEventRecordingSink()
	watcher, err := CreateWatcher(sink, 0)
	if err != nil {
		t.Fatalf("unable to create watcher: %v", err)
	}
	defer watcher.Close(maximumEventWaitTime)

	if err := watcher.StartWatching([]string{directory}); err != nil {
		t.Fatalf("unable to start watching: %v", err)
	}
	err = watcher.StartWatching([]string{directory})
	if err == nil {
		t.Fatal("expected a second StartWatching call for the same path to fail")
	}
	watchErr, ok := err.(*Error)
	if !ok || watchErr.Kind != KindAlreadyWatching {
		t.Fatalf("expected KindAlreadyWatching, got %v", err)
	}
}

// TestStopWatchingSuppressesFurtherEvents verifies that no events are
// delivered for a path after it has been unregistered.
func TestStopWatchingSuppressesFurtherEvents(t *testing.T) {
	directory := t.TempDir()

	sink := newEventRecordingSink()
	watcher, err := CreateWatcher(sink, 0)
	if err != nil {
		t.Fatalf("unable to create watcher: %v", err)
	}
	defer watcher.Close(maximumEventWaitTime)

	if err := watcher.StartWatching([]string{directory}); err != nil {
		t.Fatalf("unable to start watching: %v", err)
	}
	if allWatched := watcher.StopWatching([]string{directory}); !allWatched {
		t.Fatal("expected StopWatching to report the path as previously watched")
	}

	if err := os.WriteFile(filepath.Join(directory, "after_stop"), []byte("x"), 0644); err != nil {
		t.Fatalf("unable to create file after stopping: %v", err)
	}

	select {
	case event := <-sink.events:
		t.Fatalf("did not expect an event after StopWatching, got %v", event)
	case <-time.After(500 * time.Millisecond):
	}
}

// TestCloseTwiceReturnsAlreadyClosed verifies that a second Close call,
// issued after the first has already completed, fails with KindAlreadyClosed
// rather than blocking or succeeding again.
func TestCloseTwiceReturnsAlreadyClosed(t *testing.T) {
	sink := newEventRecordingSink()
	watcher, err := CreateWatcher(sink, 0)
	if err != nil {
		t.Fatalf("unable to create watcher: %v", err)
	}

	terminated, err := watcher.Close(maximumEventWaitTime)
	if err != nil {
		t.Fatalf("first Close returned an error: %v", err)
	}
	if !terminated {
		t.Fatal("expected first Close to terminate within the wait window")
	}

	_, err = watcher.Close(maximumEventWaitTime)
	if err == nil {
		t.Fatal("expected a second Close call to fail")
	}
	watchErr, ok := err.(*Error)
	if !ok || watchErr.Kind != KindAlreadyClosed {
		t.Fatalf("expected KindAlreadyClosed, got %v", err)
	}
}

// TestMaxWatchDescriptorsRejectsOverflow verifies that with
// WithMaxWatchDescriptors(N) set, the (N+1)th StartWatching call fails with
// KindWatchFailed and the first N registrations remain intact.
func TestMaxWatchDescriptorsRejectsOverflow(t *testing.T) {
	const limit = 2

	directories := make([]string, limit+1)
	for i := range directories {
		directories[i] = t.TempDir()
	}

	sink := newEventRecordingSink()
	watcher, err := CreateWatcher(sink, 0, WithMaxWatchDescriptors(limit))
	if err != nil {
		t.Fatalf("unable to create watcher: %v", err)
	}
	defer watcher.Close(maximumEventWaitTime)

	for i := 0; i < limit; i++ {
		if err := watcher.StartWatching([]string{directories[i]}); err != nil {
			t.Fatalf("unable to start watching %s: %v", directories[i], err)
		}
	}

	err = watcher.StartWatching([]string{directories[limit]})
	if err == nil {
		t.Fatal("expected the (N+1)th StartWatching call to fail")
	}
	watchErr, ok := err.(*Error)
	if !ok || watchErr.Kind != KindWatchFailed {
		t.Fatalf("expected KindWatchFailed, got %v", err)
	}

	for i := 0; i < limit; i++ {
		if !watcher.base.registered[directories[i]] {
			t.Fatalf("expected %s to remain registered after the rejected call", directories[i])
		}
	}
	if watcher.base.registered[directories[limit]] {
		t.Fatalf("did not expect %s to be registered", directories[limit])
	}

	if err := os.WriteFile(filepath.Join(directories[0], "still_watched"), []byte("x"), 0644); err != nil {
		t.Fatalf("unable to create file in a still-watched directory: %v", err)
	}
	sink.waitForType(t, ChangeCreated)
}

// TestFilterSuppressesMatchedPath verifies that a path matching a configured
// Filter never reaches the ChangeSink, while a sibling path that doesn't
// match still does.
func TestFilterSuppressesMatchedPath(t *testing.T) {
	directory := t.TempDir()

	filter, err := CompileIgnorePatterns([]string{"*.tmp"})
	if err != nil {
		t.Fatalf("unable to compile ignore patterns: %v", err)
	}

	sink := newEventRecordingSink()
	watcher, err := CreateWatcher(sink, 0, WithFilter(filter))
	if err != nil {
		t.Fatalf("unable to create watcher: %v", err)
	}
	defer watcher.Close(maximumEventWaitTime)

	if err := watcher.StartWatching([]string{directory}); err != nil {
		t.Fatalf("unable to start watching: %v", err)
	}

	ignoredPath := filepath.Join(directory, "excluded.tmp")
	if err := os.WriteFile(ignoredPath, []byte("x"), 0644); err != nil {
		t.Fatalf("unable to create ignored file: %v", err)
	}

	time.Sleep(timeBetweenOperations)

	siblingPath := filepath.Join(directory, "included.txt")
	if err := os.WriteFile(siblingPath, []byte("x"), 0644); err != nil {
		t.Fatalf("unable to create sibling file: %v", err)
	}

	event := sink.waitForType(t, ChangeCreated)
	if event.Path != siblingPath {
		t.Fatalf("expected the first delivered creation to be the unfiltered sibling %s, got %s", siblingPath, event.Path)
	}

	select {
	case event := <-sink.events:
		if event.Path == ignoredPath {
			t.Fatalf("did not expect an event for the filtered path, got %v", event)
		}
	case <-time.After(500 * time.Millisecond):
	}
}
