//go:build linux

package watch

import (
	"github.com/golang/groupcache/lru"

	"github.com/watchkit/watchkit/pkg/logging"
)

// descriptorPressureTracker is a purely observational aid: it never evicts
// a caller-registered watch out from under the caller, since a watch a
// caller explicitly registered must keep producing events until the caller
// unregisters it or the process shuts down. Actual admission control is the
// simple counter check in linuxServer.registerPath. This tracker only
// remembers the most recently registered paths, as many as the configured
// ceiling, and logs a diagnostic warning naming each path that ages out of
// that window, to help an operator decide what to unregister.
type descriptorPressureTracker struct {
	cache  *lru.Cache
	logger *logging.Logger
}

func newDescriptorPressureTracker(capacity int, logger *logging.Logger) *descriptorPressureTracker {
	if capacity <= 0 {
		return nil
	}
	t := &descriptorPressureTracker{cache: lru.New(capacity), logger: logger}
	t.cache.OnEvicted = func(key lru.Key, _ interface{}) {
		if path, ok := key.(string); ok {
			t.logger.Warn(newError(
				KindInternalError,
				"watch descriptor pressure: least-recently-touched watch aged out of tracking window",
				path, 0, nil,
			))
		}
	}
	return t
}

// touch records that path was just registered.
func (t *descriptorPressureTracker) touch(path string) {
	if t == nil {
		return
	}
	t.cache.Add(path, struct{}{})
}
