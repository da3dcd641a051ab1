package watch

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// Filter is a callback used to exclude paths from being returned by a
// Watcher. absolutePath is the full path of the changed file; relativePath is
// that same path relative to whichever watch root produced the event. Filter
// returns true if the path should be ignored and excluded from events. It is
// applied inside the run loop, after a raw notification has been mapped to a
// ChangeType and before the event is dispatched.
type Filter func(absolutePath, relativePath string) bool

// CompileIgnorePatterns compiles a list of doublestar glob patterns
// (e.g. "**/*.tmp", "node_modules/**") into a single Filter that returns true
// if relativePath matches any of them, regardless of which root produced the
// event. An invalid pattern is rejected immediately so that misconfiguration
// surfaces at Watcher construction time rather than silently failing to
// filter anything at run time.
func CompileIgnorePatterns(patterns []string) (Filter, error) {
	compiled := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Errorf("invalid ignore pattern: %s", pattern)
		}
		compiled = append(compiled, pattern)
	}
	if len(compiled) == 0 {
		return nil, nil
	}
	return func(_, relativePath string) bool {
		for _, pattern := range compiled {
			if matched, _ := doublestar.Match(pattern, relativePath); matched {
				return true
			}
		}
		return false
	}, nil
}

// CompileRootIgnorePatterns compiles a set of per-root doublestar pattern
// lists (keyed by absolute watch root) into a single Filter that only ever
// applies a root's own patterns to paths beneath that root. This is what
// keeps a pattern configured to exclude files under one watched root from
// also suppressing a matching path under an unrelated root: unlike
// CompileIgnorePatterns, whose returned Filter has no notion of which root an
// event came from, this one dispatches on absolutePath before evaluating any
// pattern.
func CompileRootIgnorePatterns(rootPatterns map[string][]string) (Filter, error) {
	type scopedMatcher struct {
		root  string
		match Filter
	}

	matchers := make([]scopedMatcher, 0, len(rootPatterns))
	for root, patterns := range rootPatterns {
		matcher, err := CompileIgnorePatterns(patterns)
		if err != nil {
			return nil, err
		}
		if matcher == nil {
			continue
		}
		matchers = append(matchers, scopedMatcher{root: filepath.Clean(root), match: matcher})
	}
	if len(matchers) == 0 {
		return nil, nil
	}

	// Sort longest root first, so a nested root's own patterns win over an
	// ancestor root's when both happen to be configured.
	sort.Slice(matchers, func(i, j int) bool { return len(matchers[i].root) > len(matchers[j].root) })

	return func(absolutePath, relativePath string) bool {
		for _, m := range matchers {
			if absolutePath == m.root || strings.HasPrefix(absolutePath, m.root+string(filepath.Separator)) {
				return m.match(absolutePath, relativePath)
			}
		}
		return false
	}, nil
}

// chain combines multiple filters into one that excludes a path if any
// constituent filter excludes it. A nil entry in filters is skipped, so
// callers can freely chain an optional user-supplied filter with an
// internally constructed one.
func chain(filters ...Filter) Filter {
	nonNil := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			nonNil = append(nonNil, f)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	return func(absolutePath, relativePath string) bool {
		for _, f := range nonNil {
			if f(absolutePath, relativePath) {
				return true
			}
		}
		return false
	}
}
