package watch

import "testing"

func TestCompileIgnorePatternsMatches(t *testing.T) {
	filter, err := CompileIgnorePatterns([]string{"**/*.tmp", "node_modules/**"})
	if err != nil {
		t.Fatalf("CompileIgnorePatterns failed: %v", err)
	}
	if filter == nil {
		t.Fatal("expected a non-nil filter for non-empty patterns")
	}

	cases := map[string]bool{
		"foo.tmp":                   true,
		"a/b/c.tmp":                 true,
		"node_modules/pkg/index.js": true,
		"src/main.go":               false,
		"README.md":                 false,
	}
	for path, expected := range cases {
		if got := filter("/watch/root/"+path, path); got != expected {
			t.Errorf("filter(%q) = %v, expected %v", path, got, expected)
		}
	}
}

func TestCompileIgnorePatternsEmpty(t *testing.T) {
	filter, err := CompileIgnorePatterns(nil)
	if err != nil {
		t.Fatalf("CompileIgnorePatterns failed: %v", err)
	}
	if filter != nil {
		t.Fatal("expected a nil filter for an empty pattern list")
	}
}

func TestCompileIgnorePatternsInvalid(t *testing.T) {
	if _, err := CompileIgnorePatterns([]string{"["}); err == nil {
		t.Fatal("expected an error for an invalid glob pattern")
	}
}

func TestCompileRootIgnorePatternsScopesPerRoot(t *testing.T) {
	filter, err := CompileRootIgnorePatterns(map[string][]string{
		"/watch/a": {"*.tmp"},
		"/watch/b": {"*.log"},
	})
	if err != nil {
		t.Fatalf("CompileRootIgnorePatterns failed: %v", err)
	}
	if filter == nil {
		t.Fatal("expected a non-nil filter for non-empty per-root patterns")
	}

	// A pattern configured for root a must not exclude a matching name under
	// root b, and vice versa.
	if !filter("/watch/a/build.tmp", "build.tmp") {
		t.Error("expected build.tmp under root a to be excluded")
	}
	if filter("/watch/b/build.tmp", "build.tmp") {
		t.Error("did not expect build.tmp under root b to be excluded by root a's pattern")
	}
	if !filter("/watch/b/output.log", "output.log") {
		t.Error("expected output.log under root b to be excluded")
	}
	if filter("/watch/a/output.log", "output.log") {
		t.Error("did not expect output.log under root a to be excluded by root b's pattern")
	}

	// A path outside every configured root is never excluded.
	if filter("/watch/c/build.tmp", "build.tmp") {
		t.Error("did not expect a path outside any configured root to be excluded")
	}
}

func TestCompileRootIgnorePatternsEmpty(t *testing.T) {
	filter, err := CompileRootIgnorePatterns(nil)
	if err != nil {
		t.Fatalf("CompileRootIgnorePatterns failed: %v", err)
	}
	if filter != nil {
		t.Fatal("expected a nil filter for an empty root pattern map")
	}
}

func TestChainCombinesFilters(t *testing.T) {
	onlyTmp, _ := CompileIgnorePatterns([]string{"**/*.tmp"})
	onlyLog, _ := CompileIgnorePatterns([]string{"**/*.log"})

	combined := chain(onlyTmp, onlyLog)
	if !combined("/root/a.tmp", "a.tmp") || !combined("/root/b.log", "b.log") {
		t.Fatal("expected chain to exclude a path matched by either filter")
	}
	if combined("/root/c.go", "c.go") {
		t.Fatal("did not expect chain to exclude an unrelated path")
	}
}

func TestChainSkipsNilFilters(t *testing.T) {
	combined := chain(nil, nil)
	if combined != nil {
		t.Fatal("expected chain of only nil filters to return nil")
	}
}
