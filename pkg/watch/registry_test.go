package watch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/watchkit/watchkit/pkg/logging"
)

func TestOptionsMutateConfig(t *testing.T) {
	var c config
	logger := logging.NewLogger(logging.LevelDebug)
	filter := Filter(func(string, string) bool { return true })

	WithFilter(filter)(&c)
	WithMaxWatchDescriptors(42)(&c)
	WithLogger(logger)(&c)

	if c.filter == nil {
		t.Error("expected WithFilter to install a non-nil filter")
	}
	if c.maxWatchDescriptors != 42 {
		t.Errorf("expected maxWatchDescriptors 42, got %d", c.maxWatchDescriptors)
	}
	if c.logger != logger {
		t.Error("expected WithLogger to install the supplied logger")
	}
}

func TestWithFilterChainsRatherThanReplaces(t *testing.T) {
	var c config
	var firstCalled, secondCalled bool
	WithFilter(func(string, string) bool { firstCalled = true; return false })(&c)
	WithFilter(func(string, string) bool { secondCalled = true; return false })(&c)

	c.filter("/root/anything", "anything")
	if !firstCalled || !secondCalled {
		t.Fatal("expected chained WithFilter calls to invoke every constituent filter")
	}
}

func TestValidateTargetRejectsRelativePath(t *testing.T) {
	err := validateTarget("relative/path", false)
	if err == nil || err.Kind != KindInvalidTarget {
		t.Fatalf("expected KindInvalidTarget for a relative path, got %v", err)
	}
}

func TestValidateTargetRequiresExistingDirectory(t *testing.T) {
	directory := t.TempDir()

	if err := validateTarget(directory, true); err != nil {
		t.Fatalf("expected an existing directory to validate cleanly, got %v", err)
	}

	nonexistent := filepath.Join(directory, "does-not-exist")
	if err := validateTarget(nonexistent, true); err == nil || err.Kind != KindInvalidTarget {
		t.Fatalf("expected KindInvalidTarget for a nonexistent path, got %v", err)
	}

	filePath := filepath.Join(directory, "file")
	if err := os.WriteFile(filePath, []byte("x"), 0644); err != nil {
		t.Fatalf("unable to create test file: %v", err)
	}
	if err := validateTarget(filePath, true); err == nil || err.Kind != KindInvalidTarget {
		t.Fatalf("expected KindInvalidTarget for a non-directory path, got %v", err)
	}
}

func TestValidateTargetSkipsExistenceCheckWhenNotRequired(t *testing.T) {
	if err := validateTarget("/definitely/does/not/exist", false); err != nil {
		t.Fatalf("expected no error when existence is not required, got %v", err)
	}
}
