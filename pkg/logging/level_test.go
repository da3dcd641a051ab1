package logging

import "testing"

func TestNameToLevel(t *testing.T) {
	cases := map[string]Level{
		"":        LevelDisabled,
		"disabled": LevelDisabled,
		"error":   LevelError,
		"warn":    LevelWarn,
		"info":    LevelInfo,
		"debug":   LevelDebug,
	}
	for name, expected := range cases {
		level, ok := NameToLevel(name)
		if !ok {
			t.Errorf("NameToLevel(%q) reported invalid, expected %v", name, expected)
			continue
		}
		if level != expected {
			t.Errorf("NameToLevel(%q) = %v, expected %v", name, level, expected)
		}
	}
}

func TestNameToLevelRejectsUnknown(t *testing.T) {
	if _, ok := NameToLevel("verbose"); ok {
		t.Fatal("expected NameToLevel to reject an unrecognized name")
	}
}

func TestLevelStringRoundTrip(t *testing.T) {
	levels := []Level{LevelDisabled, LevelError, LevelWarn, LevelInfo, LevelDebug}
	for _, level := range levels {
		name := level.String()
		roundTripped, ok := NameToLevel(name)
		if !ok || roundTripped != level {
			t.Errorf("level %v did not round-trip through String/NameToLevel (got %v, ok=%v)", level, roundTripped, ok)
		}
	}
}
