package watch

import "testing"

func TestUTF16RoundTrip(t *testing.T) {
	original := "/var/tmp/some directory/文件.txt"

	encoded, err := EncodeUTF16(original)
	if err != nil {
		t.Fatalf("EncodeUTF16 failed: %v", err)
	}
	if len(encoded)%2 != 0 {
		t.Fatalf("expected an even number of bytes for UTF-16, got %d", len(encoded))
	}

	decoded, err := DecodeUTF16(encoded)
	if err != nil {
		t.Fatalf("DecodeUTF16 failed: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip mismatch: got %q, expected %q", decoded, original)
	}
}

func TestUTF16EmptyPath(t *testing.T) {
	encoded, err := EncodeUTF16("")
	if err != nil {
		t.Fatalf("EncodeUTF16 failed on empty input: %v", err)
	}
	if len(encoded) != 0 {
		t.Fatalf("expected zero bytes for empty input, got %d", len(encoded))
	}
}
