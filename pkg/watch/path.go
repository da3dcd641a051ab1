package watch

import (
	"golang.org/x/text/encoding/unicode"
)

// utf16Codec is the UTF-16LE codec behind EncodeUTF16 and DecodeUTF16. The
// engine itself, including the ChangeSink boundary, works with native Go
// UTF-8 strings end to end; this codec exists
// purely for embedders that need the wire-compatible byte representation
// (for example when marshaling an Event across a process or FFI boundary),
// since UTF-16 is the common denominator across the three platform APIs this
// package wraps.
var utf16Codec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// EncodeUTF16 converts an absolute path from its native Go UTF-8
// representation to a UTF-16LE byte sequence.
func EncodeUTF16(path string) ([]byte, error) {
	return utf16Codec.NewEncoder().Bytes([]byte(path))
}

// DecodeUTF16 converts a UTF-16LE byte sequence back to a native Go UTF-8
// path string.
func DecodeUTF16(data []byte) (string, error) {
	decoded, err := utf16Codec.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
