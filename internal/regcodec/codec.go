// Package regcodec encodes and decodes registry values in the guest-native
// binary forms (UTF-16LE strings, little-endian DWORDs) and normalizes the
// hive library's ambiguous node-handle representation.
package regcodec

import (
	"encoding/binary"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

var (
	utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// EncodeString encodes s as UTF-16LE with a trailing NUL pair, the on-disk
// form of REG_SZ and REG_EXPAND_SZ data.
func EncodeString(s string) []byte {
	encoded, err := utf16le.NewEncoder().String(s)
	if err != nil {
		// The UTF-16 encoder replaces invalid runes rather than failing;
		// an error here means a broken transformer chain.
		encoded = s
	}
	return append([]byte(encoded), 0x00, 0x00)
}

// DecodeString decodes UTF-16LE registry string data. Falls back to UTF-8 if
// the data is not valid UTF-16LE, and returns "" for anything else. Never
// returns an error: a garbled DevicePath should degrade, not abort the edit.
func DecodeString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if len(b)%2 == 0 {
		decoded, err := utf16le.NewDecoder().Bytes(b)
		if err == nil {
			return strings.TrimRight(string(decoded), "\x00")
		}
	}
	if utf8.Valid(b) {
		return strings.TrimRight(string(b), "\x00")
	}
	return ""
}

// EncodeDword encodes v as 4 little-endian bytes (REG_DWORD data).
func EncodeDword(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// DecodeDword decodes the first 4 bytes of b as a little-endian uint32.
// Returns ok=false when b is too short.
func DecodeDword(b []byte) (uint32, bool) {
	if len(b) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[:4]), true
}
