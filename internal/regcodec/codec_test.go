package regcodec

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeStringProducesUTF16LEWithNulPair(t *testing.T) {
	got := EncodeString("AB")
	want := []byte{'A', 0x00, 'B', 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("EncodeString(AB) = % x, want % x", got, want)
	}
}

func TestStringRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"viostor",
		`\SystemRoot\System32\drivers\viostor.sys`,
		`%SystemRoot%\inf;E:\drivers`,
		"päth with ümlauts",
		"日本語",
	}
	for _, s := range inputs {
		if got := DecodeString(EncodeString(s)); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

func TestDecodeStringUTF8Fallback(t *testing.T) {
	// Odd length cannot be UTF-16LE; valid UTF-8 should come through.
	if got := DecodeString([]byte("abc")); got != "abc" {
		t.Errorf("UTF-8 fallback: got %q", got)
	}
}

func TestDecodeStringGarbageIsEmpty(t *testing.T) {
	if got := DecodeString([]byte{0xff, 0xfe, 0xff}); got != "" {
		t.Errorf("garbage should decode to empty string, got %q", got)
	}
}

func TestDwordCodec(t *testing.T) {
	b := EncodeDword(0x00000301)
	if !bytes.Equal(b, []byte{0x01, 0x03, 0x00, 0x00}) {
		t.Fatalf("EncodeDword little-endian mismatch: % x", b)
	}
	v, ok := DecodeDword(b)
	if !ok || v != 0x301 {
		t.Fatalf("DecodeDword = %d, %v", v, ok)
	}
}

func TestDecodeDwordShortBuffer(t *testing.T) {
	for _, b := range [][]byte{nil, {}, {1}, {1, 2, 3}} {
		if _, ok := DecodeDword(b); ok {
			t.Errorf("DecodeDword(% x) should report not-ok", b)
		}
	}
}

func TestNormalizeFoldsAbsentAndZero(t *testing.T) {
	if Normalize(0) != InvalidNode {
		t.Error("zero handle should be InvalidNode")
	}
	if Normalize(-1) != InvalidNode {
		t.Error("negative handle should be InvalidNode")
	}
	if NormalizeLookup(4096, errors.New("ENOENT")) != InvalidNode {
		t.Error("lookup error should be InvalidNode regardless of handle")
	}
	if n := NormalizeLookup(4096, nil); n != NodeRef(4096) || !n.Valid() {
		t.Errorf("valid handle mangled: %v", n)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, raw := range []int64{-3, 0, 1, 4096, 1 << 40} {
		once := Normalize(raw)
		twice := Normalize(once.Raw())
		if once != twice {
			t.Errorf("Normalize not idempotent for %d: %v != %v", raw, once, twice)
		}
	}
}

func TestInvalidNodeIsNotValid(t *testing.T) {
	if InvalidNode.Valid() {
		t.Error("InvalidNode must not be valid")
	}
}
