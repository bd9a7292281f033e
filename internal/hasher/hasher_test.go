package hasher_test

import (
	"testing"

	"apikeyproxy/internal/hasher"
)

func TestHex_StableAndDistinguishing(t *testing.T) {
	a := hasher.Hex("value-a")
	b := hasher.Hex("value-a")
	c := hasher.Hex("value-b")
	if a != b {
		t.Fatalf("same input produced different digests: %q vs %q", a, b)
	}
	if a == c {
		t.Fatalf("different inputs produced the same digest")
	}
}

func TestFingerprint_NeverLongerThan32(t *testing.T) {
	fp := hasher.Fingerprint("arbitrary secret value")
	if len(fp) != 32 {
		t.Fatalf("expected 32-char fingerprint, got %d: %q", len(fp), fp)
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !hasher.ConstantTimeEqual("abc", "abc") {
		t.Fatalf("expected equal strings to compare equal")
	}
	if hasher.ConstantTimeEqual("abc", "abd") {
		t.Fatalf("expected different strings to compare unequal")
	}
	if hasher.ConstantTimeEqual("abc", "abcd") {
		t.Fatalf("expected different-length strings to compare unequal")
	}
}
