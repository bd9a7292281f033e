// Package hasher provides the SHA-256 primitives shared by the cache key
// builder, the API key registry, and the admin bearer check. Keeping these
// in one place makes it easy to audit that no call site ever logs or keys on
// raw secret material.
package hasher

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hex returns the lowercase hex-encoded SHA-256 digest of s.
func Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the first 32 hex characters of Hex(s), a short
// identifier suitable for logs that must never carry the original value.
func Fingerprint(s string) string {
	full := Hex(s)
	if len(full) <= 32 {
		return full
	}
	return full[:32]
}

// ConstantTimeEqual reports whether a and b are byte-for-byte equal, using a
// comparison whose running time does not depend on where the strings first
// differ. Both sides are pre-hashed so the comparison is also length-fixed,
// which avoids leaking the raw bearer token's length via timing or panics.
func ConstantTimeEqual(a, b string) bool {
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}
