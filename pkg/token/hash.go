package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hasher computes storage digests for raw credentials.
//
// The zero value hashes with plain SHA-256; a non-empty pepper switches to
// HMAC-SHA256 keyed with the pepper.
type Hasher struct {
	pepper []byte
}

// NewHasher creates a Hasher. An empty pepper selects plain SHA-256.
func NewHasher(pepper string) Hasher {
	if pepper == "" {
		return Hasher{}
	}
	return Hasher{pepper: []byte(pepper)}
}

// Digest returns the hex digest of raw.
func (h Hasher) Digest(raw string) string {
	if len(h.pepper) == 0 {
		return Hash(raw)
	}
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether raw produces expectedDigest, in constant time.
func (h Hasher) Verify(raw, expectedDigest string) bool {
	return Equal(h.Digest(raw), expectedDigest)
}

// Hash computes the hex encoded SHA-256 of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Verify verifies s against an expected SHA-256 hex digest in constant time.
func Verify(s, expectedHash string) bool {
	return Equal(Hash(s), expectedHash)
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
