// Package digest computes content fingerprints and snapshot cache keys.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the hex-encoded SHA-256 of canonical text.
// It is the only signal used to decide whether a page changed.
func Fingerprint(text string) string {
	return sum(text)
}

// CacheKey derives a filesystem-safe, fixed-length key for a URL.
func CacheKey(url string) string {
	return sum(url)
}

func sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
