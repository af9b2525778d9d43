package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a short hex digest of a cached payload so debug logs
// can tell entries apart without printing response bodies.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:6])
}
