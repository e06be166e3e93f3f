// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// shortLen is the hex length used for item IDs and cache keys.
const shortLen = 16

// Hex hashes the input and returns the full hex digest.
func Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Short returns a truncated digest suitable for compact identifiers. The
// truncation is stable, so identifiers derived from it survive across runs.
func Short(data []byte) string {
	return Hex(data)[:shortLen]
}
