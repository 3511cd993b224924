// Package checksum fingerprints file content. The digests name pasted
// images and back HTTP cache validation for served files.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short returns the leading 8 hex characters of the digest, enough to tell
// pasted images apart within one folder.
func Short(data []byte) string {
	return Sum(data)[:8]
}
