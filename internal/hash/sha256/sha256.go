// Package sha256 names content by its SHA-256 digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher produces hex-encoded SHA-256 digests. It satisfies snapshot.Hasher.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data. It never fails.
func (Hasher) Hash(data []byte) (string, error) {
	return Sum(data), nil
}

// Sum returns the hex digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Short returns the first n hex characters of the digest of s, or the whole
// digest when n is out of range.
func Short(s string, n int) string {
	d := Sum([]byte(s))
	if n <= 0 || n > len(d) {
		return d
	}
	return d[:n]
}
