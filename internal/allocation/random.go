package allocation

import (
	"crypto/sha256"
	"encoding/binary"
)

// sampleRange is 2^32; dividing a 32-bit value by it keeps samples strictly
// below 1 so arm indexes never overflow.
const sampleRange = 1 << 32

// Sample maps (key, seed) to a reproducible value in [0,1). It hashes
// "{key}_{seed}" with SHA-256 and scales the first 32 bits of the digest, the
// same value as reading the first 8 hex digits of the hex digest.
func Sample(key, seed string) float64 {
	sum := sha256.Sum256([]byte(key + "_" + seed))
	return float64(binary.BigEndian.Uint32(sum[:4])) / sampleRange
}

// pick maps a sample onto one of n choices.
func pick(r float64, n int) int {
	i := int(r * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
