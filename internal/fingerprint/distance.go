package fingerprint

import (
	"math"
	"math/bits"
)

// InfiniteDistance is returned when two hashes cannot be compared.
const InfiniteDistance = math.MaxInt

// HammingHex returns the bit-level Hamming distance between two hex
// hash strings. Hashes of unequal length, or with non-hex characters,
// are infinitely distant rather than an error.
func HammingHex(a, b string) int {
	if len(a) != len(b) || len(a) == 0 {
		return InfiniteDistance
	}
	distance := 0
	for i := 0; i < len(a); i++ {
		na, ok := hexNibble(a[i])
		if !ok {
			return InfiniteDistance
		}
		nb, ok := hexNibble(b[i])
		if !ok {
			return InfiniteDistance
		}
		distance += bits.OnesCount8(na ^ nb)
	}
	return distance
}

// BitLength returns the number of bits a hex hash encodes.
func BitLength(hash string) int {
	return len(hash) * 4
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
