package imagehash

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// HexLength is the rendered length of a 64-bit hash.
const HexLength = 16

// Hash is a 64-bit perceptual hash.
type Hash uint64

// String renders the hash as 16 lowercase hex characters.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// Distance returns the number of differing bits between a and b.
func Distance(a, b Hash) int {
	return bits.OnesCount64(uint64(a) ^ uint64(b))
}

// ParseHash decodes a hex-rendered hash.
func ParseHash(value string) (Hash, error) {
	value = strings.TrimSpace(value)
	if len(value) != HexLength {
		return 0, fmt.Errorf("hash %q: want %d hex characters, got %d", value, HexLength, len(value))
	}
	parsed, err := strconv.ParseUint(value, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("hash %q: %w", value, err)
	}
	return Hash(parsed), nil
}

// HexDistance is the Hamming distance between two hex-rendered hashes. Both
// must decode to the same bit length.
func HexDistance(a, b string) (int, error) {
	ha, err := ParseHash(a)
	if err != nil {
		return 0, err
	}
	hb, err := ParseHash(b)
	if err != nil {
		return 0, err
	}
	return Distance(ha, hb), nil
}
