// Package octal implements the fixed-width ASCII octal codec used by CPIO
// headers and the random receiver-id generator shared across the bridge.
package octal

import (
	"crypto/rand"
	"math"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// IDLength is the length of a generated receiver-id.
const IDLength = 12

// Parse decodes a byte slice of ASCII octal digits ('0'..'7') into a
// uint32. Parsing is all-or-nothing: empty input, a sign, any non-octal
// byte, or a value that overflows uint32 all fail.
func Parse(b []byte) (uint32, bool) {
	if len(b) == 0 {
		return 0, false
	}

	var value uint64
	for _, c := range b {
		if c < '0' || c > '7' {
			return 0, false
		}
		value = value*8 + uint64(c-'0')
		if value > math.MaxUint32 {
			return 0, false
		}
	}

	return uint32(value), true
}

// Format renders n as fixed-width, zero-padded ASCII octal. If the octal
// representation is longer than width, the full representation is
// returned unpadded rather than truncated.
func Format(n uint32, width int) []byte {
	digits := make([]byte, 0, width)
	if n == 0 {
		digits = append(digits, '0')
	}
	for n > 0 {
		digits = append(digits, byte('0'+n%8))
		n /= 8
	}
	// digits is currently least-significant-first; reverse it.
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}

	if len(digits) >= width {
		return digits
	}

	out := make([]byte, width)
	pad := width - len(digits)
	for i := 0; i < pad; i++ {
		out[i] = '0'
	}
	copy(out[pad:], digits)
	return out
}

// NewID returns a cryptographically random 12-character receiver-id drawn
// uniformly from [a-z0-9], one character at a time via modulo selection
// over the 36-character alphabet.
func NewID() string {
	// Bytes at or above the largest multiple of 36 below 256 (252) are
	// redrawn, so the modulo does not favour the first characters.
	const limit = 256 - 256%len(idAlphabet)
	buf := make([]byte, 0, IDLength)
	idx := make([]byte, IDLength)
	for len(buf) < IDLength {
		if _, err := rand.Read(idx); err != nil {
			panic("octal: failed to read random bytes: " + err.Error())
		}
		for _, b := range idx {
			if int(b) < limit && len(buf) < IDLength {
				buf = append(buf, idAlphabet[int(b)%len(idAlphabet)])
			}
		}
	}
	return string(buf)
}
