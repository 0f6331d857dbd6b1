/*
Package bitint provides the power-of-two helpers used to size transforms
and validate analysis configuration.

All functions are O(1), allocation free and safe to call from the audio
callback.

	// Derive a transform size from the audio buffer size.
	n := bitint.NextPowerOfTwo(framesPerBuffer) // 480 -> 512

	// Reject transform sizes the radix-2 FFT cannot handle.
	if !bitint.IsPowerOfTwo(n) { ... }

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two map to themselves: for 8 (0b1000), 8-1 = 0b0111 has length 3
and 1<<3 = 8. Without the subtraction 8 would become 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
// Non-positive sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
// Powers of two have exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns the base-2 logarithm of n, which must be a power of two.
// It is the number of butterfly stages of a radix-2 transform of size n.
func Log2(n int) int {
	if n <= 0 {
		return 0
	}
	return bits.TrailingZeros(uint(n))
}
