// SPDX-License-Identifier: MIT

/*
Package bitint holds the power-of-two helpers used to validate and suggest
FFT sizes.

	// Reject an FFT size the transform cannot use.
	ok := bitint.IsPowerOfTwo(fftSize)

	// Suggest the nearest usable size in an error message.
	hint := bitint.NextPowerOfTwo(3000) // 4096

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two map onto themselves:

	input 8:  8-1 = 0b0111, bits.Len = 3, 1<<3 = 8
	input 9:  9-1 = 0b1000, bits.Len = 4, 1<<4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Zero and
// negative sizes return 1.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// PrevPowerOfTwo returns the largest power of two <= size, or 0 when size
// is not positive.
func PrevPowerOfTwo(size int) int {
	if size <= 0 {
		return 0
	}
	return 1 << (bits.Len(uint(size)) - 1)
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has a single bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
