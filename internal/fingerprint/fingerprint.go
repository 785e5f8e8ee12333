// Package fingerprint implements 32-bit change detection over packed
// vertex data.
//
// The hash is FNV-1a folded over little-endian 32-bit words, i.e. the raw
// bit patterns of the packed floats. Bit patterns rather than numeric
// equality matter here: two values with the same rounded display can still
// differ at the bit level and must be treated as changed, and NaN payloads
// (gap markers) compare unequal numerically but hash stably.
//
// Because FNV-1a consumes input strictly left to right, folding the words of
// an appended suffix into an existing accumulator yields exactly the hash of
// the full buffer. The append fast path in the series buffer store relies on
// this; TestFoldMatchesFullHash pins the property.
package fingerprint

import "encoding/binary"

// FNV-1a 32-bit parameters.
const (
	offsetBasis uint32 = 2166136261
	prime       uint32 = 16777619
)

// Sum returns the fingerprint of data. len(data) must be a multiple of 4;
// packed point data always is (8 bytes per point).
func Sum(data []byte) uint32 {
	return Fold(offsetBasis, data)
}

// Fold folds additional words into an existing accumulator. Passing the
// fingerprint of a prefix and the bytes of a suffix returns the fingerprint
// of the concatenation.
func Fold(acc uint32, data []byte) uint32 {
	for i := 0; i+4 <= len(data); i += 4 {
		acc ^= binary.LittleEndian.Uint32(data[i:])
		acc *= prime
	}
	return acc
}
