package chartcore

import (
	"encoding/binary"
	"math"

	"golang.org/x/image/math/f32"
)

// pointStride is the packed size of one point: two little-endian float32s.
const pointStride = 8

// gapBits is the IEEE-754 quiet NaN bit pattern written for gap points.
// Downstream rendering treats a NaN coordinate as a break in the trace.
const gapBits = 0x7FC00000

// Gap returns the gap marker point. Both coordinates are NaN; a gap point
// in a series produces a visual break instead of a connecting segment.
func Gap() f32.Vec2 {
	nan := math.Float32frombits(gapBits)
	return f32.Vec2{nan, nan}
}

// IsGap reports whether p is a gap point (either coordinate is NaN).
func IsGap(p f32.Vec2) bool {
	return p[0] != p[0] || p[1] != p[1]
}

// packPoints encodes points into the tightly packed little-endian x,y layout
// uploaded to GPU buffers. NaN coordinates keep their exact bit pattern so
// change detection over the packed bytes sees them as stable values.
func packPoints(pts []f32.Vec2) []byte {
	buf := make([]byte, len(pts)*pointStride)
	packInto(buf, pts)
	return buf
}

// packInto encodes points into dst, which must hold len(pts)*pointStride bytes.
func packInto(dst []byte, pts []f32.Vec2) {
	for i, p := range pts {
		binary.LittleEndian.PutUint32(dst[i*pointStride:], math.Float32bits(p[0]))
		binary.LittleEndian.PutUint32(dst[i*pointStride+4:], math.Float32bits(p[1]))
	}
}
