package graphengine

import "github.com/deepteams/zscale/internal/pixel"

// BufferMax is the ring mask value meaning the buffer holds the entire
// image and rows are addressed directly.
const BufferMax = ^uint32(0)

// maskThreshold is the smallest line count SelectMask promotes to an
// unbounded buffer; smaller counts are expressed as a ring.
const maskThreshold = 1 << 16

// LineBuffer addresses the rows of one plane through a power-of-two ring.
// Line i lives at byte offset Stride * (i & Mask); with Mask == BufferMax
// the buffer is linear over the whole plane.
type LineBuffer struct {
	Data   []byte
	Stride int
	Mask   uint32
}

// Line returns the storage for row i.
func (b *LineBuffer) Line(i int) []byte {
	off := b.Stride * int(uint32(i)&b.Mask)
	return b.Data[off : off+b.Stride]
}

// U16Line returns row i viewed as uint16 samples.
func (b *LineBuffer) U16Line(i int) []uint16 { return pixel.BytesAsU16(b.Line(i)) }

// F32Line returns row i viewed as float32 samples.
func (b *LineBuffer) F32Line(i int) []float32 { return pixel.BytesAsF32(b.Line(i)) }

// Lines returns the addressable row count of the ring.
func (b *LineBuffer) Lines(planeHeight int) int {
	if b.Mask == BufferMax {
		return planeHeight
	}
	return int(b.Mask) + 1
}

// SelectMask returns the smallest power-of-two-minus-one mask whose window
// holds at least count lines, or BufferMax when the request reaches the
// ring threshold.
func SelectMask(count int) uint32 {
	if count <= 0 {
		return 0
	}
	if count >= maskThreshold {
		return BufferMax
	}
	return uint32(1)<<uint(pixel.CeilLog2(uint32(count))) - 1
}
