package depth

import (
	"math"

	"github.com/deepteams/zscale/internal/cpu"
	"github.com/deepteams/zscale/internal/graphengine"
	"github.com/deepteams/zscale/internal/pixel"
)

// bayer8 is the classic 8x8 ordered-dither index matrix.
var bayer8 = [64]uint8{
	0, 32, 8, 40, 2, 34, 10, 42,
	48, 16, 56, 24, 50, 18, 58, 26,
	12, 44, 4, 36, 14, 46, 6, 38,
	60, 28, 52, 20, 62, 30, 54, 22,
	3, 35, 11, 43, 1, 33, 9, 41,
	51, 19, 59, 27, 49, 17, 57, 25,
	15, 47, 7, 39, 13, 45, 5, 37,
	63, 31, 55, 23, 61, 29, 53, 21,
}

// orderedTable is bayer8 recentred to [-0.5, 0.5), in output quantisation
// steps.
var orderedTable [64]float32

// zeroTable quantises without dither (round only).
var zeroTable [64]float32

func init() {
	for i, v := range bayer8 {
		orderedTable[i] = (float32(v)+0.5)/64.0 - 0.5
	}
}

// ditherFilter quantises any sample format to u8/u16 with an additive
// per-position dither ahead of the round.
type ditherFilter struct {
	desc   graphengine.FilterDescriptor
	in     pixel.Type
	out    pixel.Type
	scale  float32
	offset float32
	maxVal int32
	table  *[64]float32
}

func newDither(width, height int, in, out pixel.Format, dither DitherType, _ cpu.Class) (graphengine.Filter, error) {
	if dither == DitherErrorDiffusion {
		return newErrorDiffusion(width, height, in, out)
	}
	s, o := transform(in, out)
	f := &ditherFilter{
		in:     in.Type,
		out:    out.Type,
		scale:  float32(s),
		offset: float32(o),
		maxVal: int32(1)<<uint(out.Depth) - 1,
		table:  &zeroTable,
	}
	if dither == DitherOrdered {
		f.table = &orderedTable
	}
	f.desc = graphengine.PointDescriptor(width, height, out.Type.Size(), 1, 1)
	f.desc.DepFormat.BytesPerSample = in.Type.Size()
	f.desc.Flags.InPlace = in.Type.Size() == out.Type.Size()
	f.desc.ScratchpadSize = pixel.AlignSize(width * 4)
	return f, nil
}

func (f *ditherFilter) Descriptor() *graphengine.FilterDescriptor { return &f.desc }

func (f *ditherFilter) RowDeps(i int) (int, int) { return i, i + 1 }

func (f *ditherFilter) ColDeps(left, right int) (int, int) { return left, right }

func (f *ditherFilter) Process(in, out []graphengine.LineBuffer, i, left, right int, scratch []byte) {
	row := pixel.BytesAsF32(scratch)[:f.desc.Format.Width]
	loadRowF32(&in[0], f.in, i, left, right, row)

	drow := f.table[(i&7)*8:]
	switch f.out {
	case pixel.U8:
		dst := out[0].Line(i)
		for j := left; j < right; j++ {
			v := f.scale*row[j] + f.offset + drow[j&7]
			dst[j] = byte(clampI32(roundF32(v), f.maxVal))
		}
	default:
		dst := out[0].U16Line(i)
		for j := left; j < right; j++ {
			v := f.scale*row[j] + f.offset + drow[j&7]
			dst[j] = uint16(clampI32(roundF32(v), f.maxVal))
		}
	}
}

// loadRowF32 reads columns [left, right) of row i as float32 values in
// the sample's native code range.
func loadRowF32(b *graphengine.LineBuffer, t pixel.Type, i, left, right int, dst []float32) {
	switch t {
	case pixel.U8:
		src := b.Line(i)
		for j := left; j < right; j++ {
			dst[j] = float32(src[j])
		}
	case pixel.U16:
		src := b.U16Line(i)
		for j := left; j < right; j++ {
			dst[j] = float32(src[j])
		}
	case pixel.F16:
		src := b.U16Line(i)
		for j := left; j < right; j++ {
			dst[j] = halfToFloat(src[j])
		}
	default:
		copy(dst[left:right], b.F32Line(i)[left:right])
	}
}

func roundF32(x float32) int32 {
	return int32(math.Floor(float64(x) + 0.5))
}

func clampI32(v, maxVal int32) int32 {
	if v < 0 {
		return 0
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
