package depth

import (
	"github.com/x448/float16"

	"github.com/deepteams/zscale/internal/graphengine"
)

// halfToFloat widens IEEE half-precision samples to single precision.
// Scalar conversion; hosts with hardware half-converts go through the
// same code path, the conversion being exact either way.
func halfToFloat(bits uint16) float32 {
	return float16.Frombits(bits).Float32()
}

func halfFromFloat(x float32) uint16 {
	return float16.Fromfloat32(x).Bits()
}

type half2Float struct {
	desc graphengine.FilterDescriptor
}

func newHalfToFloat(width, height int) *half2Float {
	f := &half2Float{}
	f.desc = graphengine.PointDescriptor(width, height, 4, 1, 1)
	f.desc.DepFormat.BytesPerSample = 2
	f.desc.Flags.InPlace = false
	return f
}

func (f *half2Float) Descriptor() *graphengine.FilterDescriptor { return &f.desc }

func (f *half2Float) RowDeps(i int) (int, int) { return i, i + 1 }

func (f *half2Float) ColDeps(left, right int) (int, int) { return left, right }

func (f *half2Float) Process(in, out []graphengine.LineBuffer, i, left, right int, _ []byte) {
	src := in[0].U16Line(i)
	dst := out[0].F32Line(i)
	for j := left; j < right; j++ {
		dst[j] = halfToFloat(src[j])
	}
}

type float2Half struct {
	desc graphengine.FilterDescriptor
}

func newFloatToHalf(width, height int) *float2Half {
	f := &float2Half{}
	f.desc = graphengine.PointDescriptor(width, height, 2, 1, 1)
	f.desc.DepFormat.BytesPerSample = 4
	f.desc.Flags.InPlace = false
	return f
}

func (f *float2Half) Descriptor() *graphengine.FilterDescriptor { return &f.desc }

func (f *float2Half) RowDeps(i int) (int, int) { return i, i + 1 }

func (f *float2Half) ColDeps(left, right int) (int, int) { return left, right }

func (f *float2Half) Process(in, out []graphengine.LineBuffer, i, left, right int, _ []byte) {
	src := in[0].F32Line(i)
	dst := out[0].U16Line(i)
	for j := left; j < right; j++ {
		dst[j] = halfFromFloat(src[j])
	}
}
