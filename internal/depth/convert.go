package depth

import (
	"github.com/deepteams/zscale/internal/graphengine"
	"github.com/deepteams/zscale/internal/pixel"
)

// leftShift renormalises narrow-depth integer samples into a wider
// container, preserving MSB alignment.
type leftShift struct {
	desc  graphengine.FilterDescriptor
	shift uint
	in    pixel.Type
	out   pixel.Type
}

func newLeftShift(width, height int, in, out pixel.Format, shift int) *leftShift {
	f := &leftShift{shift: uint(shift), in: in.Type, out: out.Type}
	f.desc = graphengine.PointDescriptor(width, height, out.Type.Size(), 1, 1)
	f.desc.DepFormat.BytesPerSample = in.Type.Size()
	f.desc.Flags.InPlace = in.Type.Size() == out.Type.Size()
	return f
}

func (f *leftShift) Descriptor() *graphengine.FilterDescriptor { return &f.desc }

func (f *leftShift) RowDeps(i int) (int, int) { return i, i + 1 }

func (f *leftShift) ColDeps(left, right int) (int, int) { return left, right }

func (f *leftShift) Process(in, out []graphengine.LineBuffer, i, left, right int, _ []byte) {
	switch {
	case f.in == pixel.U8 && f.out == pixel.U8:
		src, dst := in[0].Line(i), out[0].Line(i)
		for j := left; j < right; j++ {
			dst[j] = src[j] << f.shift
		}
	case f.in == pixel.U8 && f.out == pixel.U16:
		src, dst := in[0].Line(i), out[0].U16Line(i)
		for j := left; j < right; j++ {
			dst[j] = uint16(src[j]) << f.shift
		}
	case f.in == pixel.U16 && f.out == pixel.U8:
		// Narrowing the container is only reachable when the output depth
		// fits 8 bits, so the shifted sample fits a byte.
		src, dst := in[0].U16Line(i), out[0].Line(i)
		for j := left; j < right; j++ {
			dst[j] = byte(src[j] << f.shift)
		}
	default:
		src, dst := in[0].U16Line(i), out[0].U16Line(i)
		for j := left; j < right; j++ {
			dst[j] = src[j] << f.shift
		}
	}
}

// toFloat converts integer samples to normalised float: luma on [0, 1],
// chroma on [-0.5, 0.5].
type toFloat struct {
	desc   graphengine.FilterDescriptor
	scale  float32
	offset float32
	in     pixel.Type
	out    pixel.Type
}

func newToFloat(width, height int, in, out pixel.Format) *toFloat {
	s, o := scaleOffset(in)
	f := &toFloat{scale: float32(s), offset: float32(o), in: in.Type, out: out.Type}
	f.desc = graphengine.PointDescriptor(width, height, out.Type.Size(), 1, 1)
	f.desc.DepFormat.BytesPerSample = in.Type.Size()
	f.desc.Flags.InPlace = in.Type.Size() == out.Type.Size()
	return f
}

func (f *toFloat) Descriptor() *graphengine.FilterDescriptor { return &f.desc }

func (f *toFloat) RowDeps(i int) (int, int) { return i, i + 1 }

func (f *toFloat) ColDeps(left, right int) (int, int) { return left, right }

func (f *toFloat) Process(in, out []graphengine.LineBuffer, i, left, right int, _ []byte) {
	if f.out == pixel.F16 {
		dst := out[0].U16Line(i)
		switch f.in {
		case pixel.U8:
			src := in[0].Line(i)
			for j := left; j < right; j++ {
				dst[j] = halfFromFloat(f.scale*float32(src[j]) + f.offset)
			}
		default:
			src := in[0].U16Line(i)
			for j := left; j < right; j++ {
				dst[j] = halfFromFloat(f.scale*float32(src[j]) + f.offset)
			}
		}
		return
	}
	dst := out[0].F32Line(i)
	switch f.in {
	case pixel.U8:
		src := in[0].Line(i)
		for j := left; j < right; j++ {
			dst[j] = f.scale*float32(src[j]) + f.offset
		}
	default:
		src := in[0].U16Line(i)
		for j := left; j < right; j++ {
			dst[j] = f.scale*float32(src[j]) + f.offset
		}
	}
}
