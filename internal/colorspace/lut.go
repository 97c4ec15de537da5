package colorspace

import (
	"github.com/x448/float16"

	"github.com/deepteams/zscale/internal/graphengine"
	"github.com/deepteams/zscale/internal/pixel"
)

// buildHalfLUT tabulates fn over every half-precision bit pattern.
// Lookup replaces evaluation for transfers with no cheap polynomial fit;
// the table is 256 KiB and exact to half precision.
func buildHalfLUT(fn func(float32) float32) func(float32) float32 {
	table := make([]float32, 1<<16)
	for bits := 0; bits < 1<<16; bits++ {
		x := float16.Frombits(uint16(bits)).Float32()
		table[bits] = fn(x)
	}
	return func(x float32) float32 {
		return table[float16.Fromfloat32(x).Bits()]
	}
}

// BuildIntegerLUT tabulates the composition of integer normalisation and
// fn for every code value of an integer format. Indexing by the sample
// replaces both the to-float conversion and the curve evaluation.
func BuildIntegerLUT(f pixel.Format, fn func(float32) float32, postScale float32) []float32 {
	codes := 1 << uint(f.Depth)
	table := make([]float32, codes)

	var scale, offset float32
	if f.FullRange {
		scale = 1.0 / float32(codes-1)
	} else {
		scale = 1.0 / float32(uint(219)<<uint(f.Depth-8))
		offset = -float32(uint(16)<<uint(f.Depth-8)) * scale
	}
	for code := 0; code < codes; code++ {
		table[code] = fn(scale*float32(code)+offset) * postScale
	}
	return table
}

// integerGamma converts an integer-coded plane to float through a per-code
// lookup of a curve, fusing the depth conversion with the curve.
// Only depths of at most 10 bits are tabulated.
type integerGamma struct {
	desc  graphengine.FilterDescriptor
	in    pixel.Type
	table []float32
}

// MaxLUTDepth is the widest integer depth the per-code gamma LUT covers.
const MaxLUTDepth = 10

// NewIntegerGamma returns a filter applying fn to integer-coded samples
// of format f, emitting float32. The caller must ensure f.Depth is at
// most MaxLUTDepth.
func NewIntegerGamma(width, height int, f pixel.Format, fn func(float32) float32, postScale float32) graphengine.Filter {
	g := &integerGamma{in: f.Type, table: BuildIntegerLUT(f, fn, postScale)}
	g.desc = graphengine.PointDescriptor(width, height, 4, 1, 1)
	g.desc.DepFormat.BytesPerSample = f.Type.Size()
	g.desc.Flags.InPlace = false
	return g
}

func (g *integerGamma) Descriptor() *graphengine.FilterDescriptor { return &g.desc }

func (g *integerGamma) RowDeps(i int) (int, int) { return i, i + 1 }

func (g *integerGamma) ColDeps(left, right int) (int, int) { return left, right }

func (g *integerGamma) Process(in, out []graphengine.LineBuffer, i, left, right int, _ []byte) {
	dst := out[0].F32Line(i)
	mask := len(g.table) - 1
	if g.in == pixel.U8 {
		src := in[0].Line(i)
		for j := left; j < right; j++ {
			dst[j] = g.table[int(src[j])&mask]
		}
		return
	}
	src := in[0].U16Line(i)
	for j := left; j < right; j++ {
		dst[j] = g.table[int(src[j])&mask]
	}
}
