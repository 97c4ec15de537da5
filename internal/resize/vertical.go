package resize

import (
	"github.com/deepteams/zscale/internal/cpu"
	"github.com/deepteams/zscale/internal/graphengine"
	"github.com/deepteams/zscale/internal/pixel"
)

// verticalU16 computes one output row as a weighted sum of input rows.
// Accumulation is tap-major over int32 accumulators held in the
// scratchpad, emitted with rounding and saturation after the last tap.
type verticalU16 struct {
	desc   graphengine.FilterDescriptor
	ctx    *Context
	maxVal int32
	unroll int
}

// NewVerticalU16 returns the vertical polyphase filter over uint16
// samples at the given depth.
func NewVerticalU16(ctx *Context, width, depth int, class cpu.Class) graphengine.Filter {
	f := &verticalU16{
		ctx:    ctx,
		maxVal: int32(1)<<uint(depth) - 1,
		unroll: 1,
	}
	if cpu.HasWide(cpu.Resolve(class)) {
		f.unroll = 8
	}
	f.desc = graphengine.FilterDescriptor{
		Format:         graphengine.PlaneDescriptor{Width: width, Height: ctx.FilterRows, BytesPerSample: 2},
		DepFormat:      graphengine.PlaneDescriptor{Width: width, Height: ctx.InputWidth, BytesPerSample: 2},
		NumDeps:        1,
		NumPlanes:      1,
		Step:           1,
		ScratchpadSize: pixel.AlignSize(width * 4),
	}
	return f
}

func (f *verticalU16) Descriptor() *graphengine.FilterDescriptor { return &f.desc }

func (f *verticalU16) RowDeps(i int) (int, int) { return f.ctx.RowSpan(i) }

func (f *verticalU16) ColDeps(left, right int) (int, int) { return left, right }

func (f *verticalU16) Process(in, out []graphengine.LineBuffer, i, left, right int, scratch []byte) {
	fw := f.ctx.FilterWidth
	coefs := f.ctx.DataI16[i*f.ctx.StrideI16 : i*f.ctx.StrideI16+fw]
	base := f.ctx.Left[i]
	acc := pixel.BytesAsI32(scratch)[:f.desc.Format.Width]

	for j := left; j < right; j++ {
		acc[j] = 0
	}
	for k := 0; k < fw; k++ {
		c := int32(coefs[k])
		if c == 0 {
			continue
		}
		src := in[0].U16Line(base + k)
		accumulateU16(acc, src, c, left, right, f.unroll)
	}

	dst := out[0].U16Line(i)
	for j := left; j < right; j++ {
		dst[j] = clampU16((int64(acc[j])+u16Bias+(1<<13))>>14, f.maxVal)
	}
}

// accumulateU16 adds one tap's contribution across a column range.
// unroll > 1 processes that many columns per iteration with a scalar tail.
func accumulateU16(acc []int32, src []uint16, c int32, left, right, unroll int) {
	j := left
	if unroll >= 8 {
		for ; j+8 <= right; j += 8 {
			acc[j] += c * (int32(src[j]) - 0x8000)
			acc[j+1] += c * (int32(src[j+1]) - 0x8000)
			acc[j+2] += c * (int32(src[j+2]) - 0x8000)
			acc[j+3] += c * (int32(src[j+3]) - 0x8000)
			acc[j+4] += c * (int32(src[j+4]) - 0x8000)
			acc[j+5] += c * (int32(src[j+5]) - 0x8000)
			acc[j+6] += c * (int32(src[j+6]) - 0x8000)
			acc[j+7] += c * (int32(src[j+7]) - 0x8000)
		}
	}
	for ; j < right; j++ {
		acc[j] += c * (int32(src[j]) - 0x8000)
	}
}

// verticalF32 computes one float output row per call, accumulating
// directly into the destination line.
type verticalF32 struct {
	desc   graphengine.FilterDescriptor
	ctx    *Context
	unroll int
}

// NewVerticalF32 returns the vertical polyphase filter over float32
// samples.
func NewVerticalF32(ctx *Context, width int, class cpu.Class) graphengine.Filter {
	f := &verticalF32{ctx: ctx, unroll: 1}
	if cpu.HasWide(cpu.Resolve(class)) {
		f.unroll = 8
	}
	f.desc = graphengine.FilterDescriptor{
		Format:    graphengine.PlaneDescriptor{Width: width, Height: ctx.FilterRows, BytesPerSample: 4},
		DepFormat: graphengine.PlaneDescriptor{Width: width, Height: ctx.InputWidth, BytesPerSample: 4},
		NumDeps:   1,
		NumPlanes: 1,
		Step:      1,
	}
	return f
}

func (f *verticalF32) Descriptor() *graphengine.FilterDescriptor { return &f.desc }

func (f *verticalF32) RowDeps(i int) (int, int) { return f.ctx.RowSpan(i) }

func (f *verticalF32) ColDeps(left, right int) (int, int) { return left, right }

func (f *verticalF32) Process(in, out []graphengine.LineBuffer, i, left, right int, _ []byte) {
	fw := f.ctx.FilterWidth
	coefs := f.ctx.Data[i*f.ctx.Stride : i*f.ctx.Stride+fw]
	base := f.ctx.Left[i]
	dst := out[0].F32Line(i)

	for j := left; j < right; j++ {
		dst[j] = 0
	}
	for k := 0; k < fw; k++ {
		c := coefs[k]
		if c == 0 {
			continue
		}
		src := in[0].F32Line(base + k)
		j := left
		if f.unroll >= 8 {
			for ; j+8 <= right; j += 8 {
				dst[j] += c * src[j]
				dst[j+1] += c * src[j+1]
				dst[j+2] += c * src[j+2]
				dst[j+3] += c * src[j+3]
				dst[j+4] += c * src[j+4]
				dst[j+5] += c * src[j+5]
				dst[j+6] += c * src[j+6]
				dst[j+7] += c * src[j+7]
			}
		}
		for ; j < right; j++ {
			dst[j] += c * src[j]
		}
	}
}
