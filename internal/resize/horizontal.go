package resize

import (
	"github.com/deepteams/zscale/internal/cpu"
	"github.com/deepteams/zscale/internal/graphengine"
)

// u16Bias recentres unsigned 16-bit samples around zero so tap products
// stay within the signed 16x16 multiply range; the row sum of 1<<14
// restores it as a constant after accumulation.
const u16Bias = 1 << 29 // 32768 * 16384

// horizontalU16 resamples one row of unsigned 16-bit samples per call.
type horizontalU16 struct {
	desc    graphengine.FilterDescriptor
	ctx     *Context
	maxVal  int32
	process func(f *horizontalU16, src, dst []uint16, left, right int)
}

// NewHorizontalU16 returns the horizontal polyphase filter over uint16
// samples at the given depth.
func NewHorizontalU16(ctx *Context, height, depth int, class cpu.Class) graphengine.Filter {
	f := &horizontalU16{
		ctx:    ctx,
		maxVal: int32(1)<<uint(depth) - 1,
		desc: graphengine.FilterDescriptor{
			Format:    graphengine.PlaneDescriptor{Width: ctx.FilterRows, Height: height, BytesPerSample: 2},
			DepFormat: graphengine.PlaneDescriptor{Width: ctx.InputWidth, Height: height, BytesPerSample: 2},
			NumDeps:   1,
			NumPlanes: 1,
			Step:      1,
			Flags:     graphengine.Flags{SameRow: true},
		},
	}
	if cpu.HasWide(cpu.Resolve(class)) && ctx.FilterWidth >= 4 {
		f.process = (*horizontalU16).processBlock4
	} else {
		f.process = (*horizontalU16).processScalar
	}
	return f
}

func (f *horizontalU16) Descriptor() *graphengine.FilterDescriptor { return &f.desc }

func (f *horizontalU16) RowDeps(i int) (int, int) { return i, i + 1 }

func (f *horizontalU16) ColDeps(left, right int) (int, int) {
	return colSpan(f.ctx, left, right)
}

func (f *horizontalU16) Process(in, out []graphengine.LineBuffer, i, left, right int, _ []byte) {
	f.process(f, in[0].U16Line(i), out[0].U16Line(i), left, right)
}

func (f *horizontalU16) processScalar(src, dst []uint16, left, right int) {
	fw := f.ctx.FilterWidth
	stride := f.ctx.StrideI16
	for j := left; j < right; j++ {
		coefs := f.ctx.DataI16[j*stride : j*stride+fw]
		base := f.ctx.Left[j]
		var acc int64
		for k, c := range coefs {
			acc += int64(c) * int64(int32(src[base+k])-0x8000)
		}
		dst[j] = clampU16((acc+u16Bias+(1<<13))>>14, f.maxVal)
	}
}

// processBlock4 runs the inner dot product four taps at a time with a
// scalar tail, the structure the unrolled kernels follow.
func (f *horizontalU16) processBlock4(src, dst []uint16, left, right int) {
	fw := f.ctx.FilterWidth
	fw4 := fw &^ 3
	stride := f.ctx.StrideI16
	for j := left; j < right; j++ {
		coefs := f.ctx.DataI16[j*stride : j*stride+fw]
		base := f.ctx.Left[j]
		var a0, a1, a2, a3 int64
		for k := 0; k < fw4; k += 4 {
			a0 += int64(coefs[k]) * int64(int32(src[base+k])-0x8000)
			a1 += int64(coefs[k+1]) * int64(int32(src[base+k+1])-0x8000)
			a2 += int64(coefs[k+2]) * int64(int32(src[base+k+2])-0x8000)
			a3 += int64(coefs[k+3]) * int64(int32(src[base+k+3])-0x8000)
		}
		acc := a0 + a1 + a2 + a3
		for k := fw4; k < fw; k++ {
			acc += int64(coefs[k]) * int64(int32(src[base+k])-0x8000)
		}
		dst[j] = clampU16((acc+u16Bias+(1<<13))>>14, f.maxVal)
	}
}

// horizontalF32 resamples one row of float samples per call.
type horizontalF32 struct {
	desc    graphengine.FilterDescriptor
	ctx     *Context
	process func(f *horizontalF32, src, dst []float32, left, right int)
}

// NewHorizontalF32 returns the horizontal polyphase filter over float32
// samples.
func NewHorizontalF32(ctx *Context, height int, class cpu.Class) graphengine.Filter {
	f := &horizontalF32{
		ctx: ctx,
		desc: graphengine.FilterDescriptor{
			Format:    graphengine.PlaneDescriptor{Width: ctx.FilterRows, Height: height, BytesPerSample: 4},
			DepFormat: graphengine.PlaneDescriptor{Width: ctx.InputWidth, Height: height, BytesPerSample: 4},
			NumDeps:   1,
			NumPlanes: 1,
			Step:      1,
			Flags:     graphengine.Flags{SameRow: true},
		},
	}
	if cpu.HasWide(cpu.Resolve(class)) && ctx.FilterWidth >= 4 {
		f.process = (*horizontalF32).processBlock4
	} else {
		f.process = (*horizontalF32).processScalar
	}
	return f
}

func (f *horizontalF32) Descriptor() *graphengine.FilterDescriptor { return &f.desc }

func (f *horizontalF32) RowDeps(i int) (int, int) { return i, i + 1 }

func (f *horizontalF32) ColDeps(left, right int) (int, int) {
	return colSpan(f.ctx, left, right)
}

func (f *horizontalF32) Process(in, out []graphengine.LineBuffer, i, left, right int, _ []byte) {
	f.process(f, in[0].F32Line(i), out[0].F32Line(i), left, right)
}

func (f *horizontalF32) processScalar(src, dst []float32, left, right int) {
	fw := f.ctx.FilterWidth
	stride := f.ctx.Stride
	for j := left; j < right; j++ {
		coefs := f.ctx.Data[j*stride : j*stride+fw]
		base := f.ctx.Left[j]
		var acc float32
		for k, c := range coefs {
			acc += c * src[base+k]
		}
		dst[j] = acc
	}
}

func (f *horizontalF32) processBlock4(src, dst []float32, left, right int) {
	fw := f.ctx.FilterWidth
	fw4 := fw &^ 3
	stride := f.ctx.Stride
	for j := left; j < right; j++ {
		coefs := f.ctx.Data[j*stride : j*stride+fw]
		base := f.ctx.Left[j]
		var a0, a1, a2, a3 float32
		for k := 0; k < fw4; k += 4 {
			a0 += coefs[k] * src[base+k]
			a1 += coefs[k+1] * src[base+k+1]
			a2 += coefs[k+2] * src[base+k+2]
			a3 += coefs[k+3] * src[base+k+3]
		}
		acc := a0 + a1 + a2 + a3
		for k := fw4; k < fw; k++ {
			acc += coefs[k] * src[base+k]
		}
		dst[j] = acc
	}
}

// colSpan computes the union of input windows for output columns
// [left, right).
func colSpan(ctx *Context, left, right int) (int, int) {
	if left >= right {
		return 0, 0
	}
	lo := ctx.Left[left]
	hi := ctx.Left[left] + ctx.FilterWidth
	for j := left + 1; j < right; j++ {
		if ctx.Left[j] < lo {
			lo = ctx.Left[j]
		}
		if ctx.Left[j]+ctx.FilterWidth > hi {
			hi = ctx.Left[j] + ctx.FilterWidth
		}
	}
	if hi > ctx.InputWidth {
		hi = ctx.InputWidth
	}
	return lo, hi
}

func clampU16(v int64, maxVal int32) uint16 {
	if v < 0 {
		return 0
	}
	if v > int64(maxVal) {
		return uint16(maxVal)
	}
	return uint16(v)
}
