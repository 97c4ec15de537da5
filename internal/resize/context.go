package resize

import (
	"errors"
	"fmt"
	"math"

	"github.com/deepteams/zscale/internal/pixel"
)

// Errors returned by coefficient generation.
var (
	ErrBadDimension = errors.New("resize: dimension must be positive")
	ErrTooLarge     = errors.New("resize: coefficient table too large")
)

// coefScale is the Q1.14 fixed-point unit for int16 coefficients.
const coefScale = 1 << 14

// Context holds the precomputed coefficients of a 1-D polyphase filter.
// The table is immutable after ComputeFilter returns and may be shared by
// any number of filter instances.
type Context struct {
	InputWidth  int
	FilterRows  int // output dimension
	FilterWidth int // taps per row

	Stride    int // float taps per row, zero-padded
	StrideI16 int // int16 taps per row, zero-padded

	Data    []float32 // Data[i*Stride+k]
	DataI16 []int16   // DataI16[i*StrideI16+k], Q1.14
	Left    []int     // first input sample of row i
}

// RowSpan returns the half-open input range consumed by output row i.
func (c *Context) RowSpan(i int) (int, int) {
	return c.Left[i], c.Left[i] + c.FilterWidth
}

// ComputeFilter builds the polyphase coefficient table mapping srcDim
// samples onto dstDim samples. shift offsets the sampling grid in source
// samples; activeDim, when nonzero, maps only the leading activeDim
// source samples onto the destination (sub-pixel crop/zoom).
func ComputeFilter(f FilterFunc, srcDim, dstDim int, shift, activeDim float64) (*Context, error) {
	if srcDim <= 0 || dstDim <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimension, srcDim, dstDim)
	}
	if activeDim == 0 {
		activeDim = float64(srcDim)
	}
	if activeDim <= 0 {
		return nil, fmt.Errorf("%w: active dimension %v", ErrBadDimension, activeDim)
	}

	scale := float64(dstDim) / activeDim
	if _, ok := f.(Point); ok {
		return computePointFilter(srcDim, dstDim, scale, shift)
	}
	shrink := math.Min(1.0, scale)
	support := f.Support() / shrink
	filterWidth := 2 * int(math.Ceil(support))
	if filterWidth <= 0 {
		filterWidth = 2
	}
	if filterWidth > srcDim {
		filterWidth = srcDim
	}

	stride := pixel.AlignCount(filterWidth, 4)
	strideI16 := pixel.AlignCount(filterWidth, 2)
	if _, ok := pixel.CheckedMul(stride, dstDim); !ok {
		return nil, ErrTooLarge
	}

	ctx := &Context{
		InputWidth:  srcDim,
		FilterRows:  dstDim,
		FilterWidth: filterWidth,
		Stride:      stride,
		StrideI16:   strideI16,
		Data:        pixel.AllocFloat(stride * dstDim),
		DataI16:     pixel.AllocInt16(strideI16 * dstDim),
		Left:        make([]int, dstDim),
	}

	row := make([]float64, filterWidth)
	for i := 0; i < dstDim; i++ {
		center := (float64(i)+0.5)/scale + shift - 0.5
		begin := int(math.Floor(center - support + 0.5))

		// Sample and normalise.
		sum := 0.0
		for k := 0; k < filterWidth; k++ {
			row[k] = f.Eval((float64(begin+k) - center) * shrink)
			sum += row[k]
		}
		if sum == 0.0 {
			// Degenerate placement; fall back to the nearest sample.
			row[filterWidth/2] = 1.0
			sum = 1.0
		}
		for k := range row {
			row[k] /= sum
		}

		// Mirror out-of-range taps back across the border and clamp the
		// stored window into the image.
		left := begin
		if left < 0 {
			left = 0
		}
		if left > srcDim-filterWidth {
			left = srcDim - filterWidth
		}
		ctx.Left[i] = left

		folded := make([]float64, filterWidth)
		for k := 0; k < filterWidth; k++ {
			j := mirrorIndex(begin+k, srcDim) - left
			if j < 0 {
				j = 0
			} else if j >= filterWidth {
				j = filterWidth - 1
			}
			folded[j] += row[k]
		}

		for k := 0; k < filterWidth; k++ {
			ctx.Data[i*stride+k] = float32(folded[k])
		}
		quantizeRow(folded, ctx.DataI16[i*strideI16:i*strideI16+filterWidth])
	}
	return ctx, nil
}

// computePointFilter builds a single-tap nearest-neighbour table. Point
// sampling does not widen with the scale factor; every output sample maps
// to exactly one input sample.
func computePointFilter(srcDim, dstDim int, scale, shift float64) (*Context, error) {
	ctx := &Context{
		InputWidth:  srcDim,
		FilterRows:  dstDim,
		FilterWidth: 1,
		Stride:      pixel.AlignCount(1, 4),
		StrideI16:   pixel.AlignCount(1, 2),
		Left:        make([]int, dstDim),
	}
	ctx.Data = pixel.AllocFloat(ctx.Stride * dstDim)
	ctx.DataI16 = pixel.AllocInt16(ctx.StrideI16 * dstDim)
	for i := 0; i < dstDim; i++ {
		center := (float64(i)+0.5)/scale + shift - 0.5
		pos := int(math.Floor(center + 0.5))
		if pos < 0 {
			pos = 0
		}
		if pos > srcDim-1 {
			pos = srcDim - 1
		}
		ctx.Left[i] = pos
		ctx.Data[i*ctx.Stride] = 1.0
		ctx.DataI16[i*ctx.StrideI16] = coefScale
	}
	return ctx, nil
}

// mirrorIndex reflects x into [0, n) across the image edges.
func mirrorIndex(x, n int) int {
	for x < 0 || x >= n {
		if x < 0 {
			x = -x - 1
		}
		if x >= n {
			x = 2*n - x - 1
		}
	}
	return x
}

// quantizeRow converts one normalised coefficient row to Q1.14, rounding
// half to even, then adjusts the largest-magnitude tap so the row sums to
// exactly 1<<14.
func quantizeRow(row []float64, out []int16) {
	sum := int64(0)
	largest := 0
	for k, c := range row {
		q := pixel.RoundHalfToEven(c * coefScale)
		out[k] = int16(q)
		sum += q
		if math.Abs(row[k]) > math.Abs(row[largest]) {
			largest = k
		}
	}
	out[largest] += int16(coefScale - sum)
}
