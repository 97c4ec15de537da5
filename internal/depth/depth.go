// Package depth implements bit-depth and numeric-format conversion:
// integer left shift, integer/float scaling, half-precision conversion,
// ordered dithering, and Floyd-Steinberg error diffusion.
package depth

import (
	"errors"
	"fmt"

	"github.com/deepteams/zscale/internal/cpu"
	"github.com/deepteams/zscale/internal/graphengine"
	"github.com/deepteams/zscale/internal/pixel"
)

// DitherType selects the quantisation strategy for conversions into a
// narrower integer format.
type DitherType int

const (
	DitherNone DitherType = iota
	DitherOrdered
	DitherErrorDiffusion
)

// ErrUnsupported is returned for conversions the kernel family cannot
// express.
var ErrUnsupported = errors.New("depth: unsupported conversion")

// Convert returns a filter converting samples between the two formats.
// Returns nil when the conversion is a no-op.
func Convert(width, height int, in, out pixel.Format, dither DitherType, class cpu.Class) (graphengine.Filter, error) {
	if in.Equals(out) {
		return nil, nil
	}
	// Float samples are already normalised; range and chroma flags carry
	// no numeric meaning for them.
	if in.Type == out.Type && in.Type.IsFloat() {
		return nil, nil
	}
	class = cpu.Resolve(class)

	switch {
	case !in.Type.IsFloat() && !out.Type.IsFloat():
		// Integer to integer. MSB-aligned promotion is an exact left
		// shift for limited-range samples and for equal depths;
		// everything else is a scale through float with dithering.
		shift := out.Depth - in.Depth
		sameInterp := in.FullRange == out.FullRange && in.ChromaPlane == out.ChromaPlane
		if shift >= 0 && sameInterp && (shift == 0 || !in.FullRange) {
			return newLeftShift(width, height, in, out, shift), nil
		}
		return newDither(width, height, in, out, dither, class)

	case out.Type == pixel.F32 || out.Type == pixel.F16:
		switch in.Type {
		case pixel.U8, pixel.U16:
			return newToFloat(width, height, in, out), nil
		case pixel.F16:
			if out.Type == pixel.F32 {
				return newHalfToFloat(width, height), nil
			}
		case pixel.F32:
			if out.Type == pixel.F16 {
				return newFloatToHalf(width, height), nil
			}
		}
		return nil, fmt.Errorf("%w: %v to %v", ErrUnsupported, in.Type, out.Type)

	default:
		// Float to integer.
		return newDither(width, height, in, out, dither, class)
	}
}

// scaleOffset returns the linear map taking format f's code values to
// normalised float: y = scale*x + offset, with luma on [0, 1] and chroma
// on [-0.5, 0.5].
func scaleOffset(f pixel.Format) (scale, offset float64) {
	if f.Type.IsFloat() {
		return 1, 0
	}
	d := uint(f.Depth)
	if f.FullRange {
		scale = 1 / float64(int64(1)<<d-1)
		if f.ChromaPlane {
			offset = -float64(int64(1)<<(d-1)) * scale
		}
		return scale, offset
	}
	if f.ChromaPlane {
		scale = 1 / float64(uint(224)<<(d-8))
		offset = -float64(uint(128)<<(d-8)) * scale
		return scale, offset
	}
	scale = 1 / float64(uint(219)<<(d-8))
	offset = -float64(uint(16)<<(d-8)) * scale
	return scale, offset
}

// transform composes the normalisation of in with the denormalisation of
// out: y = scale*x + offset maps in codes directly to out codes.
func transform(in, out pixel.Format) (scale, offset float64) {
	sIn, oIn := scaleOffset(in)
	sOut, oOut := scaleOffset(out)
	// x_norm = sIn*x + oIn; y = (x_norm - oOut) / sOut.
	scale = sIn / sOut
	offset = (oIn - oOut) / sOut
	return scale, offset
}
