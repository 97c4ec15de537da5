package colorspace

import (
	"fmt"

	"github.com/deepteams/zscale/internal/graphengine"
)

// Definition is a colorspace triple.
type Definition struct {
	Matrix    MatrixCoefficients
	Transfer  TransferCharacteristics
	Primaries ColorPrimaries
}

// Params tune plan synthesis.
type Params struct {
	// PeakLuminance rescales absolute HDR transfers onto the SDR axis;
	// zero selects DefaultPeakLuminance.
	PeakLuminance float64
	// ApproximateGamma substitutes polynomial or LUT curves for libm.
	ApproximateGamma bool
	// SceneReferred selects camera-side curves over display EOTFs.
	SceneReferred bool
}

// NewFilter plans the conversion from in to out over the given plane
// count and returns the fused filter, or nil when the conversion is the
// identity. Plane geometry is width x height float32.
func NewFilter(width, height, planes int, in, out Definition, p Params) (graphengine.Filter, error) {
	ops, err := plan(in, out, planes, p)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}
	return newOperationFilter(width, height, planes, fuse(ops)), nil
}

// plan emits the shortest primitive sequence converting in to out:
// through RGB when matrices differ, through linear light when the
// transfer or the primaries differ.
func plan(in, out Definition, planes int, p Params) ([]operation, error) {
	if in == out {
		return nil, nil
	}

	needLinear := in.Transfer != out.Transfer || in.Primaries != out.Primaries
	needMatrix := in.Matrix != out.Matrix
	if planes != 3 {
		if needMatrix || in.Matrix != MatrixRGB {
			return nil, fmt.Errorf("%w: matrix conversion requires three planes", ErrUnsupported)
		}
		if in.Primaries != out.Primaries {
			return nil, fmt.Errorf("%w: primaries conversion requires three planes", ErrUnsupported)
		}
	}
	if (needLinear || needMatrix) && (in.Matrix == MatrixUnspecified || out.Matrix == MatrixUnspecified) {
		return nil, fmt.Errorf("%w: matrix", ErrUnspecified)
	}

	var ops []operation
	cur := in

	// Step out of YUV first: gamma and gamut act on RGB planes.
	if cur.Matrix != MatrixRGB && (needMatrix || needLinear) {
		m, err := yuvToRGBMatrix(cur.Matrix)
		if err != nil {
			return nil, err
		}
		ops = append(ops, newMatrixOp(m))
		cur.Matrix = MatrixRGB
	}

	if needLinear {
		if cur.Transfer == TransferUnspecified || out.Transfer == TransferUnspecified {
			return nil, fmt.Errorf("%w: transfer", ErrUnspecified)
		}
		if cur.Transfer != TransferLinear {
			tf, err := resolveCurves(cur.Transfer, p)
			if err != nil {
				return nil, err
			}
			ops = append(ops, &gammaOp{fn: tf.ToLinear, preScale: 1, postScale: tf.ToLinearScale})
			cur.Transfer = TransferLinear
		}
		if cur.Primaries != out.Primaries {
			if cur.Primaries == PrimariesUnspecified || out.Primaries == PrimariesUnspecified {
				return nil, fmt.Errorf("%w: primaries", ErrUnspecified)
			}
			m, err := gamutMatrix(cur.Primaries, out.Primaries)
			if err != nil {
				return nil, err
			}
			ops = append(ops, newMatrixOp(m))
			cur.Primaries = out.Primaries
		}
		if out.Transfer != TransferLinear {
			tf, err := resolveCurves(out.Transfer, p)
			if err != nil {
				return nil, err
			}
			ops = append(ops, &gammaOp{fn: tf.ToGamma, preScale: tf.ToGammaScale, postScale: 1})
			cur.Transfer = out.Transfer
		}
	}

	if out.Matrix != MatrixRGB {
		m, err := rgbToYUVMatrix(out.Matrix)
		if err != nil {
			return nil, err
		}
		ops = append(ops, newMatrixOp(m))
		cur.Matrix = out.Matrix
	}

	if cur != out {
		return nil, fmt.Errorf("%w: %+v to %+v", ErrUnsupported, in, out)
	}
	return ops, nil
}

func resolveCurves(t TransferCharacteristics, p Params) (*TransferFunction, error) {
	tf, err := ResolveTransfer(t, p.PeakLuminance, p.SceneReferred)
	if err != nil {
		return nil, err
	}
	if p.ApproximateGamma {
		tf = approximateCurves(t, p.SceneReferred, tf)
	}
	return tf, nil
}

// fuse multiplies adjacent matrix operations offline.
func fuse(ops []operation) []operation {
	fused := ops[:0:0]
	for _, op := range ops {
		m, ok := op.(*matrixOp)
		if !ok {
			fused = append(fused, op)
			continue
		}
		if len(fused) > 0 {
			if prev, ok := fused[len(fused)-1].(*matrixOp); ok {
				fused[len(fused)-1] = mulOps(m, prev)
				continue
			}
		}
		fused = append(fused, m)
	}
	return fused
}

// mulOps returns the matrix applying b then a.
func mulOps(a, b *matrixOp) *matrixOp {
	toM := func(o *matrixOp) Matrix3 {
		return Matrix3{
			{float64(o.m00), float64(o.m01), float64(o.m02)},
			{float64(o.m10), float64(o.m11), float64(o.m12)},
			{float64(o.m20), float64(o.m21), float64(o.m22)},
		}
	}
	return newMatrixOp(toM(a).Mul(toM(b)))
}
