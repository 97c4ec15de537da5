// Package colorspace implements colorspace conversion planning and the
// per-scanline kernels it schedules: 3x3 matrix multiplies on planar
// float data and gamma / inverse-gamma transfer functions evaluated
// exactly, by polynomial approximation, or through lookup tables.
package colorspace

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Errors returned by plan construction.
var (
	ErrUnsupported = errors.New("colorspace: unsupported conversion")
	ErrUnspecified = errors.New("colorspace: cannot convert through unspecified value")
)

// Matrix3 is a row-major 3x3 matrix over float64; kernels narrow to
// float32 after all plan-time algebra is fused.
type Matrix3 [3][3]float64

// Mul returns m * n.
func (m Matrix3) Mul(n Matrix3) Matrix3 {
	var r Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				r[i][j] += m[i][k] * n[k][j]
			}
		}
	}
	return r
}

// Inverse returns m^-1.
func (m Matrix3) Inverse() (Matrix3, error) {
	d := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d.Set(i, j, m[i][j])
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(d); err != nil {
		return Matrix3{}, fmt.Errorf("colorspace: singular matrix: %w", err)
	}
	var r Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = inv.At(i, j)
		}
	}
	return r, nil
}

func identity3() Matrix3 {
	return Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// MatrixCoefficients mirrors the H.273 matrix_coefficients code points
// the engine supports.
type MatrixCoefficients int

const (
	MatrixRGB         MatrixCoefficients = 0
	MatrixBT709       MatrixCoefficients = 1
	MatrixUnspecified MatrixCoefficients = 2
	MatrixFCC         MatrixCoefficients = 4
	MatrixBT470BG     MatrixCoefficients = 5
	MatrixST170M      MatrixCoefficients = 6
	MatrixBT2020NCL   MatrixCoefficients = 9
)

// lumaCoefficients returns the Kr/Kb weights for a matrix.
func lumaCoefficients(m MatrixCoefficients) (kr, kb float64, err error) {
	switch m {
	case MatrixBT709:
		return 0.2126, 0.0722, nil
	case MatrixFCC:
		return 0.30, 0.11, nil
	case MatrixBT470BG, MatrixST170M:
		return 0.299, 0.114, nil
	case MatrixBT2020NCL:
		return 0.2627, 0.0593, nil
	default:
		return 0, 0, fmt.Errorf("%w: matrix %d", ErrUnspecified, m)
	}
}

// rgbToYUVMatrix builds the RGB -> YUV matrix over normalised planes
// (Y on [0, 1], U and V on [-0.5, 0.5]).
func rgbToYUVMatrix(m MatrixCoefficients) (Matrix3, error) {
	kr, kb, err := lumaCoefficients(m)
	if err != nil {
		return Matrix3{}, err
	}
	kg := 1.0 - kr - kb
	uscale := 1.0 / (2.0 * (1.0 - kb))
	vscale := 1.0 / (2.0 * (1.0 - kr))
	return Matrix3{
		{kr, kg, kb},
		{-kr * uscale, -kg * uscale, (1.0 - kb) * uscale},
		{(1.0 - kr) * vscale, -kg * vscale, -kb * vscale},
	}, nil
}

// yuvToRGBMatrix is the inverse of rgbToYUVMatrix.
func yuvToRGBMatrix(m MatrixCoefficients) (Matrix3, error) {
	fwd, err := rgbToYUVMatrix(m)
	if err != nil {
		return Matrix3{}, err
	}
	return fwd.Inverse()
}

// ColorPrimaries mirrors the H.273 colour_primaries code points the
// engine supports.
type ColorPrimaries int

const (
	PrimariesBT709       ColorPrimaries = 1
	PrimariesUnspecified ColorPrimaries = 2
	PrimariesBT470M      ColorPrimaries = 4
	PrimariesBT470BG     ColorPrimaries = 5
	PrimariesST170M      ColorPrimaries = 6
	PrimariesBT2020      ColorPrimaries = 9
	PrimariesST432       ColorPrimaries = 12
)

// xy chromaticity coordinates of the red, green, blue primaries and the
// white point.
type chromaticity struct {
	rx, ry float64
	gx, gy float64
	bx, by float64
	wx, wy float64
}

func primariesChromaticity(p ColorPrimaries) (chromaticity, error) {
	// D65 white except where the standard says otherwise.
	const d65x, d65y = 0.3127, 0.3290
	switch p {
	case PrimariesBT709:
		return chromaticity{0.640, 0.330, 0.300, 0.600, 0.150, 0.060, d65x, d65y}, nil
	case PrimariesBT470M:
		return chromaticity{0.670, 0.330, 0.210, 0.710, 0.140, 0.080, 0.3101, 0.3162}, nil
	case PrimariesBT470BG:
		return chromaticity{0.640, 0.330, 0.290, 0.600, 0.150, 0.060, d65x, d65y}, nil
	case PrimariesST170M:
		return chromaticity{0.630, 0.340, 0.310, 0.595, 0.155, 0.070, d65x, d65y}, nil
	case PrimariesBT2020:
		return chromaticity{0.708, 0.292, 0.170, 0.797, 0.131, 0.046, d65x, d65y}, nil
	case PrimariesST432:
		return chromaticity{0.680, 0.320, 0.265, 0.690, 0.150, 0.060, d65x, d65y}, nil
	default:
		return chromaticity{}, fmt.Errorf("%w: primaries %d", ErrUnspecified, p)
	}
}

// rgbToXYZMatrix derives the RGB -> CIE XYZ matrix by the standard
// construction: each primary's XYZ basis vector is scaled so the white
// point maps to its XYZ coordinates at unity luminance. The per-primary
// scales solve a 3x3 linear system against the white point.
func rgbToXYZMatrix(p ColorPrimaries) (Matrix3, error) {
	c, err := primariesChromaticity(p)
	if err != nil {
		return Matrix3{}, err
	}

	xyz := func(x, y float64) (float64, float64, float64) {
		return x / y, 1.0, (1.0 - x - y) / y
	}
	rX, rY, rZ := xyz(c.rx, c.ry)
	gX, gY, gZ := xyz(c.gx, c.gy)
	bX, bY, bZ := xyz(c.bx, c.by)
	wX, wY, wZ := xyz(c.wx, c.wy)

	basis := mat.NewDense(3, 3, []float64{
		rX, gX, bX,
		rY, gY, bY,
		rZ, gZ, bZ,
	})
	white := mat.NewVecDense(3, []float64{wX, wY, wZ})

	var s mat.VecDense
	if err := s.SolveVec(basis, white); err != nil {
		return Matrix3{}, fmt.Errorf("colorspace: degenerate primaries: %w", err)
	}

	return Matrix3{
		{s.AtVec(0) * rX, s.AtVec(1) * gX, s.AtVec(2) * bX},
		{s.AtVec(0) * rY, s.AtVec(1) * gY, s.AtVec(2) * bY},
		{s.AtVec(0) * rZ, s.AtVec(1) * gZ, s.AtVec(2) * bZ},
	}, nil
}

// gamutMatrix returns the linear-light RGB -> RGB matrix converting
// between two sets of primaries.
func gamutMatrix(in, out ColorPrimaries) (Matrix3, error) {
	toXYZ, err := rgbToXYZMatrix(in)
	if err != nil {
		return Matrix3{}, err
	}
	outXYZ, err := rgbToXYZMatrix(out)
	if err != nil {
		return Matrix3{}, err
	}
	fromXYZ, err := outXYZ.Inverse()
	if err != nil {
		return Matrix3{}, err
	}
	return fromXYZ.Mul(toXYZ), nil
}
