// Package resize implements separable polyphase resampling: parametric
// filter functions, precomputed per-output-row coefficient contexts, and
// the horizontal and vertical line kernels over 16-bit integer and 32-bit
// float samples.
package resize

import "math"

// FilterFunc is a parametric reconstruction filter with compact support.
// Eval is sampled at tap offsets during coefficient generation and never
// called afterwards.
type FilterFunc interface {
	// Support returns the half-width of the filter's support in source
	// samples at unity scale.
	Support() float64
	// Eval evaluates the filter at x. The sampled window spans
	// 2*ceil(Support()) taps, so |x| can exceed Support().
	Eval(x float64) float64
}

// Point is nearest-neighbour sampling.
type Point struct{}

func (Point) Support() float64 { return 0.5 }

func (Point) Eval(x float64) float64 { return 1.0 }

// Bilinear is the triangle filter.
type Bilinear struct{}

func (Bilinear) Support() float64 { return 1.0 }

func (Bilinear) Eval(x float64) float64 {
	return math.Max(1.0-math.Abs(x), 0.0)
}

// Bicubic is the two-parameter cubic of Mitchell and Netravali.
// B = 0, C = 0.5 gives Catmull-Rom, the conventional default.
type Bicubic struct {
	B, C float64
}

// NewBicubic returns a Catmull-Rom bicubic filter.
func NewBicubic() Bicubic { return Bicubic{B: 0.0, C: 0.5} }

func (Bicubic) Support() float64 { return 2.0 }

func (f Bicubic) Eval(x float64) float64 {
	x = math.Abs(x)
	b, c := f.B, f.C
	if x < 1.0 {
		return ((12-9*b-6*c)*x*x*x + (-18+12*b+6*c)*x*x + (6 - 2*b)) / 6.0
	} else if x < 2.0 {
		return ((-b-6*c)*x*x*x + (6*b+30*c)*x*x + (-12*b-48*c)*x + (8*b + 24*c)) / 6.0
	}
	return 0.0
}

// Spline16 is the 4-tap interpolating spline.
type Spline16 struct{}

func (Spline16) Support() float64 { return 2.0 }

func (Spline16) Eval(x float64) float64 {
	x = math.Abs(x)
	if x < 1.0 {
		return ((x-9.0/5.0)*x-1.0/5.0)*x + 1.0
	} else if x < 2.0 {
		x -= 1.0
		return ((-1.0/3.0*x+4.0/5.0)*x - 7.0/15.0) * x
	}
	return 0.0
}

// Spline36 is the 6-tap interpolating spline.
type Spline36 struct{}

func (Spline36) Support() float64 { return 3.0 }

func (Spline36) Eval(x float64) float64 {
	x = math.Abs(x)
	if x < 1.0 {
		return ((13.0/11.0*x-453.0/209.0)*x-3.0/209.0)*x + 1.0
	} else if x < 2.0 {
		x -= 1.0
		return ((-6.0/11.0*x+270.0/209.0)*x - 156.0/209.0) * x
	} else if x < 3.0 {
		x -= 2.0
		return ((1.0/11.0*x-45.0/209.0)*x + 26.0/209.0) * x
	}
	return 0.0
}

// Lanczos is the sinc-windowed sinc filter with the given tap count.
type Lanczos struct {
	Taps int
}

// NewLanczos returns a 4-tap Lanczos filter.
func NewLanczos() Lanczos { return Lanczos{Taps: 4} }

func (f Lanczos) Support() float64 {
	if f.Taps <= 0 {
		return 4.0
	}
	return float64(f.Taps)
}

func (f Lanczos) Eval(x float64) float64 {
	s := f.Support()
	x = math.Abs(x)
	if x >= s {
		return 0.0
	}
	return sinc(x) * sinc(x/s)
}

func sinc(x float64) float64 {
	if x == 0.0 {
		return 1.0
	}
	x *= math.Pi
	return math.Sin(x) / x
}
