package colorspace

import (
	"github.com/deepteams/zscale/internal/graphengine"
)

// operation is one step of a colorspace conversion applied in place to a
// set of float rows.
type operation interface {
	applyRow(rows [][]float32, left, right int)
}

// matrixOp multiplies each column vector by a 3x3 matrix. The nine
// entries are kept in scalar fields so the inner loop stays in registers.
type matrixOp struct {
	m00, m01, m02 float32
	m10, m11, m12 float32
	m20, m21, m22 float32
}

func newMatrixOp(m Matrix3) *matrixOp {
	return &matrixOp{
		float32(m[0][0]), float32(m[0][1]), float32(m[0][2]),
		float32(m[1][0]), float32(m[1][1]), float32(m[1][2]),
		float32(m[2][0]), float32(m[2][1]), float32(m[2][2]),
	}
}

func (o *matrixOp) applyRow(rows [][]float32, left, right int) {
	a, b, c := rows[0], rows[1], rows[2]
	for j := left; j < right; j++ {
		x, y, z := a[j], b[j], c[j]
		a[j] = o.m00*x + o.m01*y + o.m02*z
		b[j] = o.m10*x + o.m11*y + o.m12*z
		c[j] = o.m20*x + o.m21*y + o.m22*z
	}
}

// gammaOp applies a transfer curve to every plane. preScale multiplies
// the input ahead of the curve, postScale the result; identity scales
// are skipped in the loop.
type gammaOp struct {
	fn        func(float32) float32
	preScale  float32
	postScale float32
}

func (o *gammaOp) applyRow(rows [][]float32, left, right int) {
	for _, row := range rows {
		if o.preScale == 1 && o.postScale == 1 {
			for j := left; j < right; j++ {
				row[j] = o.fn(row[j])
			}
			continue
		}
		for j := left; j < right; j++ {
			row[j] = o.postScale * o.fn(o.preScale*row[j])
		}
	}
}

// Filter applies a fused operation list to one or three float planes.
type Filter struct {
	desc   graphengine.FilterDescriptor
	ops    []operation
	planes int
	rows   [][]float32
}

func newOperationFilter(width, height, planes int, ops []operation) *Filter {
	f := &Filter{ops: ops, planes: planes, rows: make([][]float32, planes)}
	f.desc = graphengine.PointDescriptor(width, height, 4, planes, planes)
	return f
}

func (f *Filter) Descriptor() *graphengine.FilterDescriptor { return &f.desc }

func (f *Filter) RowDeps(i int) (int, int) { return i, i + 1 }

func (f *Filter) ColDeps(left, right int) (int, int) { return left, right }

func (f *Filter) Process(in, out []graphengine.LineBuffer, i, left, right int, _ []byte) {
	rows := f.rows
	for p := 0; p < f.planes; p++ {
		src := in[p].F32Line(i)
		dst := out[p].F32Line(i)
		if &src[0] != &dst[0] {
			copy(dst[left:right], src[left:right])
		}
		rows[p] = dst
	}
	for _, op := range f.ops {
		op.applyRow(rows, left, right)
	}
}
