package depth

import (
	"github.com/deepteams/zscale/internal/graphengine"
	"github.com/deepteams/zscale/internal/pixel"
)

// errorDiffusion implements Floyd-Steinberg quantisation. The scan is
// strictly left-to-right, top-to-bottom; each pixel's error propagates
// 7/16 right, 3/16 below-left, 5/16 below, 1/16 below-right. The filter
// is position dependent and runs over the entire plane in one call, with
// two error rows rotating through the scratchpad.
type errorDiffusion struct {
	desc   graphengine.FilterDescriptor
	in     pixel.Type
	out    pixel.Type
	scale  float32
	offset float32
	maxVal int32
}

func newErrorDiffusion(width, height int, in, out pixel.Format) (graphengine.Filter, error) {
	s, o := transform(in, out)
	f := &errorDiffusion{
		in:     in.Type,
		out:    out.Type,
		scale:  float32(s),
		offset: float32(o),
		maxVal: int32(1)<<uint(out.Depth) - 1,
	}
	f.desc = graphengine.FilterDescriptor{
		Format:    graphengine.PlaneDescriptor{Width: width, Height: height, BytesPerSample: out.Type.Size()},
		DepFormat: graphengine.PlaneDescriptor{Width: width, Height: height, BytesPerSample: in.Type.Size()},
		NumDeps:   1,
		NumPlanes: 1,
		Step:      height,
		// Two error rows with one guard column each side, plus the
		// load row.
		ScratchpadSize: pixel.AlignSize((width+2)*4)*2 + pixel.AlignSize(width*4),
		Flags:          graphengine.Flags{EntireRow: true, EntirePlane: true},
	}
	return f, nil
}

func (f *errorDiffusion) Descriptor() *graphengine.FilterDescriptor { return &f.desc }

func (f *errorDiffusion) RowDeps(int) (int, int) { return 0, f.desc.DepFormat.Height }

func (f *errorDiffusion) ColDeps(int, int) (int, int) { return 0, f.desc.DepFormat.Width }

func (f *errorDiffusion) Process(in, out []graphengine.LineBuffer, _, _, _ int, scratch []byte) {
	width := f.desc.Format.Width
	height := f.desc.Format.Height

	span := pixel.AlignSize((width + 2) * 4)
	errCur := pixel.BytesAsF32(scratch[:span])[: width+2 : width+2]
	errNext := pixel.BytesAsF32(scratch[span : 2*span])[: width+2 : width+2]
	row := pixel.BytesAsF32(scratch[2*span:])[:width:width]

	for i := range errCur {
		errCur[i] = 0
		errNext[i] = 0
	}

	for i := 0; i < height; i++ {
		loadRowF32(&in[0], f.in, i, 0, width, row)
		f.diffuseRow(row, errCur, errNext, &out[0], i)
		errCur, errNext = errNext, errCur
		for j := range errNext {
			errNext[j] = 0
		}
	}
}

func (f *errorDiffusion) diffuseRow(row, errCur, errNext []float32, out *graphengine.LineBuffer, i int) {
	width := len(row)
	var dst8 []byte
	var dst16 []uint16
	if f.out == pixel.U8 {
		dst8 = out.Line(i)
	} else {
		dst16 = out.U16Line(i)
	}

	for j := 0; j < width; j++ {
		x := f.scale*row[j] + f.offset + errCur[j+1]
		q := clampI32(roundF32(x), f.maxVal)
		e := x - float32(q)

		errCur[j+2] += e * (7.0 / 16.0)
		errNext[j] += e * (3.0 / 16.0)
		errNext[j+1] += e * (5.0 / 16.0)
		errNext[j+2] += e * (1.0 / 16.0)

		if dst8 != nil {
			dst8[j] = byte(q)
		} else {
			dst16[j] = uint16(q)
		}
	}
}
