package zscale

import (
	"github.com/deepteams/zscale/internal/colorspace"
	"github.com/deepteams/zscale/internal/cpu"
	"github.com/deepteams/zscale/internal/depth"
	"github.com/deepteams/zscale/internal/graphengine"
	"github.com/deepteams/zscale/internal/pixel"
	"github.com/deepteams/zscale/internal/resize"
)

// GraphBuilderParams tune graph construction. Only a zero
// NominalPeakLuminance is replaced by a default; the zero Filter, FilterUV
// and CPU select point resampling and scalar kernels, not the choices of
// DefaultGraphBuilderParams, which returns the complete defaults.
type GraphBuilderParams struct {
	// NominalPeakLuminance maps absolute HDR transfers (PQ, HLG) onto
	// the SDR reference-white axis. Zero selects 100 cd/m^2.
	NominalPeakLuminance float64
	// AllowApproximateGamma permits polynomial and LUT transfer curves
	// in place of libm evaluation.
	AllowApproximateGamma bool
	// SceneReferred selects camera-side transfer curves.
	SceneReferred bool

	Filter   ResampleFilter // luma resampler
	FilterUV ResampleFilter // chroma resampler

	DitherType DitherType
	CPU        CPUClass
}

// DefaultGraphBuilderParams returns the default builder configuration:
// bicubic luma, bilinear chroma, no dithering, automatic CPU selection.
func DefaultGraphBuilderParams() GraphBuilderParams {
	return GraphBuilderParams{
		NominalPeakLuminance: 100,
		Filter:               FilterBicubic,
		FilterUV:             FilterBilinear,
		DitherType:           DitherNone,
		CPU:                  CPUAuto,
	}
}

// builder accumulates the transform chain of every plane.
type builder struct {
	g      *graphengine.Graph
	src    ImageFormat
	dst    ImageFormat
	params GraphBuilderParams
	class  cpu.Class

	states []planeState

	// greyLUT routes a grey integer source's transfer conversion through
	// a single per-code lookup instead of to-float plus curve evaluation.
	greyLUT     bool
	greyLUTDone bool
}

// planeState tracks one plane's position in the graph along with its
// current geometry and numeric format.
type planeState struct {
	ref    graphengine.PlaneRef
	width  int
	height int
	format pixel.Format
	// chroma marks planes that scale with subsampling.
	chroma bool
	// alpha marks the transparency plane, which skips colorspace ops.
	alpha bool
	// fromSource is true until the first transform is applied.
	fromSource bool
}

func toPixelType(t PixelType) pixel.Type {
	switch t {
	case PixelU8:
		return pixel.U8
	case PixelU16:
		return pixel.U16
	case PixelF16:
		return pixel.F16
	default:
		return pixel.F32
	}
}

func toCPUClass(c CPUClass) cpu.Class {
	switch c {
	case CPUNone:
		return cpu.ClassNone
	case CPUAuto64B:
		return cpu.ClassV512
	default:
		return cpu.ClassNative
	}
}

func toDitherType(d DitherType) depth.DitherType {
	switch d {
	case DitherOrdered:
		return depth.DitherOrdered
	case DitherErrorDiffusion:
		return depth.DitherErrorDiffusion
	default:
		return depth.DitherNone
	}
}

func resampleFunc(f ResampleFilter) resize.FilterFunc {
	switch f {
	case FilterPoint:
		return resize.Point{}
	case FilterBilinear:
		return resize.Bilinear{}
	case FilterSpline16:
		return resize.Spline16{}
	case FilterSpline36:
		return resize.Spline36{}
	case FilterLanczos:
		return resize.NewLanczos()
	default:
		return resize.NewBicubic()
	}
}

func validateFormat(f *ImageFormat) error {
	if f.Width <= 0 || f.Height <= 0 {
		return statusError(StatusBadDimensions, "image dimensions %dx%d", f.Width, f.Height)
	}
	if f.PixelType < PixelU8 || f.PixelType > PixelF32 {
		return statusError(StatusBadEnum, "pixel type %d", f.PixelType)
	}
	if f.SubsampleW < 0 || f.SubsampleW > 2 || f.SubsampleH < 0 || f.SubsampleH > 2 {
		return statusError(StatusBadDimensions, "subsampling %dx%d", f.SubsampleW, f.SubsampleH)
	}
	if f.ColorFamily != ColorYUV && (f.SubsampleW != 0 || f.SubsampleH != 0) {
		return statusError(StatusBadDimensions, "subsampling requires YUV")
	}
	if f.ColorFamily == ColorYUV && (f.Width&(1<<uint(f.SubsampleW)-1) != 0 || f.Height&(1<<uint(f.SubsampleH)-1) != 0) {
		return statusError(StatusBadDimensions, "image %dx%d not a multiple of the subsampling", f.Width, f.Height)
	}
	if f.FieldParity != FieldProgressive && f.Height%2 != 0 {
		return statusError(StatusNoFieldParity, "field height %d not a multiple of 2", f.Height)
	}
	d := f.EffectiveDepth()
	if !f.PixelType.IsFloat() && (d < 1 || d > f.PixelType.DefaultDepth()) {
		return statusError(StatusBadDimensions, "depth %d does not fit %v", d, f.PixelType)
	}
	return nil
}

// BuildFilterGraph plans the conversion from src to dst and returns the
// runnable graph.
func BuildFilterGraph(src, dst ImageFormat, params *GraphBuilderParams) (*Graph, error) {
	p := DefaultGraphBuilderParams()
	if params != nil {
		p = *params
		if p.NominalPeakLuminance == 0 {
			p.NominalPeakLuminance = 100
		}
	}
	if err := validateFormat(&src); err != nil {
		return nil, err
	}
	if err := validateFormat(&dst); err != nil {
		return nil, err
	}
	if err := validateEndpoints(&src, &dst); err != nil {
		return nil, err
	}

	b := &builder{
		g:      graphengine.New(),
		src:    src,
		dst:    dst,
		params: p,
		class:  toCPUClass(p.CPU),
	}
	if err := b.build(); err != nil {
		return nil, err
	}
	return &Graph{g: b.g, src: src, dst: dst}, nil
}

func validateEndpoints(src, dst *ImageFormat) error {
	famOK := src.ColorFamily == dst.ColorFamily ||
		(src.ColorFamily == ColorYUV && dst.ColorFamily == ColorRGB) ||
		(src.ColorFamily == ColorRGB && dst.ColorFamily == ColorYUV)
	if !famOK {
		return statusError(StatusUnsupported, "no conversion from %d to %d color family", src.ColorFamily, dst.ColorFamily)
	}
	if dst.Alpha != AlphaNone && src.Alpha == AlphaNone {
		return statusError(StatusNoAlpha, "target requires an alpha plane the source lacks")
	}
	if src.FieldParity != dst.FieldParity {
		return statusError(StatusUnsupported, "field parity must match between endpoints")
	}
	return nil
}

func (b *builder) build() error {
	src, dst := &b.src, &b.dst

	// Source node.
	n := src.PlaneCount()
	descs := make([]graphengine.PlaneDescriptor, n)
	b.states = make([]planeState, n)
	for i := 0; i < n; i++ {
		chroma := src.ColorFamily == ColorYUV && (i == 1 || i == 2)
		alpha := src.Alpha != AlphaNone && i == n-1
		descs[i] = graphengine.PlaneDescriptor{
			Width:          src.PlaneWidth(i),
			Height:         src.PlaneHeight(i),
			BytesPerSample: src.PixelType.Size(),
		}
		b.states[i] = planeState{
			width:  descs[i].Width,
			height: descs[i].Height,
			format: pixel.Format{
				Type:        toPixelType(src.PixelType),
				Depth:       src.EffectiveDepth(),
				FullRange:   src.Range == RangeFull || alpha,
				ChromaPlane: chroma && !alpha,
			},
			chroma:     chroma && !alpha,
			alpha:      alpha,
			fromSource: true,
		}
	}
	srcID, err := b.g.AddSource(descs)
	if err != nil {
		return wrapStatus(StatusInternal, err, "adding source")
	}
	for i := range b.states {
		b.states[i].ref = graphengine.PlaneRef{Node: srcID, Plane: i}
	}

	needCS := b.needColorspace()
	b.greyLUT = needCS &&
		src.ColorFamily == ColorGrey && dst.ColorFamily == ColorGrey &&
		src.Primaries == dst.Primaries &&
		!src.PixelType.IsFloat() && src.EffectiveDepth() <= colorspace.MaxLUTDepth &&
		b.params.AllowApproximateGamma &&
		src.Transfer != TransferUnspecified && dst.Transfer != TransferUnspecified

	// 1. Normalise the working format: float32 when colorspace math is
	// coming, u16 or f32 containers for the resamplers otherwise.
	if err := b.normalizeTypes(needCS); err != nil {
		return err
	}

	// 2-4. Resample every plane onto the working grid. With a colorspace
	// conversion pending, chroma goes to the full-resolution target grid
	// so the matrix sees co-sited planes.
	if err := b.resizePlanes(needCS); err != nil {
		return err
	}

	// 5. Colorspace conversion on co-sited planes.
	if needCS {
		if err := b.convertColorspace(); err != nil {
			return err
		}
	}

	// 6. Resample chroma back down to the target subsampling.
	if needCS {
		if err := b.restoreSubsampling(); err != nil {
			return err
		}
	}

	// 7. Convert to the target pixel format, dithering into narrow
	// integers.
	if err := b.convertToTarget(); err != nil {
		return err
	}

	// Terminate every chain with a transform node the sink can own: a
	// chain still reading the source, or one ending at a node that also
	// feeds other transforms, gets a copy filter.
	sink := make([]graphengine.PlaneRef, len(b.states))
	for i := range b.states {
		s := &b.states[i]
		if s.fromSource || b.g.NodeHasConsumers(s.ref.Node) {
			f := graphengine.NewCopyFilter(s.width, s.height, s.format.Type.Size())
			if err := b.apply(i, f); err != nil {
				return err
			}
		}
		sink[i] = b.states[i].ref
	}
	if err := b.g.AddSink(sink); err != nil {
		return wrapStatus(StatusInternal, err, "adding sink")
	}
	return nil
}

// needColorspace reports whether the endpoint colorspace triples differ.
func (b *builder) needColorspace() bool {
	if b.src.ColorFamily != b.dst.ColorFamily {
		return true
	}
	return b.csDefinition(&b.src) != b.csDefinition(&b.dst)
}

func (b *builder) csDefinition(f *ImageFormat) colorspace.Definition {
	m := colorspace.MatrixCoefficients(f.Matrix)
	if f.ColorFamily != ColorYUV {
		m = colorspace.MatrixRGB
	}
	return colorspace.Definition{
		Matrix:    m,
		Transfer:  colorspace.TransferCharacteristics(f.Transfer),
		Primaries: colorspace.ColorPrimaries(f.Primaries),
	}
}

// apply appends a single-input filter to plane i's chain.
func (b *builder) apply(i int, f graphengine.Filter) error {
	id, err := b.g.AddTransform(f, []graphengine.PlaneRef{b.states[i].ref})
	if err != nil {
		return wrapStatus(StatusInternal, err, "adding transform")
	}
	s := &b.states[i]
	s.ref = graphengine.PlaneRef{Node: id, Plane: 0}
	d := f.Descriptor()
	s.width = d.Format.Width
	s.height = d.Format.Height
	s.fromSource = false
	return nil
}

// convert changes plane i's numeric format in place.
func (b *builder) convert(i int, out pixel.Format) error {
	s := &b.states[i]
	f, err := depth.Convert(s.width, s.height, s.format, out, toDitherType(b.params.DitherType), b.class)
	if err != nil {
		return wrapStatus(StatusUnsupported, err, "depth conversion")
	}
	if f == nil {
		return nil
	}
	if err := b.apply(i, f); err != nil {
		return err
	}
	s.format = out
	return nil
}

// normalizeTypes moves every plane into the working format for the
// pipeline: float32 ahead of colorspace math, and u16/f32 containers for
// the resamplers.
func (b *builder) normalizeTypes(needCS bool) error {
	resizeNeeded := b.resizeNeeded()
	for i := range b.states {
		s := &b.states[i]
		work := s.format
		switch {
		case b.greyLUT && i == 0:
			if err := b.applyGreyLUT(); err != nil {
				return err
			}
			continue
		case needCS && !s.alpha:
			work = pixel.Format{Type: pixel.F32, Depth: 32, FullRange: true, ChromaPlane: s.chroma}
		case !resizeNeeded:
			continue
		case s.format.Type == pixel.U8:
			work = s.format
			work.Type = pixel.U16
		case s.format.Type == pixel.F16:
			work = s.format
			work.Type = pixel.F32
			work.Depth = 32
		}
		if err := b.convert(i, work); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) resizeNeeded() bool {
	src, dst := &b.src, &b.dst
	return src.Width != dst.Width || src.Height != dst.Height ||
		src.SubsampleW != dst.SubsampleW || src.SubsampleH != dst.SubsampleH ||
		src.ActiveLeft != 0 || src.ActiveTop != 0 ||
		(src.ActiveWidth != 0 && src.ActiveWidth != float64(src.Width)) ||
		(src.ActiveHeight != 0 && src.ActiveHeight != float64(src.Height)) ||
		src.ChromaLocation != dst.ChromaLocation ||
		src.FieldParity != FieldProgressive
}

// resizePlanes brings each plane to its post-resize geometry: the target
// luma grid for color planes when a colorspace conversion follows,
// otherwise the plane's final geometry.
func (b *builder) resizePlanes(needCS bool) error {
	dst := &b.dst
	for i := range b.states {
		s := &b.states[i]
		outW, outH := dst.PlaneWidth(i), dst.PlaneHeight(i)
		sOut := float64(int(1) << uint(dst.SubsampleW))
		sOutV := float64(int(1) << uint(dst.SubsampleH))
		oOut, oOutV := sitingOffsets(dst, sOut, sOutV)
		if (needCS && !s.alpha) || !s.chroma {
			// Color planes meet on the luma grid ahead of the matrix;
			// luma and alpha live there already.
			outW, outH = dst.Width, dst.Height
			sOut, sOutV, oOut, oOutV = 1, 1, 0, 0
		}
		if err := b.resizePlane(i, outW, outH, sOut, sOutV, oOut, oOutV); err != nil {
			return err
		}
	}
	return nil
}

// resizePlane emits the horizontal and vertical resamplers carrying
// plane i from its current grid to the given output grid.
func (b *builder) resizePlane(i, outW, outH int, sOut, sOutV, oOut, oOutV float64) error {
	src := &b.src
	s := &b.states[i]

	sIn, sInV := 1.0, 1.0
	oIn, oInV := 0.0, 0.0
	if s.chroma {
		sIn = float64(int(1) << uint(src.SubsampleW))
		sInV = float64(int(1) << uint(src.SubsampleH))
		oIn, oInV = sitingOffsets(src, sIn, sInV)
	}

	aLeft, aTop := src.ActiveLeft, src.ActiveTop
	aWidth, aHeight := src.activeWidth(), src.activeHeight()

	shiftW, activeW := resamplePlacement(sIn, sOut, oIn, oOut, aLeft, aWidth, float64(outW)*sOut)
	shiftH, activeH := resamplePlacement(sInV, sOutV, oInV, oOutV, aTop, aHeight, float64(outH)*sOutV)

	filt := resampleFunc(b.params.Filter)
	if s.chroma {
		filt = resampleFunc(b.params.FilterUV)
	}

	if s.width != outW || shiftW != 0 || activeW != float64(s.width) {
		ctx, err := resize.ComputeFilter(filt, s.width, outW, shiftW, activeW)
		if err != nil {
			return wrapStatus(StatusFilterTooLarge, err, "horizontal filter")
		}
		var f graphengine.Filter
		if s.format.Type == pixel.F32 {
			f = resize.NewHorizontalF32(ctx, s.height, b.class)
		} else {
			f = resize.NewHorizontalU16(ctx, s.height, s.format.Depth, b.class)
		}
		if err := b.apply(i, f); err != nil {
			return err
		}
	}
	if s.height != outH || shiftH != 0 || activeH != float64(s.height) {
		ctx, err := resize.ComputeFilter(filt, s.height, outH, shiftH, activeH)
		if err != nil {
			return wrapStatus(StatusFilterTooLarge, err, "vertical filter")
		}
		var f graphengine.Filter
		if s.format.Type == pixel.F32 {
			f = resize.NewVerticalF32(ctx, s.width, b.class)
		} else {
			f = resize.NewVerticalU16(ctx, s.width, s.format.Depth, b.class)
		}
		if err := b.apply(i, f); err != nil {
			return err
		}
	}
	return nil
}

// applyGreyLUT fuses the grey plane's normalisation with its whole
// transfer conversion into one per-code lookup emitting float samples in
// the target transfer.
func (b *builder) applyGreyLUT() error {
	src, dst := &b.src, &b.dst
	p := colorspace.Params{
		PeakLuminance: b.params.NominalPeakLuminance,
		SceneReferred: b.params.SceneReferred,
	}
	toLinear, err := resolveCurveOrIdentity(colorspace.TransferCharacteristics(src.Transfer), p, true)
	if err != nil {
		return wrapStatus(StatusNoColorspace, err, "source transfer")
	}
	toGamma, err := resolveCurveOrIdentity(colorspace.TransferCharacteristics(dst.Transfer), p, false)
	if err != nil {
		return wrapStatus(StatusNoColorspace, err, "target transfer")
	}

	s := &b.states[0]
	fn := func(x float32) float32 { return toGamma(toLinear(x)) }
	f := colorspace.NewIntegerGamma(s.width, s.height, s.format, fn, 1)
	if err := b.apply(0, f); err != nil {
		return err
	}
	s.format = pixel.Format{Type: pixel.F32, Depth: 32, FullRange: true}
	b.greyLUTDone = true
	return nil
}

// resolveCurveOrIdentity returns the linear-light leg of a transfer
// (toLinear true) or the encode leg, folding in the HDR axis scales;
// linear transfers resolve to the identity.
func resolveCurveOrIdentity(t colorspace.TransferCharacteristics, p colorspace.Params, toLinear bool) (func(float32) float32, error) {
	if t == colorspace.TransferLinear {
		return func(x float32) float32 { return x }, nil
	}
	tf, err := colorspace.ResolveTransfer(t, p.PeakLuminance, p.SceneReferred)
	if err != nil {
		return nil, err
	}
	if toLinear {
		return func(x float32) float32 { return tf.ToLinear(x) * tf.ToLinearScale }, nil
	}
	return func(x float32) float32 { return tf.ToGamma(tf.ToGammaScale * x) }, nil
}

// convertColorspace applies the fused matrix/gamma/primaries conversion
// across the three color planes.
func (b *builder) convertColorspace() error {
	if b.greyLUTDone {
		return nil
	}
	in := b.csDefinition(&b.src)
	out := b.csDefinition(&b.dst)
	planes := 3
	if b.src.ColorFamily == ColorGrey {
		planes = 1
	}

	f, err := colorspace.NewFilter(b.dst.Width, b.dst.Height, planes, in, out, colorspace.Params{
		PeakLuminance:    b.params.NominalPeakLuminance,
		ApproximateGamma: b.params.AllowApproximateGamma,
		SceneReferred:    b.params.SceneReferred,
	})
	if err != nil {
		return wrapStatus(StatusNoColorspace, err, "colorspace plan")
	}
	if f == nil {
		return nil
	}

	deps := make([]graphengine.PlaneRef, planes)
	for p := 0; p < planes; p++ {
		deps[p] = b.states[p].ref
	}
	id, err := b.g.AddTransform(f, deps)
	if err != nil {
		return wrapStatus(StatusInternal, err, "adding colorspace transform")
	}
	outChroma := b.dst.ColorFamily == ColorYUV
	for p := 0; p < planes; p++ {
		s := &b.states[p]
		s.ref = graphengine.PlaneRef{Node: id, Plane: p}
		s.chroma = outChroma && p > 0
		s.format.ChromaPlane = s.chroma
		s.fromSource = false
	}
	return nil
}

// restoreSubsampling takes the full-resolution chroma planes back to the
// target's subsampled grid.
func (b *builder) restoreSubsampling() error {
	dst := &b.dst
	if dst.ColorFamily != ColorYUV || (dst.SubsampleW == 0 && dst.SubsampleH == 0) {
		return nil
	}
	filt := resampleFunc(b.params.FilterUV)
	sOut := float64(int(1) << uint(dst.SubsampleW))
	sOutV := float64(int(1) << uint(dst.SubsampleH))
	oOut, oOutV := sitingOffsets(dst, sOut, sOutV)

	for i := 1; i <= 2; i++ {
		s := &b.states[i]
		outW, outH := dst.PlaneWidth(i), dst.PlaneHeight(i)
		shiftW, activeW := resamplePlacement(1, sOut, 0, oOut, 0, float64(s.width), float64(outW)*sOut)
		shiftH, activeH := resamplePlacement(1, sOutV, 0, oOutV, 0, float64(s.height), float64(outH)*sOutV)

		if s.width != outW || shiftW != 0 {
			ctx, err := resize.ComputeFilter(filt, s.width, outW, shiftW, activeW)
			if err != nil {
				return wrapStatus(StatusFilterTooLarge, err, "chroma horizontal filter")
			}
			if err := b.apply(i, resize.NewHorizontalF32(ctx, s.height, b.class)); err != nil {
				return err
			}
		}
		if s.height != outH || shiftH != 0 {
			ctx, err := resize.ComputeFilter(filt, s.height, outH, shiftH, activeH)
			if err != nil {
				return wrapStatus(StatusFilterTooLarge, err, "chroma vertical filter")
			}
			if err := b.apply(i, resize.NewVerticalF32(ctx, s.width, b.class)); err != nil {
				return err
			}
		}
	}
	return nil
}

// convertToTarget converts every plane to the destination pixel format.
func (b *builder) convertToTarget() error {
	dst := &b.dst
	for i := range b.states {
		s := &b.states[i]
		out := pixel.Format{
			Type:        toPixelType(dst.PixelType),
			Depth:       dst.EffectiveDepth(),
			FullRange:   dst.Range == RangeFull,
			ChromaPlane: s.chroma,
		}
		if s.alpha {
			out.ChromaPlane = false
			out.FullRange = true
		}
		if err := b.convert(i, out); err != nil {
			return err
		}
	}
	return nil
}

// sitingOffsets returns the position of chroma sample 0's center in luma
// samples for each axis, including the field-parity phase of interlaced
// chroma.
func sitingOffsets(f *ImageFormat, sW, sH float64) (oW, oH float64) {
	switch f.ChromaLocation {
	case ChromaLeft, ChromaTopLeft, ChromaBottomLeft:
		oW = 0
	default:
		oW = (sW - 1) / 2
	}
	switch f.ChromaLocation {
	case ChromaTopLeft, ChromaTop:
		oH = 0
	case ChromaBottomLeft, ChromaBottom:
		oH = sH - 1
	default:
		oH = (sH - 1) / 2
	}
	if f.SubsampleH > 0 {
		switch f.FieldParity {
		case FieldTop:
			oH -= 0.25 * sH
		case FieldBottom:
			oH += 0.25 * sH
		}
	}
	return oW, oH
}

// resamplePlacement computes the coefficient-generation shift and active
// span carrying samples from a grid with subsample factor sIn and siting
// offset oIn onto one with sOut and oOut, through the luma active region
// [aStart, aStart+aSpan). outLumaDim is the target grid's span in luma
// samples.
func resamplePlacement(sIn, sOut, oIn, oOut, aStart, aSpan, outLumaDim float64) (shift, activeDim float64) {
	activeDim = aSpan / sIn
	shift = (oOut+0.5-0.5*sOut)*aSpan/(sIn*outLumaDim) +
		(aStart-oIn)/sIn - 0.5/sIn + 0.5
	return shift, activeDim
}
