package zscale

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// frame allocates full-size planar storage for a format.
type frame struct {
	format ImageFormat
	planes [MaxPlanes][]byte
	stride [MaxPlanes]int
}

func newFrame(f ImageFormat) *frame {
	fr := &frame{format: f}
	for p := 0; p < f.PlaneCount(); p++ {
		fr.stride[p] = f.PlaneWidth(p) * f.PixelType.Size()
		fr.planes[p] = make([]byte, fr.stride[p]*f.PlaneHeight(p))
	}
	return fr
}

func (fr *frame) buffer() *Buffer {
	b := &Buffer{}
	for p := 0; p < fr.format.PlaneCount(); p++ {
		b.Data[p] = fr.planes[p]
		b.Stride[p] = fr.stride[p]
		b.Mask[p] = BufferMax
	}
	return b
}

func (fr *frame) fill(plane int, value byte) {
	for i := range fr.planes[plane] {
		fr.planes[plane][i] = value
	}
}

func (fr *frame) fillU16(plane int, value uint16) {
	for i := 0; i+1 < len(fr.planes[plane]); i += 2 {
		fr.planes[plane][i] = byte(value)
		fr.planes[plane][i+1] = byte(value >> 8)
	}
}

func (fr *frame) u16At(plane, x, y int) uint16 {
	off := y*fr.stride[plane] + 2*x
	return uint16(fr.planes[plane][off]) | uint16(fr.planes[plane][off+1])<<8
}

func yuv420(w, h int) ImageFormat {
	return ImageFormat{
		Width: w, Height: h,
		PixelType: PixelU8, Depth: 8,
		SubsampleW: 1, SubsampleH: 1,
		ColorFamily: ColorYUV,
		Matrix:      MatrixBT709,
		Transfer:    TransferBT709,
		Primaries:   PrimariesBT709,
		Range:       RangeLimited,
	}
}

func process(t *testing.T, g *Graph, src, dst *frame) {
	t.Helper()
	if err := g.Process(src.buffer(), dst.buffer(), g.AllocTmp(), nil, nil); err != nil {
		t.Fatal(err)
	}
}

// TestIdentityGraph verifies a graph built with identical endpoint
// formats is the identity on every plane.
func TestIdentityGraph(t *testing.T) {
	f := yuv420(64, 48)
	g, err := BuildFilterGraph(f, f, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(f, g.SrcFormat()); diff != "" {
		t.Errorf("source format mismatch (-want +got):\n%s", diff)
	}

	src := newFrame(f)
	for p := 0; p < 3; p++ {
		for i := range src.planes[p] {
			src.planes[p][i] = byte(i*7 + p)
		}
	}
	dst := newFrame(f)
	process(t, g, src, dst)

	for p := 0; p < 3; p++ {
		if diff := cmp.Diff(src.planes[p], dst.planes[p]); diff != "" {
			t.Fatalf("plane %d not identical (-src +dst):\n%s", p, diff)
		}
	}
}

// TestDepthPromoteExact verifies 8 to 16-bit limited promotion is the
// exact left shift on every plane.
func TestDepthPromoteExact(t *testing.T) {
	src8 := yuv420(32, 32)
	dst16 := src8
	dst16.PixelType = PixelU16
	dst16.Depth = 16

	g, err := BuildFilterGraph(src8, dst16, nil)
	if err != nil {
		t.Fatal(err)
	}
	src := newFrame(src8)
	src.fill(0, 73)
	src.fill(1, 130)
	src.fill(2, 21)
	dst := newFrame(dst16)
	process(t, g, src, dst)

	for p := 0; p < 3; p++ {
		want := uint16(src.planes[p][0]) << 8
		if got := dst.u16At(p, 0, 0); got != want {
			t.Fatalf("plane %d: got %#x, want %#x", p, got, want)
		}
	}
}

// TestMidGrayToBT709 verifies full-range mid-gray RGB converts to the
// limited-range BT.709 code points: Y = 126, U = V = 128.
func TestMidGrayToBT709(t *testing.T) {
	src := ImageFormat{
		Width: 64, Height: 48,
		PixelType: PixelU8, Depth: 8,
		ColorFamily: ColorRGB,
		Matrix:      MatrixRGB,
		Transfer:    TransferBT709,
		Primaries:   PrimariesBT709,
		Range:       RangeFull,
	}
	dst := ImageFormat{
		Width: 64, Height: 48,
		PixelType: PixelU8, Depth: 8,
		ColorFamily: ColorYUV,
		Matrix:      MatrixBT709,
		Transfer:    TransferBT709,
		Primaries:   PrimariesBT709,
		Range:       RangeLimited,
	}
	g, err := BuildFilterGraph(src, dst, nil)
	if err != nil {
		t.Fatal(err)
	}

	in := newFrame(src)
	for p := 0; p < 3; p++ {
		in.fill(p, 128)
	}
	out := newFrame(dst)
	process(t, g, in, out)

	y := out.planes[0][0]
	if y != 126 {
		t.Errorf("Y = %d, want 126", y)
	}
	for p := 1; p <= 2; p++ {
		c := int(out.planes[p][0])
		if c < 127 || c > 129 {
			t.Errorf("plane %d = %d, want 128 +/- 1", p, c)
		}
	}
	// The field must be flat.
	for p := 0; p < 3; p++ {
		for i := range out.planes[p] {
			if out.planes[p][i] != out.planes[p][0] {
				t.Fatalf("plane %d not flat at %d", p, i)
			}
		}
	}
}

// TestLimitedRangeRGB verifies studio-range RGB endpoints keep their
// declared excursion: limited mid-gray code 126 maps to Y 126, not the
// full-range rescaling.
func TestLimitedRangeRGB(t *testing.T) {
	src := ImageFormat{
		Width: 32, Height: 32,
		PixelType: PixelU8, Depth: 8,
		ColorFamily: ColorRGB,
		Matrix:      MatrixRGB,
		Transfer:    TransferBT709,
		Primaries:   PrimariesBT709,
		Range:       RangeLimited,
	}
	dst := src
	dst.ColorFamily = ColorYUV
	dst.Matrix = MatrixBT709

	g, err := BuildFilterGraph(src, dst, nil)
	if err != nil {
		t.Fatal(err)
	}
	in := newFrame(src)
	for p := 0; p < 3; p++ {
		in.fill(p, 126)
	}
	out := newFrame(dst)
	process(t, g, in, out)

	if y := out.planes[0][0]; y != 126 {
		t.Errorf("Y = %d, want 126", y)
	}
	for p := 1; p <= 2; p++ {
		if c := int(out.planes[p][0]); c < 127 || c > 129 {
			t.Errorf("plane %d = %d, want 128 +/- 1", p, c)
		}
	}
}

// TestLanczos3DownscaleDC verifies the 1920x1080 to 1280x720 lanczos-3
// downscale preserves a flat field exactly to within one code value.
func TestLanczos3DownscaleDC(t *testing.T) {
	src := yuv420(1920, 1080)
	dst := yuv420(1280, 720)
	params := DefaultGraphBuilderParams()
	params.Filter = FilterLanczos
	params.FilterUV = FilterLanczos

	g, err := BuildFilterGraph(src, dst, &params)
	if err != nil {
		t.Fatal(err)
	}
	in := newFrame(src)
	in.fill(0, 140)
	in.fill(1, 90)
	in.fill(2, 200)
	out := newFrame(dst)
	process(t, g, in, out)

	for p := 0; p < 3; p++ {
		want := int(in.planes[p][0])
		for i := range out.planes[p] {
			if d := int(out.planes[p][i]) - want; d < -1 || d > 1 {
				t.Fatalf("plane %d byte %d: %d, want %d +/- 1", p, i, out.planes[p][i], want)
			}
		}
	}
}

// TestInterlacedFieldsDC verifies per-field processing preserves each
// field's DC through the chroma phase shifts.
func TestInterlacedFieldsDC(t *testing.T) {
	for _, parity := range []FieldParity{FieldTop, FieldBottom} {
		src := yuv420(128, 64) // one field: half the frame height
		src.FieldParity = parity
		dst := yuv420(96, 48)
		dst.FieldParity = parity

		g, err := BuildFilterGraph(src, dst, nil)
		if err != nil {
			t.Fatalf("parity %v: %v", parity, err)
		}
		in := newFrame(src)
		in.fill(0, 100)
		in.fill(1, 60)
		in.fill(2, 180)
		out := newFrame(dst)
		process(t, g, in, out)

		for p := 0; p < 3; p++ {
			want := int(in.planes[p][0])
			for i := range out.planes[p] {
				if d := int(out.planes[p][i]) - want; d < -1 || d > 1 {
					t.Fatalf("parity %v plane %d: %d, want %d +/- 1", parity, p, out.planes[p][i], want)
				}
			}
		}
	}
}

// TestHDRToSDRFlat verifies the PQ BT.2020 to SDR BT.709 pipeline maps a
// flat neutral HDR field to a neutral SDR gray and stays monotone.
func TestHDRToSDRFlat(t *testing.T) {
	src := ImageFormat{
		Width: 64, Height: 64,
		PixelType: PixelU16, Depth: 10,
		SubsampleW: 1, SubsampleH: 1,
		ColorFamily: ColorYUV,
		Matrix:      MatrixBT2020NCL,
		Transfer:    TransferST2084,
		Primaries:   PrimariesBT2020,
		Range:       RangeLimited,
	}
	dst := ImageFormat{
		Width: 64, Height: 64,
		PixelType: PixelU8, Depth: 8,
		ColorFamily: ColorRGB,
		Matrix:      MatrixRGB,
		Transfer:    TransferBT709,
		Primaries:   PrimariesBT709,
		Range:       RangeFull,
	}
	params := DefaultGraphBuilderParams()
	params.DitherType = DitherOrdered

	codeToGray := func(code uint16) int {
		g, err := BuildFilterGraph(src, dst, &params)
		if err != nil {
			t.Fatal(err)
		}
		in := newFrame(src)
		in.fillU16(0, code)
		in.fillU16(1, 512)
		in.fillU16(2, 512)
		out := newFrame(dst)
		process(t, g, in, out)

		r, g8, b := int(out.planes[0][0]), int(out.planes[1][0]), int(out.planes[2][0])
		if abs(r-g8) > 2 || abs(r-b) > 2 {
			t.Fatalf("code %d: RGB (%d, %d, %d) not neutral", code, r, g8, b)
		}
		return r
	}

	lo := codeToGray(250)
	hi := codeToGray(450)
	if lo <= 0 || hi >= 255 {
		t.Errorf("codes 250/450 map to extremes: %d, %d", lo, hi)
	}
	if lo >= hi {
		t.Errorf("PQ mapping not monotone: code 250 -> %d, code 450 -> %d", lo, hi)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// TestRingBufferedProcess verifies callback-driven processing through
// minimum-size rings matches a full-frame pass.
func TestRingBufferedProcess(t *testing.T) {
	src := yuv420(64, 64)
	dst := yuv420(48, 48)
	g, err := BuildFilterGraph(src, dst, nil)
	if err != nil {
		t.Fatal(err)
	}

	in := newFrame(src)
	for p := 0; p < 3; p++ {
		for i := range in.planes[p] {
			in.planes[p][i] = byte((i*13 + p*5) % 251)
		}
	}
	want := newFrame(dst)
	process(t, g, in, want)

	// Stream the source through minimum-size rings filled on demand.
	mask := SelectBufferMask(g.InputBuffering())
	lines := int(mask) + 1
	ring := &Buffer{}
	for p := 0; p < 3; p++ {
		ring.Stride[p] = in.stride[p]
		ring.Data[p] = make([]byte, in.stride[p]*lines)
		ring.Mask[p] = mask
	}
	unpack := func(i, left, right int) error {
		for p := 0; p < 3; p++ {
			// The covering plane row for luma row i; refilling the same
			// chroma row on both field lines is harmless.
			r := i * src.PlaneHeight(p) / src.Height
			off := (r & int(mask)) * ring.Stride[p]
			copy(ring.Data[p][off:off+ring.Stride[p]],
				in.planes[p][r*in.stride[p]:(r+1)*in.stride[p]])
		}
		return nil
	}

	got := newFrame(dst)
	if err := g.Process(ring, got.buffer(), g.AllocTmp(), unpack, nil); err != nil {
		t.Fatal(err)
	}
	for p := 0; p < 3; p++ {
		for i := range want.planes[p] {
			if want.planes[p][i] != got.planes[p][i] {
				t.Fatalf("plane %d byte %d: ring %d, full %d", p, i, got.planes[p][i], want.planes[p][i])
			}
		}
	}
}

// TestBuildErrors verifies representative builder failures carry the
// right status category.
func TestBuildErrors(t *testing.T) {
	good := yuv420(64, 64)

	bad := good
	bad.Width = 0
	checkStatus(t, bad, good, StatusBadDimensions)

	bad = good
	bad.SubsampleW = 3
	checkStatus(t, bad, good, StatusBadDimensions)

	odd := good
	odd.SubsampleW, odd.SubsampleH = 0, 0
	odd.Height = 63
	odd.FieldParity = FieldTop
	checkStatus(t, odd, odd, StatusNoFieldParity)

	// A transfer change through an unspecified matrix must be refused.
	unspec := good
	unspec.Matrix = MatrixUnspecified
	unspecDst := good
	unspecDst.Matrix = MatrixUnspecified
	unspecDst.Transfer = TransferSRGB
	checkStatus(t, unspec, unspecDst, StatusNoColorspace)

	// Alpha output from an alpha-less source.
	alphaDst := good
	alphaDst.Alpha = AlphaStraight
	checkStatus(t, good, alphaDst, StatusNoAlpha)

	// A grey primaries change has no planes to run the gamut matrix on.
	grey := ImageFormat{
		Width: 64, Height: 64,
		PixelType: PixelU8, Depth: 8,
		ColorFamily: ColorGrey,
		Matrix:      MatrixRGB,
		Transfer:    TransferBT709,
		Primaries:   PrimariesBT709,
		Range:       RangeFull,
	}
	greyWide := grey
	greyWide.Primaries = PrimariesBT2020
	checkStatus(t, grey, greyWide, StatusNoColorspace)
}

func checkStatus(t *testing.T, src, dst ImageFormat, want Status) {
	t.Helper()
	_, err := BuildFilterGraph(src, dst, nil)
	if err == nil {
		t.Fatalf("conversion %v -> %v accepted, want status %d", src, dst, want)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error %v is not a *zscale.Error", err)
	}
	if e.Status != want {
		t.Errorf("status %d, want %d (%v)", e.Status, want, err)
	}
}

// TestTooSmallRingRejected verifies Process refuses a source ring below
// the graph's buffering requirement.
func TestTooSmallRingRejected(t *testing.T) {
	// A 16-bit source feeds the vertical resampler directly, so the
	// graph's input window is the filter's tap span.
	src := yuv420(64, 64)
	src.PixelType = PixelU16
	src.Depth = 16
	dst := yuv420(64, 32)
	dst.PixelType = PixelU16
	dst.Depth = 16
	g, err := BuildFilterGraph(src, dst, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g.InputBuffering() < 2 {
		t.Fatalf("vertical downscale input buffering = %d, want >= 2", g.InputBuffering())
	}

	in := newFrame(src)
	out := newFrame(dst)
	b := in.buffer()
	for p := 0; p < 3; p++ {
		b.Mask[p] = 0 // one-line ring
	}
	err = g.Process(b, out.buffer(), g.AllocTmp(), nil, nil)
	if err == nil {
		t.Fatal("one-line ring accepted")
	}
	var e *Error
	if !errors.As(err, &e) || e.Status.Category() != 100 {
		t.Errorf("got %v, want a usage error", err)
	}
}

// TestGreyLUTPath verifies the fused per-code transfer lookup for grey
// integer sources agrees with the float evaluation path.
func TestGreyLUTPath(t *testing.T) {
	src := ImageFormat{
		Width: 64, Height: 4,
		PixelType: PixelU8, Depth: 8,
		ColorFamily: ColorGrey,
		Matrix:      MatrixRGB,
		Transfer:    TransferSRGB,
		Primaries:   PrimariesBT709,
		Range:       RangeFull,
	}
	dst := src
	dst.Transfer = TransferBT470M

	exactParams := DefaultGraphBuilderParams()
	lutParams := DefaultGraphBuilderParams()
	lutParams.AllowApproximateGamma = true

	run := func(params *GraphBuilderParams) *frame {
		g, err := BuildFilterGraph(src, dst, params)
		if err != nil {
			t.Fatal(err)
		}
		in := newFrame(src)
		for i := range in.planes[0] {
			in.planes[0][i] = byte(i % 256)
		}
		out := newFrame(dst)
		process(t, g, in, out)
		return out
	}

	exact := run(&exactParams)
	lut := run(&lutParams)
	for i := range exact.planes[0] {
		if d := int(exact.planes[0][i]) - int(lut.planes[0][i]); d < -1 || d > 1 {
			t.Fatalf("byte %d: exact %d, lut %d", i, exact.planes[0][i], lut.planes[0][i])
		}
	}
}

// TestAlphaCarried verifies an alpha plane rides through a resize.
func TestAlphaCarried(t *testing.T) {
	src := yuv420(32, 32)
	src.Alpha = AlphaStraight
	dst := yuv420(16, 16)
	dst.Alpha = AlphaStraight

	g, err := BuildFilterGraph(src, dst, nil)
	if err != nil {
		t.Fatal(err)
	}
	in := newFrame(src)
	in.fill(3, 255)
	out := newFrame(dst)
	process(t, g, in, out)
	for i := range out.planes[3] {
		if out.planes[3][i] != 255 {
			t.Fatalf("alpha byte %d = %d, want 255", i, out.planes[3][i])
		}
	}
}
