// Command zscale converts and scales raw video frames and BMP images.
//
// Usage:
//
//	zscale convert [options] <inspec> <outspec>   convert/scale one frame
//	zscale info [options] <inspec> <outspec>      print graph properties
//
// A path specifier is format:path, e.g. bmp:in.bmp, i420:frame.yuv,
// yuy2:frame.yuy2. Raw formats need -in-w/-in-h (and -in-depth for
// 10/16-bit planar).
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/image/bmp"

	"github.com/deepteams/zscale"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "convert":
		err = runConvert(os.Args[2:], false)
	case "info":
		err = runConvert(os.Args[2:], true)
	case "-h", "-help", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "zscale: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "zscale: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage:
  zscale convert [options] <inspec> <outspec>
  zscale info    [options] <inspec> <outspec>

Path specifiers: bmp:path | yuy2:path | i420:path | i444:path | grey:path

Options:
  -w, -h             output width/height (default: input size)
  -in-w, -in-h       input size (raw formats)
  -in-depth          input bit depth for planar formats (default 8)
  -out-depth         output bit depth for planar formats (default 8)
  -filter            point|bilinear|bicubic|spline16|spline36|lanczos
  -filter-uv         chroma filter (default bilinear)
  -dither            none|ordered|error-diffusion
  -in-matrix etc.    colorspace triples (709|601|2020|rgb, ...)
  -peak-nits         nominal peak luminance for PQ/HLG
  -approx-gamma      allow polynomial/LUT transfer curves
  -fields            process as two interlaced fields
  -tile              horizontal tile width (0 = no tiling)
`)
}

type options struct {
	outW, outH   int
	inW, inH     int
	inDepth      int
	outDepth     int
	filter       string
	filterUV     string
	dither       string
	inMatrix     string
	outMatrix    string
	inTransfer   string
	outTransfer  string
	inPrimaries  string
	outPrimaries string
	inRange      string
	outRange     string
	peakNits     float64
	approxGamma  bool
	fields       bool
	tile         int
}

func parseFlags(args []string) (*options, []string, error) {
	fs := flag.NewFlagSet("zscale", flag.ContinueOnError)
	o := &options{}
	fs.IntVar(&o.outW, "w", 0, "output width")
	fs.IntVar(&o.outH, "h", 0, "output height")
	fs.IntVar(&o.inW, "in-w", 0, "input width (raw)")
	fs.IntVar(&o.inH, "in-h", 0, "input height (raw)")
	fs.IntVar(&o.inDepth, "in-depth", 8, "input depth (planar)")
	fs.IntVar(&o.outDepth, "out-depth", 8, "output depth (planar)")
	fs.StringVar(&o.filter, "filter", "bicubic", "luma filter")
	fs.StringVar(&o.filterUV, "filter-uv", "bilinear", "chroma filter")
	fs.StringVar(&o.dither, "dither", "none", "dither type")
	fs.StringVar(&o.inMatrix, "in-matrix", "", "input matrix")
	fs.StringVar(&o.outMatrix, "out-matrix", "", "output matrix")
	fs.StringVar(&o.inTransfer, "in-transfer", "", "input transfer")
	fs.StringVar(&o.outTransfer, "out-transfer", "", "output transfer")
	fs.StringVar(&o.inPrimaries, "in-primaries", "", "input primaries")
	fs.StringVar(&o.outPrimaries, "out-primaries", "", "output primaries")
	fs.StringVar(&o.inRange, "in-range", "", "input range (limited|full)")
	fs.StringVar(&o.outRange, "out-range", "", "output range")
	fs.Float64Var(&o.peakNits, "peak-nits", 100, "nominal peak luminance")
	fs.BoolVar(&o.approxGamma, "approx-gamma", false, "approximate gamma")
	fs.BoolVar(&o.fields, "fields", false, "interlaced two-pass")
	fs.IntVar(&o.tile, "tile", 0, "tile width")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return o, fs.Args(), nil
}

func runConvert(args []string, infoOnly bool) error {
	o, rest, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(rest) != 2 {
		return errors.New("convert needs an input and an output path specifier")
	}

	in, err := loadImage(rest[0], o)
	if err != nil {
		return errors.Wrap(err, "loading input")
	}

	outFmt, outSpec, err := targetFormat(rest[1], o, in)
	if err != nil {
		return err
	}

	params := zscale.DefaultGraphBuilderParams()
	params.Filter = parseFilter(o.filter)
	params.FilterUV = parseFilter(o.filterUV)
	params.DitherType = parseDither(o.dither)
	params.NominalPeakLuminance = o.peakNits
	params.AllowApproximateGamma = o.approxGamma

	if o.fields {
		return convertFields(in, outFmt, outSpec, &params, o, infoOnly)
	}

	g, err := zscale.BuildFilterGraph(in.format, outFmt, &params)
	if err != nil {
		return errors.Wrap(err, "building graph")
	}
	if infoOnly {
		fmt.Printf("input buffering:  %d lines\n", g.InputBuffering())
		fmt.Printf("output buffering: %d lines\n", g.OutputBuffering())
		fmt.Printf("tmp size:         %d bytes\n", g.TmpSize())
		return nil
	}

	out := newPlanarImage(outFmt)
	tmp := g.AllocTmp()

	start := time.Now()
	if o.tile > 0 {
		err = g.ProcessTiled(o.tile, in.buffer(), out.buffer(), tmp, nil, nil)
	} else {
		err = g.Process(in.buffer(), out.buffer(), tmp, nil, nil)
	}
	if err != nil {
		return errors.Wrap(err, "processing")
	}
	fmt.Fprintf(os.Stderr, "processed %dx%d -> %dx%d in %v\n",
		in.format.Width, in.format.Height, outFmt.Width, outFmt.Height, time.Since(start))

	return errors.Wrap(saveImage(outSpec, out), "writing output")
}

// convertFields runs the graph twice, once per field, writing into the
// interleaved output through doubled strides.
func convertFields(in *planarImage, outFmt zscale.ImageFormat, outSpec pathSpec, params *zscale.GraphBuilderParams, o *options, infoOnly bool) error {
	if in.format.Height%2 != 0 || outFmt.Height%2 != 0 {
		return errors.New("interlaced processing needs even heights")
	}
	out := newPlanarImage(outFmt)

	for pass, parity := range []zscale.FieldParity{zscale.FieldTop, zscale.FieldBottom} {
		srcFmt := in.format
		srcFmt.Height /= 2
		srcFmt.FieldParity = parity
		dstFmt := outFmt
		dstFmt.Height /= 2
		dstFmt.FieldParity = parity

		g, err := zscale.BuildFilterGraph(srcFmt, dstFmt, params)
		if err != nil {
			return errors.Wrapf(err, "building %v field graph", parity)
		}
		if infoOnly {
			fmt.Printf("field %d input buffering: %d lines\n", pass, g.InputBuffering())
			continue
		}
		tmp := g.AllocTmp()
		if err := g.Process(in.fieldBuffer(pass), out.fieldBuffer(pass), tmp, nil, nil); err != nil {
			return errors.Wrapf(err, "processing field %d", pass)
		}
	}
	if infoOnly {
		return nil
	}
	return errors.Wrap(saveImage(outSpec, out), "writing output")
}

// pathSpec is a parsed format:path argument.
type pathSpec struct {
	format string
	path   string
}

func parsePathSpec(s string) (pathSpec, error) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return pathSpec{}, errors.Errorf("bad path spec %q: want format:path", s)
	}
	return pathSpec{format: strings.ToLower(s[:idx]), path: s[idx+1:]}, nil
}

// planarImage is a frame held in full-size planar buffers.
type planarImage struct {
	format zscale.ImageFormat
	planes [zscale.MaxPlanes][]byte
	stride [zscale.MaxPlanes]int
}

func newPlanarImage(f zscale.ImageFormat) *planarImage {
	img := &planarImage{format: f}
	for p := 0; p < f.PlaneCount(); p++ {
		img.stride[p] = f.PlaneWidth(p) * f.PixelType.Size()
		img.planes[p] = make([]byte, img.stride[p]*f.PlaneHeight(p))
	}
	return img
}

func (img *planarImage) buffer() *zscale.Buffer {
	b := &zscale.Buffer{}
	for p := 0; p < img.format.PlaneCount(); p++ {
		b.Data[p] = img.planes[p]
		b.Stride[p] = img.stride[p]
		b.Mask[p] = zscale.BufferMax
	}
	return b
}

// fieldBuffer views one field of the frame by doubling strides.
func (img *planarImage) fieldBuffer(field int) *zscale.Buffer {
	b := &zscale.Buffer{}
	for p := 0; p < img.format.PlaneCount(); p++ {
		b.Data[p] = img.planes[p][field*img.stride[p]:]
		b.Stride[p] = 2 * img.stride[p]
		b.Mask[p] = zscale.BufferMax
	}
	return b
}

func parseFilter(s string) zscale.ResampleFilter {
	switch strings.ToLower(s) {
	case "point":
		return zscale.FilterPoint
	case "bilinear":
		return zscale.FilterBilinear
	case "spline16":
		return zscale.FilterSpline16
	case "spline36":
		return zscale.FilterSpline36
	case "lanczos":
		return zscale.FilterLanczos
	default:
		return zscale.FilterBicubic
	}
}

func parseDither(s string) zscale.DitherType {
	switch strings.ToLower(s) {
	case "ordered":
		return zscale.DitherOrdered
	case "error-diffusion", "error_diffusion":
		return zscale.DitherErrorDiffusion
	default:
		return zscale.DitherNone
	}
}

func parseMatrix(s string, def zscale.MatrixCoefficients) zscale.MatrixCoefficients {
	switch strings.ToLower(s) {
	case "rgb":
		return zscale.MatrixRGB
	case "709":
		return zscale.MatrixBT709
	case "601", "170m":
		return zscale.MatrixST170M
	case "470bg":
		return zscale.MatrixBT470BG
	case "2020", "2020ncl":
		return zscale.MatrixBT2020NCL
	case "":
		return def
	default:
		return zscale.MatrixUnspecified
	}
}

func parseTransfer(s string, def zscale.TransferCharacteristics) zscale.TransferCharacteristics {
	switch strings.ToLower(s) {
	case "709":
		return zscale.TransferBT709
	case "601":
		return zscale.TransferBT601
	case "470m":
		return zscale.TransferBT470M
	case "linear":
		return zscale.TransferLinear
	case "srgb":
		return zscale.TransferSRGB
	case "st2084", "pq":
		return zscale.TransferST2084
	case "hlg", "b67":
		return zscale.TransferAribB67
	case "":
		return def
	default:
		return zscale.TransferUnspecified
	}
}

func parsePrimaries(s string, def zscale.ColorPrimaries) zscale.ColorPrimaries {
	switch strings.ToLower(s) {
	case "709":
		return zscale.PrimariesBT709
	case "601", "170m":
		return zscale.PrimariesST170M
	case "470bg":
		return zscale.PrimariesBT470BG
	case "2020":
		return zscale.PrimariesBT2020
	case "p3", "432":
		return zscale.PrimariesST432
	case "":
		return def
	default:
		return zscale.PrimariesUnspecified
	}
}

func parseRange(s string, def zscale.ColorRange) zscale.ColorRange {
	switch strings.ToLower(s) {
	case "full", "pc":
		return zscale.RangeFull
	case "limited", "tv":
		return zscale.RangeLimited
	case "":
		return def
	}
	return def
}

// loadImage reads the input into planar buffers.
func loadImage(spec string, o *options) (*planarImage, error) {
	ps, err := parsePathSpec(spec)
	if err != nil {
		return nil, err
	}
	switch ps.format {
	case "bmp":
		return loadBMP(ps.path, o)
	case "i420", "i444", "grey", "yuy2":
		return loadRaw(ps, o)
	default:
		return nil, errors.Errorf("unknown input format %q", ps.format)
	}
}

func loadBMP(path string, o *options) (*planarImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, err := bmp.Decode(f)
	if err != nil {
		return nil, errors.Wrap(err, "decoding bmp")
	}

	bounds := src.Bounds()
	format := zscale.ImageFormat{
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		PixelType:   zscale.PixelU8,
		Depth:       8,
		ColorFamily: zscale.ColorRGB,
		Matrix:      zscale.MatrixRGB,
		Transfer:    parseTransfer(o.inTransfer, zscale.TransferSRGB),
		Primaries:   parsePrimaries(o.inPrimaries, zscale.PrimariesBT709),
		Range:       zscale.RangeFull,
	}
	img := newPlanarImage(format)
	for y := 0; y < format.Height; y++ {
		for x := 0; x < format.Width; x++ {
			r, g, b, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			img.planes[0][y*img.stride[0]+x] = byte(r >> 8)
			img.planes[1][y*img.stride[1]+x] = byte(g >> 8)
			img.planes[2][y*img.stride[2]+x] = byte(b >> 8)
		}
	}
	return img, nil
}

func rawFormat(ps pathSpec, o *options, w, h, depthBits int) (zscale.ImageFormat, error) {
	f := zscale.ImageFormat{
		Width:  w,
		Height: h,
		Depth:  depthBits,
	}
	if depthBits > 8 {
		f.PixelType = zscale.PixelU16
	} else {
		f.PixelType = zscale.PixelU8
	}
	switch ps.format {
	case "i420":
		f.ColorFamily = zscale.ColorYUV
		f.SubsampleW, f.SubsampleH = 1, 1
	case "yuy2":
		f.ColorFamily = zscale.ColorYUV
		f.SubsampleW, f.SubsampleH = 1, 0
	case "i444":
		f.ColorFamily = zscale.ColorYUV
	case "grey":
		f.ColorFamily = zscale.ColorGrey
	default:
		return f, errors.Errorf("unknown raw format %q", ps.format)
	}
	if f.ColorFamily == zscale.ColorYUV || f.ColorFamily == zscale.ColorGrey {
		f.Matrix = parseMatrix(o.inMatrix, zscale.MatrixBT709)
		if f.ColorFamily == zscale.ColorGrey {
			f.Matrix = zscale.MatrixRGB
		}
		f.Transfer = parseTransfer(o.inTransfer, zscale.TransferBT709)
		f.Primaries = parsePrimaries(o.inPrimaries, zscale.PrimariesBT709)
		f.Range = parseRange(o.inRange, zscale.RangeLimited)
	}
	return f, nil
}

func loadRaw(ps pathSpec, o *options) (*planarImage, error) {
	if o.inW <= 0 || o.inH <= 0 {
		return nil, errors.New("raw input needs -in-w and -in-h")
	}
	f, err := rawFormat(ps, o, o.inW, o.inH, o.inDepth)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(ps.path)
	if err != nil {
		return nil, err
	}
	img := newPlanarImage(f)
	if ps.format == "yuy2" {
		return img, unpackYUY2(img, data)
	}
	off := 0
	for p := 0; p < f.PlaneCount(); p++ {
		n := len(img.planes[p])
		if off+n > len(data) {
			return nil, errors.Errorf("short raw file: need %d bytes", off+n)
		}
		copy(img.planes[p], data[off:off+n])
		off += n
	}
	return img, nil
}

// unpackYUY2 deinterleaves Y0 U Y1 V into 4:2:2 planes.
func unpackYUY2(img *planarImage, data []byte) error {
	f := &img.format
	rowBytes := f.Width * 2
	if len(data) < rowBytes*f.Height {
		return errors.New("short yuy2 file")
	}
	for y := 0; y < f.Height; y++ {
		row := data[y*rowBytes:]
		for x := 0; x < f.Width/2; x++ {
			img.planes[0][y*img.stride[0]+2*x] = row[4*x]
			img.planes[1][y*img.stride[1]+x] = row[4*x+1]
			img.planes[0][y*img.stride[0]+2*x+1] = row[4*x+2]
			img.planes[2][y*img.stride[2]+x] = row[4*x+3]
		}
	}
	return nil
}

// packYUY2 interleaves 4:2:2 planes into Y0 U Y1 V.
func packYUY2(img *planarImage) []byte {
	f := &img.format
	out := make([]byte, f.Width*2*f.Height)
	for y := 0; y < f.Height; y++ {
		row := out[y*f.Width*2:]
		for x := 0; x < f.Width/2; x++ {
			row[4*x] = img.planes[0][y*img.stride[0]+2*x]
			row[4*x+1] = img.planes[1][y*img.stride[1]+x]
			row[4*x+2] = img.planes[0][y*img.stride[0]+2*x+1]
			row[4*x+3] = img.planes[2][y*img.stride[2]+x]
		}
	}
	return out
}

func targetFormat(spec string, o *options, in *planarImage) (zscale.ImageFormat, pathSpec, error) {
	ps, err := parsePathSpec(spec)
	if err != nil {
		return zscale.ImageFormat{}, ps, err
	}
	w, h := o.outW, o.outH
	if w == 0 {
		w = in.format.Width
	}
	if h == 0 {
		h = in.format.Height
	}

	var f zscale.ImageFormat
	switch ps.format {
	case "bmp":
		f = zscale.ImageFormat{
			Width: w, Height: h,
			PixelType: zscale.PixelU8, Depth: 8,
			ColorFamily: zscale.ColorRGB,
			Matrix:      zscale.MatrixRGB,
			Transfer:    parseTransfer(o.outTransfer, zscale.TransferSRGB),
			Primaries:   parsePrimaries(o.outPrimaries, zscale.PrimariesBT709),
			Range:       zscale.RangeFull,
		}
	default:
		f, err = rawFormat(ps, &options{
			inMatrix:    o.outMatrix,
			inTransfer:  o.outTransfer,
			inPrimaries: o.outPrimaries,
			inRange:     o.outRange,
		}, w, h, o.outDepth)
		if err != nil {
			return f, ps, err
		}
	}
	return f, ps, nil
}

func saveImage(ps pathSpec, img *planarImage) error {
	switch ps.format {
	case "bmp":
		return saveBMP(ps.path, img)
	case "yuy2":
		return os.WriteFile(ps.path, packYUY2(img), 0o644)
	default:
		var out []byte
		for p := 0; p < img.format.PlaneCount(); p++ {
			out = append(out, img.planes[p]...)
		}
		return os.WriteFile(ps.path, out, 0o644)
	}
}

func saveBMP(path string, img *planarImage) error {
	f := &img.format
	rgba := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			rgba.SetRGBA(x, y, color.RGBA{
				R: img.planes[0][y*img.stride[0]+x],
				G: img.planes[1][y*img.stride[1]+x],
				B: img.planes[2][y*img.stride[2]+x],
				A: 0xff,
			})
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return bmp.Encode(out, rgba)
}
