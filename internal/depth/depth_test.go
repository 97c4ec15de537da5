package depth

import (
	"math"
	"testing"

	"github.com/deepteams/zscale/internal/cpu"
	"github.com/deepteams/zscale/internal/graphengine"
	"github.com/deepteams/zscale/internal/pixel"
)

func planeU8(width, height int) graphengine.LineBuffer {
	stride := pixel.AlignSize(width)
	return graphengine.LineBuffer{Data: pixel.AllocAligned(stride * height), Stride: stride, Mask: graphengine.BufferMax}
}

func planeU16(width, height int) graphengine.LineBuffer {
	stride := pixel.AlignSize(width * 2)
	return graphengine.LineBuffer{Data: pixel.AllocAligned(stride * height), Stride: stride, Mask: graphengine.BufferMax}
}

func planeF32(width, height int) graphengine.LineBuffer {
	stride := pixel.AlignSize(width * 4)
	return graphengine.LineBuffer{Data: pixel.AllocAligned(stride * height), Stride: stride, Mask: graphengine.BufferMax}
}

func runPointwise(t *testing.T, f graphengine.Filter, in, out graphengine.LineBuffer, width, height int) {
	t.Helper()
	scratch := pixel.AllocAligned(f.Descriptor().ScratchpadSize)
	step := f.Descriptor().Step
	if f.Descriptor().Flags.EntirePlane {
		step = height
	}
	for i := 0; i < height; i += step {
		f.Process([]graphengine.LineBuffer{in}, []graphengine.LineBuffer{out}, i, 0, width, scratch)
	}
}

// TestLeftShiftExact verifies integer promotion is an exact shift,
// including the word-to-word shift-0 identity.
func TestLeftShiftExact(t *testing.T) {
	const w, h = 64, 2

	// u8 depth 8 -> u16 depth 8: container change only.
	in8 := pixel.Format{Type: pixel.U8, Depth: 8, FullRange: false}
	out16 := pixel.Format{Type: pixel.U16, Depth: 8, FullRange: false}
	f, err := Convert(w, h, in8, out16, DitherNone, cpu.ClassNone)
	if err != nil {
		t.Fatal(err)
	}
	src := planeU8(w, h)
	for i := 0; i < h; i++ {
		row := src.Line(i)
		for j := 0; j < w; j++ {
			row[j] = byte(j * 4)
		}
	}
	dst := planeU16(w, h)
	runPointwise(t, f, src, dst, w, h)
	for i := 0; i < h; i++ {
		a, b := src.Line(i), dst.U16Line(i)
		for j := 0; j < w; j++ {
			if uint16(a[j]) != b[j] {
				t.Fatalf("row %d col %d: got %d, want %d", i, j, b[j], a[j])
			}
		}
	}

	// u16 depth 16 -> u16 depth 16: shift 0 must be byte exact.
	in := pixel.Format{Type: pixel.U16, Depth: 16, FullRange: true}
	same, err := Convert(w, h, in, pixel.Format{Type: pixel.U16, Depth: 16, FullRange: true}, DitherNone, cpu.ClassNone)
	if err != nil {
		t.Fatal(err)
	}
	if same != nil {
		t.Error("identity conversion should be a no-op")
	}

	// u8 depth 8 limited -> u16 depth 10 limited: shift 2.
	f, err = Convert(w, h, in8, pixel.Format{Type: pixel.U16, Depth: 10}, DitherNone, cpu.ClassNone)
	if err != nil {
		t.Fatal(err)
	}
	dst10 := planeU16(w, h)
	runPointwise(t, f, src, dst10, w, h)
	for j := 0; j < w; j++ {
		want := uint16(src.Line(0)[j]) << 2
		if got := dst10.U16Line(0)[j]; got != want {
			t.Fatalf("col %d: got %d, want %d", j, got, want)
		}
	}
}

// TestScaleOffset pins the normalisation constants of representative
// formats.
func TestScaleOffset(t *testing.T) {
	tests := []struct {
		name       string
		f          pixel.Format
		scale      float64
		offset     float64
	}{
		{"u8 limited luma", pixel.Format{Type: pixel.U8, Depth: 8}, 1.0 / 219, -16.0 / 219},
		{"u8 full luma", pixel.Format{Type: pixel.U8, Depth: 8, FullRange: true}, 1.0 / 255, 0},
		{"u8 limited chroma", pixel.Format{Type: pixel.U8, Depth: 8, ChromaPlane: true}, 1.0 / 224, -128.0 / 224},
		{"u10 limited luma", pixel.Format{Type: pixel.U16, Depth: 10}, 1.0 / 876, -64.0 / 876},
		{"u8 full chroma", pixel.Format{Type: pixel.U8, Depth: 8, FullRange: true, ChromaPlane: true}, 1.0 / 255, -128.0 / 255},
	}
	for _, tt := range tests {
		s, o := scaleOffset(tt.f)
		if math.Abs(s-tt.scale) > 1e-12 || math.Abs(o-tt.offset) > 1e-12 {
			t.Errorf("%s: got (%v, %v), want (%v, %v)", tt.name, s, o, tt.scale, tt.offset)
		}
	}
}

// TestToFloatValues verifies known code points of the integer-to-float
// conversion.
func TestToFloatValues(t *testing.T) {
	const w, h = 4, 1
	in := pixel.Format{Type: pixel.U8, Depth: 8}
	out := pixel.Format{Type: pixel.F32, Depth: 32, FullRange: true}
	f, err := Convert(w, h, in, out, DitherNone, cpu.ClassNone)
	if err != nil {
		t.Fatal(err)
	}
	src := planeU8(w, h)
	copy(src.Line(0), []byte{16, 235, 126, 0})
	dst := planeF32(w, h)
	runPointwise(t, f, src, dst, w, h)
	got := dst.F32Line(0)

	want := []float64{0, 1, 110.0 / 219.0, -16.0 / 219.0}
	for j := range want {
		if math.Abs(float64(got[j])-want[j]) > 1e-6 {
			t.Errorf("col %d: got %v, want %v", j, got[j], want[j])
		}
	}
}

// TestFloatRoundTrip verifies to-float then from-float lands within one
// quantisation step.
func TestFloatRoundTrip(t *testing.T) {
	const w = 256
	in := pixel.Format{Type: pixel.U8, Depth: 8}
	fwd, err := Convert(w, 1, in, pixel.Format{Type: pixel.F32, Depth: 32, FullRange: true}, DitherNone, cpu.ClassNone)
	if err != nil {
		t.Fatal(err)
	}
	bwd, err := Convert(w, 1, pixel.Format{Type: pixel.F32, Depth: 32, FullRange: true}, in, DitherNone, cpu.ClassNone)
	if err != nil {
		t.Fatal(err)
	}

	src := planeU8(w, 1)
	for j := 0; j < w; j++ {
		src.Line(0)[j] = byte(j)
	}
	mid := planeF32(w, 1)
	runPointwise(t, fwd, src, mid, w, 1)
	dst := planeU8(w, 1)
	runPointwise(t, bwd, mid, dst, w, 1)

	for j := 0; j < w; j++ {
		if src.Line(0)[j] != dst.Line(0)[j] {
			t.Fatalf("code %d round-tripped to %d", src.Line(0)[j], dst.Line(0)[j])
		}
	}
}

// TestHalfRoundTrip verifies f32 -> f16 -> f32 is exact for values
// representable in half precision.
func TestHalfRoundTrip(t *testing.T) {
	const w = 8
	toHalf, err := Convert(w, 1, pixel.Format{Type: pixel.F32, Depth: 32, FullRange: true},
		pixel.Format{Type: pixel.F16, Depth: 16, FullRange: true}, DitherNone, cpu.ClassNone)
	if err != nil {
		t.Fatal(err)
	}
	toFloat, err := Convert(w, 1, pixel.Format{Type: pixel.F16, Depth: 16, FullRange: true},
		pixel.Format{Type: pixel.F32, Depth: 32, FullRange: true}, DitherNone, cpu.ClassNone)
	if err != nil {
		t.Fatal(err)
	}

	vals := []float32{0, 1, 0.5, 0.25, -0.125, 0.75, 2, 1.0 / 1024}
	src := planeF32(w, 1)
	copy(src.F32Line(0), vals)
	mid := planeU16(w, 1)
	runPointwise(t, toHalf, src, mid, w, 1)
	dst := planeF32(w, 1)
	runPointwise(t, toFloat, mid, dst, w, 1)

	for j, v := range vals {
		if dst.F32Line(0)[j] != v {
			t.Errorf("col %d: %v round-tripped to %v", j, v, dst.F32Line(0)[j])
		}
	}
}

// TestOrderedDitherFlat verifies a flat mid-level field dithers to the
// two codes bracketing the exact value, in the Bayer pattern proportion.
func TestOrderedDitherFlat(t *testing.T) {
	const w, h = 64, 8
	// 16-bit 0x8100 scales to 128.498 in 8 bits, a hair under the
	// rounding threshold: ordered dither must produce an even mix of
	// 128 and 129.
	in := pixel.Format{Type: pixel.U16, Depth: 16, FullRange: true}
	out := pixel.Format{Type: pixel.U8, Depth: 8, FullRange: true}
	f, err := Convert(w, h, in, out, DitherOrdered, cpu.ClassNone)
	if err != nil {
		t.Fatal(err)
	}

	src := planeU16(w, h)
	for i := 0; i < h; i++ {
		row := src.U16Line(i)
		for j := 0; j < w; j++ {
			row[j] = 0x8100
		}
	}
	dst := planeU8(w, h)
	runPointwise(t, f, src, dst, w, h)

	count := map[byte]int{}
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			count[dst.Line(i)[j]]++
		}
	}
	if len(count) != 2 || count[128] == 0 || count[129] == 0 {
		t.Fatalf("dither produced codes %v, want a 128/129 mix", count)
	}
	if count[128] != count[129] {
		t.Errorf("mix %d/%d, want an even split", count[128], count[129])
	}
}

// TestDitherNoneRounds verifies undithered narrowing rounds to nearest.
func TestDitherNoneRounds(t *testing.T) {
	const w = 3
	in := pixel.Format{Type: pixel.U16, Depth: 16, FullRange: true}
	out := pixel.Format{Type: pixel.U8, Depth: 8, FullRange: true}
	f, err := Convert(w, 1, in, out, DitherNone, cpu.ClassNone)
	if err != nil {
		t.Fatal(err)
	}
	src := planeU16(w, 1)
	copy(src.U16Line(0), []uint16{0, 0xffff, 0x8000})
	dst := planeU8(w, 1)
	runPointwise(t, f, src, dst, w, 1)
	got := dst.Line(0)[:w]
	if got[0] != 0 || got[1] != 255 || got[2] != 128 {
		t.Errorf("got %v, want [0 255 128]", got)
	}
}

// TestErrorDiffusionPreservesMean verifies Floyd-Steinberg keeps the
// image mean within a small fraction of a code value.
func TestErrorDiffusionPreservesMean(t *testing.T) {
	const w, h = 64, 64
	in := pixel.Format{Type: pixel.U16, Depth: 16, FullRange: true}
	out := pixel.Format{Type: pixel.U8, Depth: 8, FullRange: true}
	f, err := Convert(w, h, in, out, DitherErrorDiffusion, cpu.ClassNone)
	if err != nil {
		t.Fatal(err)
	}
	if !f.Descriptor().Flags.EntireRow || !f.Descriptor().Flags.EntirePlane {
		t.Fatal("error diffusion must declare entire_row and entire_plane")
	}

	src := planeU16(w, h)
	for i := 0; i < h; i++ {
		row := src.U16Line(i)
		for j := 0; j < w; j++ {
			row[j] = 0x8060
		}
	}
	dst := planeU8(w, h)
	runPointwise(t, f, src, dst, w, h)

	sum := 0.0
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			sum += float64(dst.Line(i)[j])
		}
	}
	mean := sum / (w * h)
	want := float64(0x8060) * 255.0 / 65535.0
	if math.Abs(mean-want) > 0.05 {
		t.Errorf("mean %v, want %v within 0.05", mean, want)
	}
}
