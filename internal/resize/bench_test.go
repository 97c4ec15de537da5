package resize

import (
	"testing"

	"github.com/deepteams/zscale/internal/cpu"
	"github.com/deepteams/zscale/internal/graphengine"
	"github.com/deepteams/zscale/internal/pixel"
)

func benchHorizontalU16(b *testing.B, class cpu.Class) {
	const srcW, dstW = 1920, 1280
	ctx, err := ComputeFilter(Lanczos{Taps: 3}, srcW, dstW, 0, 0)
	if err != nil {
		b.Fatal(err)
	}
	f := NewHorizontalU16(ctx, 1, 16, class)
	src := lineBufferU16(srcW, 1)
	dst := lineBufferU16(dstW, 1)
	in := []graphengine.LineBuffer{src}
	out := []graphengine.LineBuffer{dst}

	b.SetBytes(int64(dstW * 2))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Process(in, out, 0, 0, dstW, nil)
	}
}

func BenchmarkHorizontalU16Scalar(b *testing.B) { benchHorizontalU16(b, cpu.ClassNone) }

func BenchmarkHorizontalU16Wide(b *testing.B) { benchHorizontalU16(b, cpu.ClassNative) }

func BenchmarkVerticalF32(b *testing.B) {
	const w, srcH, dstH = 1920, 1080, 720
	ctx, err := ComputeFilter(NewBicubic(), srcH, dstH, 0, 0)
	if err != nil {
		b.Fatal(err)
	}
	f := NewVerticalF32(ctx, w, cpu.ClassNative)
	src := lineBufferF32(w, srcH)
	dst := lineBufferF32(w, 1)
	dst.Mask = 0 // single-line ring; every output row lands on line 0
	in := []graphengine.LineBuffer{src}
	out := []graphengine.LineBuffer{dst}
	scratch := pixel.AllocAligned(f.Descriptor().ScratchpadSize)

	b.SetBytes(int64(w * 4))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Process(in, out, i%dstH, 0, w, scratch)
	}
}
