// Package zscale provides a pure Go image scaling, depth conversion,
// dithering, and colorspace conversion engine for video frames.
//
// The engine composes per-pixel operations into a single filter graph that
// streams a source image to a destination image scanline by scanline with
// bounded working memory. Supported operations:
//   - Separable polyphase resampling (point, bilinear, bicubic, spline16,
//     spline36, lanczos) over 16-bit integer and 32/16-bit float samples
//   - Bit-depth and numeric-format conversion with ordered or
//     Floyd-Steinberg error-diffusion dithering
//   - Colorspace conversion between matrix/transfer/primaries triples,
//     including HDR transfers (SMPTE ST 2084, ARIB STD-B67)
//
// Basic usage:
//
//	g, err := zscale.BuildFilterGraph(srcFormat, dstFormat, nil)
//	if err != nil {
//		...
//	}
//	tmp := make([]byte, g.TmpSize())
//	err = g.Process(&srcBuf, &dstBuf, tmp, nil, nil)
//
// A graph is built once for a given source/target format pair and may be
// reused for any number of frames. Graphs are not safe for concurrent use;
// build one graph per goroutine or tile instead.
package zscale
