package zscale

import (
	stderrors "errors"

	"github.com/deepteams/zscale/internal/graphengine"
	"github.com/deepteams/zscale/internal/pixel"
)

// MaxPlanes is the maximum plane count of an endpoint.
const MaxPlanes = graphengine.MaxPlanes

// BufferMax is the ring mask meaning a buffer holds the whole image.
const BufferMax = graphengine.BufferMax

// Buffer describes the caller-owned planes of one endpoint. Data and
// Stride are per plane; Mask is either BufferMax for a linear buffer or
// 2^k-1 for a ring of 2^k lines.
type Buffer struct {
	Data   [MaxPlanes][]byte
	Stride [MaxPlanes]int
	Mask   [MaxPlanes]uint32
}

// Callback is invoked once per endpoint row: before each newly required
// source row for the unpack side, after each completed destination row
// for the pack side. A non-nil error aborts the run and is returned from
// Process unchanged.
type Callback func(i, left, right int) error

// SelectBufferMask returns the smallest ring mask whose window holds at
// least count lines, or BufferMax when the request is large enough that a
// linear buffer is cheaper.
func SelectBufferMask(count int) uint32 { return graphengine.SelectMask(count) }

// Graph is a compiled conversion pipeline. Build once per format pair,
// then call Process once per frame. A Graph is not safe for concurrent
// use; build one per goroutine.
type Graph struct {
	g   *graphengine.Graph
	src ImageFormat
	dst ImageFormat
}

// InputBuffering returns the number of source lines (in luma rows) the
// graph reads back from the cursor; the source buffer's ring must hold
// at least this many lines.
func (g *Graph) InputBuffering() int { return g.g.InputBuffering() }

// OutputBuffering returns the number of destination lines the graph has
// in flight; the destination buffer's ring must hold at least this many
// lines.
func (g *Graph) OutputBuffering() int { return g.g.OutputBuffering() }

// TmpSize returns the size in bytes of the scratch allocation Process
// requires.
func (g *Graph) TmpSize() int { return g.g.TmpSize() }

// SrcFormat returns the source endpoint format the graph was built for.
func (g *Graph) SrcFormat() ImageFormat { return g.src }

// DstFormat returns the destination endpoint format.
func (g *Graph) DstFormat() ImageFormat { return g.dst }

func endpointBuffers(b *Buffer, f *ImageFormat) []graphengine.LineBuffer {
	n := f.PlaneCount()
	bufs := make([]graphengine.LineBuffer, n)
	for p := 0; p < n; p++ {
		bufs[p] = graphengine.LineBuffer{
			Data:   b.Data[p],
			Stride: b.Stride[p],
			Mask:   b.Mask[p],
		}
	}
	return bufs
}

// Process runs the graph over one frame. tmp must be at least TmpSize
// bytes; allocate it with AllocTmp to guarantee alignment. unpack and
// pack may be nil when the corresponding buffer is fully populated in
// advance (source) or read only after Process returns (destination).
func (g *Graph) Process(src, dst *Buffer, tmp []byte, unpack, pack Callback) error {
	err := g.g.Run(
		endpointBuffers(src, &g.src),
		endpointBuffers(dst, &g.dst),
		tmp,
		graphengine.Callback(unpack),
		graphengine.Callback(pack),
	)
	return mapEngineError(err)
}

// ProcessTiled runs the graph in horizontal tiles of the given width
// when every filter in the graph supports column slicing; otherwise it
// behaves exactly like Process.
func (g *Graph) ProcessTiled(tileWidth int, src, dst *Buffer, tmp []byte, unpack, pack Callback) error {
	err := g.g.RunTiled(
		tileWidth,
		endpointBuffers(src, &g.src),
		endpointBuffers(dst, &g.dst),
		tmp,
		graphengine.Callback(unpack),
		graphengine.Callback(pack),
	)
	return mapEngineError(err)
}

// AllocTmp returns a 64-byte-aligned scratch allocation for the graph.
func (g *Graph) AllocTmp() []byte { return pixel.AllocAligned(g.TmpSize()) }

func mapEngineError(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, graphengine.ErrBufferTooSmall),
		stderrors.Is(err, graphengine.ErrTmpTooSmall):
		return wrapStatus(StatusInvalidArgument, err, "buffer validation")
	case stderrors.Is(err, graphengine.ErrSizeOverflow):
		return wrapStatus(StatusTmpSizeOverflow, err, "size computation")
	case stderrors.Is(err, graphengine.ErrInvalidGraph):
		return wrapStatus(StatusInternal, err, "graph execution")
	default:
		// Callback errors propagate verbatim.
		return err
	}
}
