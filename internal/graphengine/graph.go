package graphengine

import (
	"errors"
	"fmt"

	"github.com/deepteams/zscale/internal/pixel"
)

// Errors returned by graph construction and execution.
var (
	ErrInvalidGraph   = errors.New("graphengine: invalid graph")
	ErrBufferTooSmall = errors.New("graphengine: endpoint buffer too small")
	ErrTmpTooSmall    = errors.New("graphengine: tmp allocation too small")
	ErrSizeOverflow   = errors.New("graphengine: buffer size overflows")
)

// NodeID identifies a node within one graph.
type NodeID int

// PlaneRef names one output plane of a node.
type PlaneRef struct {
	Node  NodeID
	Plane int
}

// Callback is invoked once per endpoint row. A non-nil error aborts the
// run and is propagated verbatim to the caller of Run.
type Callback func(i, left, right int) error

type node struct {
	id     NodeID
	filter Filter     // nil for sources
	deps   []PlaneRef // empty for sources
	planes []PlaneDescriptor

	consumers []consumerRef

	// Buffering, fixed at AddSink.
	window    int  // live line window per output plane
	unbounded bool // window covers the whole plane
	toSink    bool // outputs bind to the external destination buffer

	stride    []int // padded bytes per row, per plane
	ringOff   []int // byte offset of each plane's ring within tmp
	ringRows  []int // allocated rows per plane
	scratchOff int

	// Per-run state.
	cursor  int // rows produced (luma rows for sources)
	buffers []LineBuffer
	inBufs  []LineBuffer
	scratch []byte
}

type consumerRef struct {
	node  *node
	plane int // which plane of the producer the consumer reads
}

// Graph is a directed acyclic graph of sources, transforms, and one sink.
// Nodes must be added in dependency order; the graph is closed by AddSink,
// after which no further mutation is permitted.
type Graph struct {
	nodes    []*node
	source   *node
	sinkDeps []PlaneRef
	closed   bool

	inputWindow  int
	outputWindow int
	tmpSize      int

	tileable bool
}

// New returns an empty graph.
func New() *Graph { return &Graph{} }

func (g *Graph) lookup(id NodeID) *node {
	if int(id) < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// AddSource registers the graph's source endpoint with the given plane
// geometry. Plane 0 is the luma (reference) plane; callback row indices
// are expressed in its rows. A graph has exactly one source.
func (g *Graph) AddSource(planes []PlaneDescriptor) (NodeID, error) {
	if g.closed {
		return 0, fmt.Errorf("%w: graph is closed", ErrInvalidGraph)
	}
	if g.source != nil {
		return 0, fmt.Errorf("%w: graph already has a source", ErrInvalidGraph)
	}
	if len(planes) == 0 || len(planes) > MaxPlanes {
		return 0, fmt.Errorf("%w: source must have 1..%d planes", ErrInvalidGraph, MaxPlanes)
	}
	n := &node{id: NodeID(len(g.nodes)), planes: append([]PlaneDescriptor(nil), planes...)}
	g.nodes = append(g.nodes, n)
	g.source = n
	return n.id, nil
}

// AddTransform registers a filter node reading the given dependency planes.
// The dependency plane descriptors must match the filter's declared input
// format. Duplicate edges are permitted.
func (g *Graph) AddTransform(f Filter, deps []PlaneRef) (NodeID, error) {
	if g.closed {
		return 0, fmt.Errorf("%w: graph is closed", ErrInvalidGraph)
	}
	desc := f.Descriptor()
	if len(deps) != desc.NumDeps {
		return 0, fmt.Errorf("%w: filter wants %d deps, got %d", ErrInvalidGraph, desc.NumDeps, len(deps))
	}
	if desc.NumPlanes < 1 || desc.NumPlanes > MaxPlanes {
		return 0, fmt.Errorf("%w: filter declares %d planes", ErrInvalidGraph, desc.NumPlanes)
	}
	for _, d := range deps {
		dep := g.lookup(d.Node)
		if dep == nil || d.Plane < 0 || d.Plane >= len(dep.planes) {
			return 0, fmt.Errorf("%w: bad dependency reference %v", ErrInvalidGraph, d)
		}
		pd := dep.planes[d.Plane]
		if pd != desc.DepFormat {
			return 0, fmt.Errorf("%w: dependency plane %dx%d/%d does not match filter input %dx%d/%d",
				ErrInvalidGraph, pd.Width, pd.Height, pd.BytesPerSample,
				desc.DepFormat.Width, desc.DepFormat.Height, desc.DepFormat.BytesPerSample)
		}
	}
	n := &node{id: NodeID(len(g.nodes)), filter: f, deps: append([]PlaneRef(nil), deps...)}
	for p := 0; p < desc.NumPlanes; p++ {
		n.planes = append(n.planes, desc.Format)
	}
	for _, d := range deps {
		dep := g.lookup(d.Node)
		dep.consumers = append(dep.consumers, consumerRef{node: n, plane: d.Plane})
	}
	g.nodes = append(g.nodes, n)
	return n.id, nil
}

// NodeHasConsumers reports whether any transform reads the node's
// outputs. A node feeding the sink must have no other consumers; callers
// insert a copy filter when it does.
func (g *Graph) NodeHasConsumers(id NodeID) bool {
	n := g.lookup(id)
	return n != nil && len(n.consumers) > 0
}

// AddSink closes the graph. Each sink dependency must reference a
// transform node, and the planes of a sink-feeding transform may feed
// nothing else: their rings bind directly to the destination buffer.
func (g *Graph) AddSink(deps []PlaneRef) error {
	if g.closed {
		return fmt.Errorf("%w: graph is closed", ErrInvalidGraph)
	}
	if g.source == nil {
		return fmt.Errorf("%w: graph has no source", ErrInvalidGraph)
	}
	if len(deps) == 0 || len(deps) > MaxPlanes {
		return fmt.Errorf("%w: sink must have 1..%d planes", ErrInvalidGraph, MaxPlanes)
	}
	for _, d := range deps {
		dep := g.lookup(d.Node)
		if dep == nil || d.Plane < 0 || d.Plane >= len(dep.planes) {
			return fmt.Errorf("%w: bad sink dependency %v", ErrInvalidGraph, d)
		}
		if dep.filter == nil {
			return fmt.Errorf("%w: sink cannot read the source directly; insert a copy filter", ErrInvalidGraph)
		}
		if len(dep.consumers) != 0 {
			return fmt.Errorf("%w: sink dependency node %d feeds other nodes", ErrInvalidGraph, d.Node)
		}
		dep.toSink = true
	}
	g.sinkDeps = append([]PlaneRef(nil), deps...)
	g.closed = true
	return g.finalize()
}

// sinkHeight returns the row count of the sink's reference plane.
func (g *Graph) sinkHeight() int {
	d := g.lookup(g.sinkDeps[0].Node)
	return d.planes[g.sinkDeps[0].Plane].Height
}

func (g *Graph) sinkWidth() int {
	d := g.lookup(g.sinkDeps[0].Node)
	return d.planes[g.sinkDeps[0].Plane].Width
}

// windowOf computes the live line window a producer must retain, in rows
// of its reference plane, so every consumer read lands on a still-cached
// row. For each consumer the required window at output row i is bottom(i)
// minus the smallest top(j) over all not-yet-produced rows j >= i; the
// suffix minimum guards against non-monotone dependency tables. Windows
// of subsampled planes are scaled up to reference-plane rows.
func windowOf(p *node, refHeight int) int {
	window := 1
	for _, c := range p.consumers {
		f := c.node.filter
		desc := f.Descriptor()
		if desc.Flags.EntirePlane {
			return refHeight
		}
		planeHeight := p.planes[c.plane].Height
		outRows := desc.Format.Height
		step := desc.Step
		if step < 1 {
			step = 1
		}
		nCalls := (outRows + step - 1) / step
		tops := make([]int, nCalls)
		bottoms := make([]int, nCalls)
		for k := 0; k < nCalls; k++ {
			top, bottom := f.RowDeps(k * step)
			if top < 0 {
				top = 0
			}
			if bottom > planeHeight {
				bottom = planeHeight
			}
			if bottom < top {
				bottom = top
			}
			tops[k] = top
			bottoms[k] = bottom
		}
		// Suffix minimum of top.
		w := 1
		sufMin := planeHeight
		for k := nCalls - 1; k >= 0; k-- {
			if tops[k] < sufMin {
				sufMin = tops[k]
			}
			if d := bottoms[k] - sufMin; d > w {
				w = d
			}
		}
		if planeHeight != refHeight && planeHeight > 0 {
			w = (w*refHeight + planeHeight - 1) / planeHeight
		}
		if w > window {
			window = w
		}
	}
	return window
}

func (g *Graph) finalize() error {
	g.tileable = true
	tmp := 0

	for _, n := range g.nodes {
		refHeight := n.planes[0].Height
		if n.filter != nil {
			desc := n.filter.Descriptor()
			if desc.Flags.EntireRow || desc.Flags.EntirePlane {
				g.tileable = false
			}
		}

		n.window = windowOf(n, refHeight)
		if n.filter != nil && n.filter.Descriptor().Flags.EntirePlane {
			n.window = refHeight
		}
		if n.toSink {
			// The sink consumes each row as soon as the feeding filter's
			// Process call returns; the window is one call's worth.
			n.window = n.filter.Descriptor().Step
			if n.filter.Descriptor().Flags.EntirePlane {
				n.window = refHeight
			}
		}
		if n.window >= refHeight {
			n.window = refHeight
			n.unbounded = true
		}

		// Storage layout. Sources and sink feeders bind to external
		// memory; everything else is carved from tmp.
		n.stride = make([]int, len(n.planes))
		n.ringOff = make([]int, len(n.planes))
		n.ringRows = make([]int, len(n.planes))
		for p, pd := range n.planes {
			rowBytes, ok := pixel.CheckedMul(pd.Width, pd.BytesPerSample)
			if !ok {
				return ErrSizeOverflow
			}
			n.stride[p] = pixel.AlignSize(rowBytes)
			rows := n.window
			if n.unbounded {
				rows = pd.Height
			} else if rows < pd.Height {
				rows = int(SelectMask(rows)) + 1
			}
			if rows > pd.Height {
				rows = pd.Height
			}
			n.ringRows[p] = rows
			if n.filter != nil && !n.toSink {
				n.ringOff[p] = tmp
				sz, ok := pixel.CheckedMul(n.stride[p], rows)
				if !ok {
					return ErrSizeOverflow
				}
				tmp, ok = pixel.CheckedAdd(tmp, pixel.AlignSize(sz))
				if !ok {
					return ErrSizeOverflow
				}
			}
		}
		if n.filter != nil {
			n.scratchOff = tmp
			var ok bool
			tmp, ok = pixel.CheckedAdd(tmp, pixel.AlignSize(n.filter.Descriptor().ScratchpadSize))
			if !ok {
				return ErrSizeOverflow
			}
		}
	}

	g.inputWindow = g.source.window
	feeder := g.lookup(g.sinkDeps[0].Node)
	g.outputWindow = feeder.window
	g.tmpSize = tmp
	return nil
}

// InputBuffering returns the ring window, in luma lines, the caller's
// source buffer must provide.
func (g *Graph) InputBuffering() int { return g.inputWindow }

// OutputBuffering returns the ring window, in lines, the caller's
// destination buffer must provide.
func (g *Graph) OutputBuffering() int { return g.outputWindow }

// TmpSize returns the size in bytes of the temporary allocation Run
// requires. The caller should allocate it 64-byte aligned.
func (g *Graph) TmpSize() int { return g.tmpSize }

// Tileable reports whether every filter supports horizontal tiling.
func (g *Graph) Tileable() bool { return g.tileable }

func checkEndpoint(bufs []LineBuffer, planes []PlaneDescriptor, window int) error {
	if len(bufs) < len(planes) {
		return fmt.Errorf("%w: endpoint has %d planes, buffer provides %d", ErrBufferTooSmall, len(planes), len(bufs))
	}
	for p := range planes {
		b := &bufs[p]
		if b.Mask != BufferMax {
			if int(b.Mask)+1 < window {
				return fmt.Errorf("%w: plane %d ring holds %d lines, graph requires %d", ErrBufferTooSmall, p, int(b.Mask)+1, window)
			}
			if (b.Mask+1)&b.Mask != 0 {
				return fmt.Errorf("%w: plane %d mask %#x is not 2^k-1", ErrBufferTooSmall, p, b.Mask)
			}
		}
	}
	return nil
}

// Run executes the graph: source planes are read from src, destination
// planes are written to dst, and all intermediates live in tmp, which must
// be at least TmpSize bytes. The unpack callback is invoked before each
// newly required source row; pack after each completed sink row. Either
// may be nil.
func (g *Graph) Run(src, dst []LineBuffer, tmp []byte, unpack, pack Callback) error {
	return g.run(src, dst, tmp, unpack, pack, 0, g.sinkWidth(), true)
}

// RunTiled executes the graph one horizontal tile at a time. It falls back
// to a single full-width pass when any filter requires entire rows.
func (g *Graph) RunTiled(tileWidth int, src, dst []LineBuffer, tmp []byte, unpack, pack Callback) error {
	width := g.sinkWidth()
	if !g.tileable || tileWidth <= 0 || tileWidth >= width {
		return g.Run(src, dst, tmp, unpack, pack)
	}
	for left := 0; left < width; left += tileWidth {
		right := left + tileWidth
		if right > width {
			right = width
		}
		if err := g.run(src, dst, tmp, unpack, pack, left, right, left == 0); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) run(src, dst []LineBuffer, tmp []byte, unpack, pack Callback, left, right int, _ bool) error {
	if len(tmp) < g.tmpSize {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrTmpTooSmall, len(tmp), g.tmpSize)
	}
	if err := checkEndpoint(src, g.source.planes, g.inputWindow); err != nil {
		return err
	}
	feeder := g.lookup(g.sinkDeps[0].Node)
	if err := checkEndpoint(dst, feederPlanes(g), feeder.window); err != nil {
		return err
	}

	// Bind buffers and reset cursors.
	for _, n := range g.nodes {
		n.cursor = 0
		switch {
		case n.filter == nil:
			n.buffers = src[:len(n.planes)]
		case n.toSink:
			n.buffers = nil // bound below via sink order
		default:
			n.buffers = make([]LineBuffer, len(n.planes))
			for p := range n.planes {
				sz := n.stride[p] * n.ringRows[p]
				mask := SelectMask(n.ringRows[p])
				if n.unbounded || n.ringRows[p] >= n.planes[p].Height {
					mask = BufferMax
				}
				n.buffers[p] = LineBuffer{Data: tmp[n.ringOff[p] : n.ringOff[p]+sz], Stride: n.stride[p], Mask: mask}
			}
		}
		if n.filter != nil {
			sz := n.filter.Descriptor().ScratchpadSize
			n.scratch = tmp[n.scratchOff : n.scratchOff+sz]
			for i := range n.scratch {
				n.scratch[i] = 0
			}
		}
	}
	for j, d := range g.sinkDeps {
		dep := g.lookup(d.Node)
		if dep.buffers == nil {
			dep.buffers = make([]LineBuffer, len(dep.planes))
		}
		dep.buffers[d.Plane] = dst[j]
	}

	// Per-node column ranges via back-propagation from the sink tile.
	cols := g.columnRanges(left, right)

	height := g.sinkHeight()
	for i := 0; i < height; i++ {
		for _, d := range g.sinkDeps {
			if err := g.ensure(d, i+1, cols, unpack); err != nil {
				return err
			}
		}
		if pack != nil {
			if err := pack(i, left, right); err != nil {
				return err
			}
		}
	}
	return nil
}

func feederPlanes(g *Graph) []PlaneDescriptor {
	planes := make([]PlaneDescriptor, len(g.sinkDeps))
	for j, d := range g.sinkDeps {
		planes[j] = g.lookup(d.Node).planes[d.Plane]
	}
	return planes
}

// columnRanges back-propagates the sink's [left, right) through every
// node's ColDeps, honoring per-filter alignment masks.
func (g *Graph) columnRanges(left, right int) []colRange {
	cols := make([]colRange, len(g.nodes))
	for i := range cols {
		cols[i] = colRange{left: 1 << 30, right: 0}
	}
	for _, d := range g.sinkDeps {
		cols[d.Node].extend(left, right)
	}
	for i := len(g.nodes) - 1; i >= 0; i-- {
		n := g.nodes[i]
		cr := cols[n.id]
		if cr.right == 0 && cr.left == 1<<30 {
			continue
		}
		if n.filter == nil {
			continue
		}
		desc := n.filter.Descriptor()
		l, r := cr.left, cr.right
		if desc.Flags.EntireRow {
			l, r = 0, desc.Format.Width
		}
		if m := int(desc.AlignmentMask); m != 0 {
			l = l &^ m
			r = (r + m) &^ m
		}
		if l < 0 {
			l = 0
		}
		if r > desc.Format.Width {
			r = desc.Format.Width
		}
		cols[n.id] = colRange{left: l, right: r}
		dl, dr := n.filter.ColDeps(l, r)
		if dl < 0 {
			dl = 0
		}
		if dr > desc.DepFormat.Width {
			dr = desc.DepFormat.Width
		}
		for _, d := range n.deps {
			dep := g.lookup(d.Node)
			al, ar := dl, dr
			if dep.filter == nil {
				// Source column ranges are expressed in reference-plane
				// (luma) columns for the unpack callback.
				w0, wp := dep.planes[0].Width, dep.planes[d.Plane].Width
				if wp != w0 && wp > 0 {
					al = al * w0 / wp
					ar = (ar*w0 + wp - 1) / wp
				}
			}
			cols[d.Node].extend(al, ar)
		}
	}
	// The source range must cover its planes even when untouched.
	src := &cols[g.source.id]
	if src.left == 1<<30 {
		src.left, src.right = 0, g.source.planes[0].Width
	}
	return cols
}

type colRange struct{ left, right int }

func (c *colRange) extend(l, r int) {
	if l < c.left {
		c.left = l
	}
	if r > c.right {
		c.right = r
	}
}

// ensure produces rows of the referenced plane up to (but excluding)
// upTo, recursively producing dependencies first.
func (g *Graph) ensure(ref PlaneRef, upTo int, cols []colRange, unpack Callback) error {
	n := g.lookup(ref.Node)
	if n.filter == nil {
		// Translate the required plane row count into luma (reference
		// plane) rows for subsampled source planes.
		lumaRows := upTo
		h0, hp := n.planes[0].Height, n.planes[ref.Plane].Height
		if hp != h0 && hp > 0 {
			lumaRows = (upTo*h0 + hp - 1) / hp
		}
		if lumaRows > h0 {
			lumaRows = h0
		}
		if n.cursor >= lumaRows {
			return nil
		}
		if unpack != nil {
			cr := cols[n.id]
			for r := n.cursor; r < lumaRows; r++ {
				if err := unpack(r, cr.left, cr.right); err != nil {
					return err
				}
			}
		}
		n.cursor = lumaRows
		return nil
	}

	desc := n.filter.Descriptor()
	height := desc.Format.Height
	if upTo > height {
		upTo = height
	}
	step := desc.Step
	if step < 1 {
		step = 1
	}
	if desc.Flags.EntirePlane {
		step = height
	}
	cr := cols[n.id]
	for n.cursor < upTo {
		i := n.cursor
		top, bottom := n.filter.RowDeps(i)
		if top < 0 {
			top = 0
		}
		if bottom > desc.DepFormat.Height {
			bottom = desc.DepFormat.Height
		}
		if n.inBufs == nil {
			n.inBufs = make([]LineBuffer, len(n.deps))
		}
		for k, d := range n.deps {
			if err := g.ensure(d, bottom, cols, unpack); err != nil {
				return err
			}
			n.inBufs[k] = g.lookup(d.Node).buffers[d.Plane]
		}
		n.filter.Process(n.inBufs, n.buffers, i, cr.left, cr.right, n.scratch)
		n.cursor += step
		if n.cursor > height {
			n.cursor = height
		}
	}
	return nil
}
