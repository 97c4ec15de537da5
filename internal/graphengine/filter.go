// Package graphengine implements the ring-buffered, line-driven filter
// graph runtime. Nodes are sources, transforms, and a sink; the engine
// computes the minimum buffering window for every edge, carves all
// intermediate storage out of a single caller-supplied allocation, and
// drives production in scanline order.
package graphengine

// MaxPlanes is the maximum number of planes a node may declare.
const MaxPlanes = 4

// PlaneDescriptor describes the geometry of one plane.
type PlaneDescriptor struct {
	Width          int
	Height         int
	BytesPerSample int
}

// Flags describe scheduling constraints of a filter.
type Flags struct {
	// SameRow marks a pointwise filter: each output row depends only on
	// the input row with the same index.
	SameRow bool
	// EntireRow forbids horizontal tiling; Process is always called with
	// the full column range.
	EntireRow bool
	// EntirePlane forces the filter to run over the whole image in a
	// single Process call. Input and output rings collapse to unbounded.
	EntirePlane bool
	// InPlace permits the engine to alias the input and output rings.
	InPlace bool
}

// FilterDescriptor is the static contract a transform exposes to the graph.
type FilterDescriptor struct {
	// Format applies to every output plane of the filter.
	Format PlaneDescriptor
	// DepFormat applies to every input plane of the filter.
	DepFormat PlaneDescriptor

	NumDeps   int
	NumPlanes int

	// Step is the number of output rows a single Process call produces.
	Step int

	// ScratchpadSize is the per-instance temporary memory required by
	// Process, in bytes. Carved from the graph's tmp allocation.
	ScratchpadSize int

	Flags Flags

	// AlignmentMask is the required horizontal alignment of the left and
	// right column bounds, as a power-of-two minus one (0 = none).
	AlignmentMask uint32
}

// Filter is the line-buffered transform interface.
//
// A filter is immutable after construction; all per-run state lives in the
// scratchpad passed to Process. Kernels do not allocate and do not fail.
type Filter interface {
	Descriptor() *FilterDescriptor

	// RowDeps returns the half-open range of input rows required to
	// compute output rows [i, i+Step).
	RowDeps(i int) (top, bottom int)

	// ColDeps returns the input column range needed to produce output
	// columns [left, right).
	ColDeps(left, right int) (colLeft, colRight int)

	// Process writes output rows [i, i+Step), columns [left, right),
	// reading only the rows and columns declared by RowDeps and ColDeps.
	Process(in, out []LineBuffer, i, left, right int, scratch []byte)
}

// PointDescriptor fills a descriptor for a pointwise (same-row) filter
// with identical input and output geometry.
func PointDescriptor(width, height, bytesPerSample, numDeps, numPlanes int) FilterDescriptor {
	desc := PlaneDescriptor{Width: width, Height: height, BytesPerSample: bytesPerSample}
	return FilterDescriptor{
		Format:    desc,
		DepFormat: desc,
		NumDeps:   numDeps,
		NumPlanes: numPlanes,
		Step:      1,
		Flags:     Flags{SameRow: true, InPlace: true},
	}
}
