package graphengine

// CopyFilter is a pointwise filter that copies its single dependency
// unchanged. The builder inserts one wherever a source plane would
// otherwise feed the sink directly.
type CopyFilter struct {
	desc FilterDescriptor
}

// NewCopyFilter returns a copy filter over the given plane geometry.
func NewCopyFilter(width, height, bytesPerSample int) *CopyFilter {
	return &CopyFilter{desc: PointDescriptor(width, height, bytesPerSample, 1, 1)}
}

func (f *CopyFilter) Descriptor() *FilterDescriptor { return &f.desc }

func (f *CopyFilter) RowDeps(i int) (int, int) { return i, i + 1 }

func (f *CopyFilter) ColDeps(left, right int) (int, int) { return left, right }

func (f *CopyFilter) Process(in, out []LineBuffer, i, left, right int, _ []byte) {
	bps := f.desc.Format.BytesPerSample
	src := in[0].Line(i)
	dst := out[0].Line(i)
	copy(dst[left*bps:right*bps], src[left*bps:right*bps])
}
