package pixel

import "unsafe"

// AlignmentBytes is the alignment applied to every ring buffer, scratchpad,
// and coefficient table. 64 bytes covers the widest vector width the
// kernels are written for and the common cache line size.
const AlignmentBytes = 64

// AlignCount rounds n samples of size bytes up so the span is a multiple
// of AlignmentBytes, returning the padded sample count. Used to pad
// strides so a full vector store is safe at the right edge.
func AlignCount(n, size int) int {
	bytes := (n*size + AlignmentBytes - 1) &^ (AlignmentBytes - 1)
	return bytes / size
}

// AlignSize rounds a byte count up to a multiple of AlignmentBytes.
func AlignSize(n int) int {
	return (n + AlignmentBytes - 1) &^ (AlignmentBytes - 1)
}

// AllocAligned returns a zeroed byte slice of length n whose first element
// is aligned to AlignmentBytes.
func AllocAligned(n int) []byte {
	if n == 0 {
		return nil
	}
	buf := make([]byte, n+AlignmentBytes-1)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&buf[0])) & (AlignmentBytes - 1)); rem != 0 {
		off = AlignmentBytes - rem
	}
	return buf[off : off+n : off+n]
}

// AllocFloat returns a zeroed float32 slice of length n, 64-byte aligned.
func AllocFloat(n int) []float32 {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&AllocAligned(n * 4)[0])), n)
}

// AllocInt16 returns a zeroed int16 slice of length n, 64-byte aligned.
func AllocInt16(n int) []int16 {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&AllocAligned(n * 2)[0])), n)
}

// BytesAsU16 reinterprets a byte slice as uint16 samples.
// The slice must be 2-byte aligned, which holds for all engine-owned
// buffers (64-byte aligned) and for any sanely allocated caller plane.
func BytesAsU16(b []byte) []uint16 {
	if len(b) < 2 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
}

// BytesAsI32 reinterprets a byte slice as int32 values.
func BytesAsI32(b []byte) []int32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// BytesAsF32 reinterprets a byte slice as float32 samples.
func BytesAsF32(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}
