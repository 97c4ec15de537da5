// Package cpu selects kernel implementation classes from the host's
// capabilities. The query runs once at init; kernel factories consult the
// cached result together with the caller's requested class and pick the
// most specific implementation both allow.
package cpu

import (
	xcpu "golang.org/x/sys/cpu"
)

// Class constrains kernel selection. Ordering is significant: a larger
// class permits every implementation a smaller one does.
type Class int

const (
	ClassNone   Class = iota // scalar reference kernels only
	ClassV128                // 16-byte-wide kernels
	ClassV256                // 32-byte-wide kernels with fused multiply-add
	ClassV512                // 64-byte-wide kernels
	ClassNative              // everything the host supports
)

// caps is the cached capability query.
var caps struct {
	v128 bool
	v256 bool
	v512 bool
}

func init() {
	caps.v128 = xcpu.X86.HasSSE2 || xcpu.ARM64.HasASIMD
	caps.v256 = xcpu.X86.HasAVX2 && xcpu.X86.HasFMA
	caps.v512 = xcpu.X86.HasAVX512F && xcpu.X86.HasAVX512BW && xcpu.X86.HasAVX512DQ && xcpu.X86.HasAVX512VL
}

// Resolve clamps the requested class to what the host supports.
// ClassNative resolves to the widest available class below 64-byte;
// 64-byte kernels must be requested explicitly with ClassV512.
func Resolve(req Class) Class {
	limit := req
	if req == ClassNative {
		limit = ClassV256
	}
	got := ClassNone
	if limit >= ClassV128 && caps.v128 {
		got = ClassV128
	}
	if limit >= ClassV256 && caps.v256 {
		got = ClassV256
	}
	if limit >= ClassV512 && caps.v512 {
		got = ClassV512
	}
	return got
}

// HasWide reports whether the resolved class permits kernels that process
// more than one vector register of samples per step.
func HasWide(c Class) bool { return c >= ClassV256 }
