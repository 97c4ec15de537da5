package zscale

import "fmt"

// Status is a numeric error code. Codes form a hierarchy by hundreds:
// 1xx usage errors, 2xx resource errors, 3xx internal errors.
type Status int

const (
	StatusOK Status = 0

	StatusInvalidArgument   Status = 100
	StatusBadDimensions     Status = 101
	StatusBadEnum           Status = 102
	StatusUnsupported       Status = 110
	StatusNoColorspace      Status = 111
	StatusNoFieldParity     Status = 112
	StatusNoHalfSupport     Status = 113
	StatusNoAlpha           Status = 114
	StatusResourceExhausted Status = 200
	StatusFilterTooLarge    Status = 201
	StatusTmpSizeOverflow   Status = 202
	StatusInternal          Status = 300
	StatusCallbackFailed    Status = 301
	StatusBrokenInvariant   Status = 302
)

// Category returns the hundreds bucket of the status.
func (s Status) Category() Status { return (s / 100) * 100 }

// Error is the concrete error type returned by graph construction and
// execution. Use errors.As to recover the Status.
type Error struct {
	Status Status
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("zscale: %s: %v", e.Msg, e.Cause)
	}
	return "zscale: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

func statusError(s Status, format string, args ...interface{}) error {
	return &Error{Status: s, Msg: fmt.Sprintf(format, args...)}
}

func wrapStatus(s Status, cause error, msg string) error {
	return &Error{Status: s, Msg: msg, Cause: cause}
}
