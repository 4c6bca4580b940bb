package fragment

import "fmt"

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Code identifies the kind of fragment problem
type Code uint8

const (
	CodeNonexistent            Code = iota + 1 // 1: segment for an unknown fragment
	CodeAlreadyStarted                         // 2: initial piece for a fragment already in progress
	CodeSizeMismatch                           // 3: concatenated length differs from the declared size
	CodeSegmentAlreadyProvided                 // 4: index already filled
	CodeInvalidSegment                         // 5: index, count or size out of bounds
)

func (c Code) String() string {
	switch c {
	case CodeNonexistent:
		return "NONEXISTENT"
	case CodeAlreadyStarted:
		return "ALREADY_STARTED"
	case CodeSizeMismatch:
		return "SIZE_MISMATCH"
	case CodeSegmentAlreadyProvided:
		return "SEGMENT_ALREADY_PROVIDED"
	case CodeInvalidSegment:
		return "INVALID_SEGMENT"
	default:
		return "UNKNOWN"
	}
}

// Error is returned by the tracker for every rejected piece
type Error struct {
	Code Code
	ID   ID
	Msg  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("fragment %d: %s: %s", e.ID, e.Code, e.Msg)
}

// Is matches errors with the same code, so errors.Is(err, &Error{Code: CodeSizeMismatch}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, id ID, format string, args ...any) *Error {
	return &Error{Code: code, ID: id, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code of a fragment error, or 0 if err is not one
func CodeOf(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return 0
}
