package window

import "errors"

var (
	// ErrDuplicate is returned for a sequence that was already received
	ErrDuplicate = errors.New("sequence already received")
	// ErrTooOld is returned for a sequence at or behind the low-water mark
	ErrTooOld = errors.New("sequence older than window")
	// ErrOutsideHorizon is returned for a sequence too far ahead of the low-water mark
	ErrOutsideHorizon = errors.New("sequence outside window horizon")
)
