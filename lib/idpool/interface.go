package idpool

import "errors"

// None is never handed out and marks "no connection"
const None uint32 = 0

// ErrExhausted is returned when no free id could be found
var ErrExhausted = errors.New("connection id pool exhausted")

// IPool allocates and releases connection ids
type IPool interface {
	// Fresh returns an id that is not in use. The id is never None.
	Fresh() (uint32, error)
	// Release returns an id to the pool. Releasing an unknown id is a no-op.
	Release(id uint32)
	// InUse reports whether id is currently allocated
	InUse(id uint32) bool
}
