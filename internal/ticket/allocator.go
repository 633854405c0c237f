package ticket

import "sync/atomic"

// Allocator hands out ticket ids. The zero value is ready to use and its
// first id is 1.
type Allocator struct {
	last atomic.Uint64
}

// Next returns a fresh id, strictly greater than every id returned before it.
func (a *Allocator) Next() ID {
	return ID(a.last.Add(1))
}
