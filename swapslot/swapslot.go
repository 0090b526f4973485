// Package swapslot implements a swap-slot bitmap allocator: a
// fixed-capacity set of page-sized slot indices over the swap device's
// region, backed by golang.org/x/tools/container/intsets.Sparse.
package swapslot

import (
	"fmt"
	"sync"

	"golang.org/x/tools/container/intsets"
)

// Allocator manages a fixed number of swap slots behind a single mutex
// that carries no ordering constraint with any other lock in this
// subsystem.
type Allocator struct {
	mu       sync.Mutex
	used     intsets.Sparse
	capacity int
}

// NewAllocator constructs an allocator over `capacity` slots, all free.
func NewAllocator(capacity int) *Allocator {
	return &Allocator{capacity: capacity}
}

// Capacity returns the total number of slots.
func (a *Allocator) Capacity() int {
	return a.capacity
}

// Alloc scans for the first free slot, marks it allocated, and returns
// its index. Exhaustion panics; callers that would rather kill the
// offending process than halt the whole subsystem should use TryAlloc
// instead (see DESIGN.md for which callers pick which policy).
func (a *Allocator) Alloc() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < a.capacity; i++ {
		if !a.used.Has(i) {
			a.used.Insert(i)
			return i
		}
	}
	panic(fmt.Sprintf("swapslot: exhausted (capacity=%d)", a.capacity))
}

// TryAlloc is the non-panicking variant of Alloc: on exhaustion it
// returns (0, false) instead of panicking. No caller in this module uses
// it; the evictor calls Alloc.
func (a *Allocator) TryAlloc() (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < a.capacity; i++ {
		if !a.used.Has(i) {
			a.used.Insert(i)
			return i, true
		}
	}
	return 0, false
}

// Free validates slot and clears its bit. Freeing an out-of-range or
// already-free slot panics: both are programmer errors, not recoverable
// runtime conditions.
func (a *Allocator) Free(slot int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slot < 0 || slot >= a.capacity {
		panic("swapslot: free: slot out of range")
	}
	if !a.used.Has(slot) {
		panic("swapslot: free: slot already free")
	}
	a.used.Remove(slot)
}

// IsAllocated reports whether slot is currently allocated, for tests and
// diagnostics that cross-check every swapped-out PTE against the
// bitmap.
func (a *Allocator) IsAllocated(slot int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slot < 0 || slot >= a.capacity {
		return false
	}
	return a.used.Has(slot)
}

// NumAllocated returns the count of currently allocated slots.
func (a *Allocator) NumAllocated() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used.Len()
}
