// Package tlbshoot models TLB invalidation after a PTE rewrite.
//
// This targets a single hart for user traps, so Shootdown is a counting
// no-op; a multi-hart deployment would replace it with a broadcast IPI
// to every hart that might have the mapping cached.
package tlbshoot

import "sync/atomic"

var count int64

// Shootdown invalidates npages TLB entries starting at va on the local
// hart. The mapping, unmapping, eviction and swap-in paths call it right
// after their PTE writes; the clock's Access-bit clear and
// addrspace.Clear do not.
func Shootdown(va uintptr, npages int) {
	atomic.AddInt64(&count, int64(npages))
}

// Count returns the cumulative number of pages shot down, for tests
// asserting that a mutation path remembered to invalidate the TLB.
func Count() int64 {
	return atomic.LoadInt64(&count)
}
