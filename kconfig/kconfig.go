// Package kconfig centralizes the compile-time tunables of the paging
// subsystem as named constants plus a Config type, so tests can run
// against a small synthetic machine instead of the boot-time defaults.
package kconfig

// PGSHIFT is the base-2 exponent of the page size.
const PGSHIFT = 12

// PGSIZE is the size of a page in bytes.
const PGSIZE = 1 << PGSHIFT

// PXMASK masks one 9-bit page-table index.
const PXMASK = 0x1ff

// PXBITS is the width in bits of one page-table index.
const PXBITS = 9

// MAXVA is the largest user virtual address (exclusive), matching the
// Sv39 convention of leaving the top VA bit unused to avoid sign
// extension ambiguity: 1 << (9+9+9+12-1).
const MAXVA = 1 << (PXBITS*3 + PGSHIFT - 1)

// Config bundles the sizes of the simulated machine. Production boot
// code would derive these from the memory map handed off by firmware;
// tests construct a Config describing a small synthetic machine.
type Config struct {
	// NFrames is the number of physical frames managed by the frame
	// allocator.
	NFrames int
	// SwapSlots is the number of page-sized slots on the swap device.
	SwapSlots int
	// KernFrames is the number of low frames reserved for the kernel
	// image: excluded from the free-list and never returned by Kfree.
	KernFrames int
	// MaxInFlightSwapIO bounds the number of concurrent swap read/write
	// requests Boot allows in flight, modeling a block device's finite
	// queue depth. Zero means unbounded (no wrapping applied).
	MaxInFlightSwapIO int64
}

// DefaultConfig describes a modest synthetic machine suitable for the
// package test suites: enough frames to run the eviction path without
// exhausting swap too.
var DefaultConfig = Config{
	NFrames:           256,
	SwapSlots:         4096,
	KernFrames:        16,
	MaxInFlightSwapIO: 32,
}
