// Package swapio implements synchronous, page-granularity read/write of
// a swap backing store, addressed by slot index, decoupled from any
// concrete storage driver so the rest of the paging subsystem can be
// exercised without real disk hardware.
package swapio

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/lmatarodo/swapvm/kconfig"
	"github.com/lmatarodo/swapvm/mem"
)

// Device is the contract a swap backing store must satisfy: synchronous,
// page-granularity reads and writes addressed by slot index. These do
// not return errors — swap I/O is treated as always-succeeding; a
// driver that cannot complete a request has no recovery path but to
// panic.
type Device interface {
	ReadSlot(slot int, dst []byte)
	WriteSlot(slot int, src []byte)
	Capacity() int
}

// MemDevice is an in-memory-backed Device, used by tests and by any
// caller that does not need the swap region to survive a process
// restart.
type MemDevice struct {
	slots [][]byte
}

// NewMemDevice allocates capacity page-sized slots.
func NewMemDevice(capacity int) *MemDevice {
	d := &MemDevice{slots: make([][]byte, capacity)}
	for i := range d.slots {
		d.slots[i] = make([]byte, kconfig.PGSIZE)
	}
	return d
}

// Capacity returns the number of slots backing the device.
func (d *MemDevice) Capacity() int {
	return len(d.slots)
}

// ReadSlot copies the contents of slot into dst.
func (d *MemDevice) ReadSlot(slot int, dst []byte) {
	if slot < 0 || slot >= len(d.slots) {
		panic(fmt.Sprintf("swapio: memdevice: slot %d out of range", slot))
	}
	copy(dst, d.slots[slot])
}

// WriteSlot copies src into slot.
func (d *MemDevice) WriteSlot(slot int, src []byte) {
	if slot < 0 || slot >= len(d.slots) {
		panic(fmt.Sprintf("swapio: memdevice: slot %d out of range", slot))
	}
	copy(d.slots[slot], src)
}

// Bounded wraps dev with a weighted semaphore limiting the number of
// concurrent in-flight requests to maxInFlight, modeling a real block
// device's finite request-queue depth.
type Bounded struct {
	dev Device
	sem *semaphore.Weighted
}

// NewBounded returns dev wrapped with a concurrency bound of
// maxInFlight simultaneous requests.
func NewBounded(dev Device, maxInFlight int64) *Bounded {
	return &Bounded{dev: dev, sem: semaphore.NewWeighted(maxInFlight)}
}

// Capacity delegates to the wrapped device.
func (b *Bounded) Capacity() int {
	return b.dev.Capacity()
}

// ReadSlot acquires a request slot, performs the read, and releases it.
func (b *Bounded) ReadSlot(slot int, dst []byte) {
	_ = b.sem.Acquire(context.Background(), 1)
	defer b.sem.Release(1)
	b.dev.ReadSlot(slot, dst)
}

// WriteSlot acquires a request slot, performs the write, and releases
// it.
func (b *Bounded) WriteSlot(slot int, src []byte) {
	_ = b.sem.Acquire(context.Background(), 1)
	defer b.sem.Release(1)
	b.dev.WriteSlot(slot, src)
}

// SwapIO binds a Device to the physical frame pool, transferring a
// frame's contents to and from a swap slot.
type SwapIO struct {
	Phys *mem.Physmem
	Dev  Device
}

// NewSwapIO constructs a SwapIO over phys and dev.
func NewSwapIO(phys *mem.Physmem, dev Device) *SwapIO {
	return &SwapIO{Phys: phys, Dev: dev}
}

// Read reads slot into frame's physical page content (swap-in).
func (s *SwapIO) Read(frame mem.Frame, slot int) {
	s.Dev.ReadSlot(slot, s.Phys.FrameBytes(frame))
}

// Write writes frame's physical page content to slot (swap-out).
func (s *SwapIO) Write(frame mem.Frame, slot int) {
	s.Dev.WriteSlot(slot, s.Phys.FrameBytes(frame))
}
