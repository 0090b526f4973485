// Package vmsystem wires the process-wide singletons — the page
// metadata table, LRU list, frame allocator, swap bitmap, and clock
// cursor — into one boot-time object, initialized once and never torn
// down.
package vmsystem

import (
	"github.com/lmatarodo/swapvm/addrspace"
	"github.com/lmatarodo/swapvm/clock"
	"github.com/lmatarodo/swapvm/evict"
	"github.com/lmatarodo/swapvm/kconfig"
	"github.com/lmatarodo/swapvm/kerrno"
	"github.com/lmatarodo/swapvm/mem"
	"github.com/lmatarodo/swapvm/pagefault"
	"github.com/lmatarodo/swapvm/pagemeta"
	"github.com/lmatarodo/swapvm/pagetable"
	"github.com/lmatarodo/swapvm/swapio"
	"github.com/lmatarodo/swapvm/swapslot"
	"github.com/lmatarodo/swapvm/swapstats"
)

// System bundles every singleton the paging subsystem needs. The frame
// allocator's evict hook is bound to the Evictor only after every other
// collaborator exists, since the Evictor itself depends on the frame
// allocator — by construction, EvictPage never calls back into Kalloc,
// so recursion through the hook is bounded to one level.
type System struct {
	Phys    *mem.Physmem
	Meta    *pagemeta.Table
	Swap    *swapslot.Allocator
	IO      *swapio.SwapIO
	Stats   *swapstats.Stats
	Walker  *pagetable.Walker
	Clock   *clock.Clock
	Evictor *evict.Evictor
	Fault   *pagefault.Handler
}

// Boot constructs a System from a Config and a swap Device. If
// cfg.MaxInFlightSwapIO is positive, dev is wrapped in a swapio.Bounded
// bounding the number of concurrent swap requests; a zero value leaves
// dev unwrapped.
func Boot(cfg kconfig.Config, dev swapio.Device) *System {
	phys := mem.NewPhysmemFrom(cfg.KernFrames, cfg.NFrames)
	meta := pagemeta.NewTable(cfg.NFrames)
	swap := swapslot.NewAllocator(cfg.SwapSlots)
	if cfg.MaxInFlightSwapIO > 0 {
		dev = swapio.NewBounded(dev, cfg.MaxInFlightSwapIO)
	}
	io := swapio.NewSwapIO(phys, dev)
	stats := &swapstats.Stats{}
	walker := pagetable.NewWalker(phys, meta, swap)
	clk := clock.New(meta, walker)
	evictor := evict.New(meta, walker, clk, swap, io, stats)
	fault := pagefault.New(meta, walker, swap, io, stats)

	phys.SetEvictHook(evictor.EvictPage)

	return &System{
		Phys:    phys,
		Meta:    meta,
		Swap:    swap,
		IO:      io,
		Stats:   stats,
		Walker:  walker,
		Clock:   clk,
		Evictor: evictor,
		Fault:   fault,
	}
}

// NewAddressSpace allocates a fresh, empty address space rooted in this
// system's singletons (uvmcreate).
func (s *System) NewAddressSpace() (*addrspace.AddressSpace, bool) {
	return addrspace.Create(s.Phys, s.Meta, s.Walker, s.Swap, s.IO, s.Stats)
}

// HandleFault dispatches a page fault against as's page table to the
// fault handler.
func (s *System) HandleFault(as *addrspace.AddressSpace, addr uintptr) kerrno.Errno {
	return s.Fault.HandleFault(as.Root, addr)
}
