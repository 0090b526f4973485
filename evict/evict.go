// Package evict composes victim selection, swap-slot allocation,
// swap-out I/O, PTE rewrite and frame release into the single EvictPage
// operation the frame allocator calls when its free-list runs dry.
package evict

import (
	"github.com/lmatarodo/swapvm/kconfig"
	"github.com/lmatarodo/swapvm/mem"
	"github.com/lmatarodo/swapvm/pagemeta"
	"github.com/lmatarodo/swapvm/pagetable"
	"github.com/lmatarodo/swapvm/swapio"
	"github.com/lmatarodo/swapvm/swapslot"
	"github.com/lmatarodo/swapvm/swapstats"
	"github.com/lmatarodo/swapvm/tlbshoot"
)

// VictimSelector is satisfied by *clock.Clock; declared as an interface
// so evict does not need to import clock directly, avoiding pulling the
// replacement policy's internals into the evictor's own package surface.
type VictimSelector interface {
	SelectVictim() (mem.Frame, bool)
}

// Evictor ties the replacement engine to the metadata table, walker,
// swap-slot allocator and swap I/O.
type Evictor struct {
	Meta     *pagemeta.Table
	Walker   *pagetable.Walker
	Selector VictimSelector
	Swap     *swapslot.Allocator
	IO       *swapio.SwapIO
	Stats    *swapstats.Stats
}

// New constructs an Evictor from its collaborators.
func New(meta *pagemeta.Table, walker *pagetable.Walker, selector VictimSelector, swap *swapslot.Allocator, io *swapio.SwapIO, stats *swapstats.Stats) *Evictor {
	return &Evictor{Meta: meta, Walker: walker, Selector: selector, Swap: swap, IO: io, Stats: stats}
}

// EvictPage runs one eviction:
//  1. select a victim, failing if none exists;
//  2. snapshot its (pagetable, vaddr), validating vaddr < MAXVA;
//  3. walk to its PTE, requiring a resident leaf;
//  4. allocate a swap slot (fatal if exhausted);
//  5. synchronously write the victim's frame to the slot;
//  6. remove the victim from the LRU list;
//  7. rewrite the PTE to the swapped-out encoding and shoot down the TLB;
//  8. return the frame to the allocator;
//  9. zero the victim's metadata.
//
// Writing the slot (4-5) before retiring the old mapping (6-7) means a
// concurrent reader would observe either a resident PTE or a fully
// written slot, never a half-written one — an ordering this single-hart
// module does not strictly need but preserves for forward compatibility.
func (e *Evictor) EvictPage() bool {
	victim, ok := e.Selector.SelectVictim()
	if !ok {
		return false
	}

	entry := e.Meta.Snapshot(victim)
	if entry.VAddr >= kconfig.MAXVA {
		panic("evict: victim vaddr out of range")
	}

	ref, ok := e.Walker.Walk(mem.Frame(entry.PageTable), entry.VAddr, false)
	if !ok || ref.Load()&pagetable.V == 0 {
		panic("evict: victim is not a resident leaf")
	}
	perm := ref.Load().Perm()

	slot := e.Swap.Alloc()
	e.Stats.SlotsAllocated.Inc()

	e.IO.Write(victim, slot)

	e.Meta.RemoveLRU(victim)

	ref.Store(pagetable.MakeSwapped(slot, perm))
	tlbshoot.Shootdown(entry.VAddr, 1)

	e.Walker.Phys.Kfree(victim)
	e.Meta.Clear(victim)

	e.Stats.PagesEvicted.Inc()
	return true
}
