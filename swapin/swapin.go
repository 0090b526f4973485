// Package swapin factors the swap-in sequence shared by the formal
// page-fault path (pagefault.Handler) and the implicit faulting that
// walkaddr performs for copyout/copyin/copyinstr. Both entry points
// perform the identical allocate/read/free-slot/rewrite/relink
// sequence; keeping it in one place avoids the two call sites drifting
// apart.
package swapin

import (
	"github.com/lmatarodo/swapvm/mem"
	"github.com/lmatarodo/swapvm/pagemeta"
	"github.com/lmatarodo/swapvm/pagetable"
	"github.com/lmatarodo/swapvm/swapio"
	"github.com/lmatarodo/swapvm/swapslot"
	"github.com/lmatarodo/swapvm/swapstats"
	"github.com/lmatarodo/swapvm/tlbshoot"
)

// Resolve turns a swap-encoded PTE (referenced by ref, belonging to
// address space root at vaddr) into a resident leaf: it allocates a
// frame (which may itself trigger eviction), reads the swap slot,
// frees the slot, rewrites the PTE, shoots down the TLB, and reinserts
// the frame into the LRU list. If ref is already resident it is a
// no-op returning true. It returns false only if no frame could be
// allocated.
func Resolve(phys *mem.Physmem, meta *pagemeta.Table, swap *swapslot.Allocator, io *swapio.SwapIO, stats *swapstats.Stats, root mem.Frame, vaddr uintptr, ref pagetable.Ref) bool {
	pte := ref.Load()
	if pte&pagetable.SWAP == 0 {
		return true
	}
	slot := pte.Slot()
	perm := pte.Perm()

	frame, ok := phys.Kalloc()
	if !ok {
		return false
	}
	io.Read(frame, slot)
	swap.Free(slot)
	stats.SlotsFreed.Inc()

	ref.Store(pagetable.MakeResident(frame, perm|pagetable.V))
	tlbshoot.Shootdown(vaddr, 1)

	meta.AddLRU(frame, pagemeta.Root(root), vaddr)
	stats.PagesSwappedIn.Inc()
	return true
}
