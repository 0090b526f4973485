// Package addrspace implements the per-process address-space
// operations: create, grow, shrink, fork-copy, free, and user<->kernel
// copy routines, all built on the pagetable.Walker. An address space
// here is simply whatever its page table maps — there is no separate
// VMA/region list to track alongside it.
package addrspace

import (
	"github.com/lmatarodo/swapvm/kconfig"
	"github.com/lmatarodo/swapvm/kerrno"
	"github.com/lmatarodo/swapvm/mem"
	"github.com/lmatarodo/swapvm/pagemeta"
	"github.com/lmatarodo/swapvm/pagetable"
	"github.com/lmatarodo/swapvm/swapin"
	"github.com/lmatarodo/swapvm/swapio"
	"github.com/lmatarodo/swapvm/swapslot"
	"github.com/lmatarodo/swapvm/swapstats"
	"github.com/lmatarodo/swapvm/util"
)

// AddressSpace is the root page-table frame plus the collaborators
// needed to service its mappings: the root frame plus the set of leaf
// mappings reachable from it. It is mutated only by its owning thread,
// except during Fork where the parent is read by the child's creator.
type AddressSpace struct {
	Phys   *mem.Physmem
	Meta   *pagemeta.Table
	Walker *pagetable.Walker
	Swap   *swapslot.Allocator
	IO     *swapio.SwapIO
	Stats  *swapstats.Stats

	Root mem.Frame
}

// Create implements uvmcreate: allocate a zeroed root page-table frame.
func Create(phys *mem.Physmem, meta *pagemeta.Table, walker *pagetable.Walker, swap *swapslot.Allocator, io *swapio.SwapIO, stats *swapstats.Stats) (*AddressSpace, bool) {
	root, ok := phys.Kalloc()
	if !ok {
		return nil, false
	}
	page := phys.FrameBytes(root)
	for i := range page {
		page[i] = 0
	}
	meta.MarkPageTable(root)
	return &AddressSpace{Phys: phys, Meta: meta, Walker: walker, Swap: swap, IO: io, Stats: stats, Root: root}, true
}

// First implements uvmfirst: maps one page at virtual address 0 with
// RWX|U permissions for the very first process, copying src into it.
// len(src) must not exceed one page.
func (as *AddressSpace) First(src []byte) bool {
	if len(src) > kconfig.PGSIZE {
		panic("addrspace: first: initial image larger than one page")
	}
	frame, ok := as.Phys.Kalloc()
	if !ok {
		return false
	}
	page := as.Phys.FrameBytes(frame)
	for i := range page {
		page[i] = 0
	}
	copy(page, src)
	if !as.Walker.Mappages(as.Root, 0, kconfig.PGSIZE, frame.ToPhysAddr(), pagetable.R|pagetable.W|pagetable.X|pagetable.U) {
		as.Phys.Kfree(frame)
		return false
	}
	return true
}

// Alloc implements uvmalloc: grows the address space from oldsz to
// newsz, page by page, mapping each newly allocated zeroed frame RW|U
// plus xperm. If newsz <= oldsz this is a no-op returning oldsz. On any
// allocation or mapping failure it rolls back via Dealloc and returns
// (0, false).
func (as *AddressSpace) Alloc(oldsz, newsz uintptr, xperm pagetable.PTE) (uintptr, bool) {
	if newsz <= oldsz {
		return oldsz, true
	}
	start := util.Roundup(oldsz, uintptr(kconfig.PGSIZE))
	for a := start; a < newsz; a += kconfig.PGSIZE {
		frame, ok := as.Phys.Kalloc()
		if !ok {
			as.Dealloc(a, oldsz)
			return 0, false
		}
		page := as.Phys.FrameBytes(frame)
		for i := range page {
			page[i] = 0
		}
		if !as.Walker.Mappages(as.Root, a, kconfig.PGSIZE, frame.ToPhysAddr(), pagetable.R|pagetable.W|pagetable.U|xperm) {
			as.Phys.Kfree(frame)
			as.Dealloc(a, oldsz)
			return 0, false
		}
	}
	return newsz, true
}

// Dealloc implements uvmdealloc: unmaps and frees pages above newsz. If
// newsz >= oldsz it is a no-op.
func (as *AddressSpace) Dealloc(oldsz, newsz uintptr) uintptr {
	if newsz >= oldsz {
		return oldsz
	}
	oldszR := util.Roundup(oldsz, uintptr(kconfig.PGSIZE))
	newszR := util.Roundup(newsz, uintptr(kconfig.PGSIZE))
	if newszR < oldszR {
		npages := int((oldszR - newszR) / kconfig.PGSIZE)
		as.Walker.Uvmunmap(as.Root, newszR, npages, true)
	}
	return newsz
}

// Free implements uvmfree: unmaps every leaf below sz, then frees the
// whole page-table tree.
func (as *AddressSpace) Free(sz uintptr) {
	if sz > 0 {
		as.Dealloc(sz, 0)
	}
	as.Walker.Freewalk(as.Root)
}

// Clear implements uvmclear: clears the User bit on the leaf at va,
// turning it into a guard page that future user accesses will fault on.
func (as *AddressSpace) Clear(va uintptr) {
	ref, ok := as.Walker.Walk(as.Root, va, false)
	if !ok {
		panic("addrspace: clear: va not mapped")
	}
	ref.Store(ref.Load() &^ pagetable.U)
}

// WalkAddr implements walkaddr: returns the physical address backing
// user virtual address va, implicitly performing a swap-in if the page
// is currently swapped out. It returns (0, EFAULT) if the PTE is
// absent, invalid, or lacks the User bit, and (0, ENOMEM) if swap-in
// could not allocate a frame.
func (as *AddressSpace) WalkAddr(va uintptr) (mem.PhysAddr, kerrno.Errno) {
	ref, ok := as.Walker.Walk(as.Root, va, false)
	if !ok {
		return 0, kerrno.EFAULT
	}
	pte := ref.Load()
	if pte&pagetable.V == 0 && pte&pagetable.SWAP == 0 {
		return 0, kerrno.EFAULT
	}
	if pte&pagetable.U == 0 {
		return 0, kerrno.EFAULT
	}
	if pte&pagetable.SWAP != 0 {
		if !swapin.Resolve(as.Phys, as.Meta, as.Swap, as.IO, as.Stats, as.Root, va, ref) {
			return 0, kerrno.ENOMEM
		}
		pte = ref.Load()
	}
	return pte.Frame().ToPhysAddr(), 0
}

// CopyOut implements copyout: copies src into the user address space
// starting at dst, page at a time via WalkAddr.
func (as *AddressSpace) CopyOut(dst uintptr, src []byte) kerrno.Errno {
	for len(src) > 0 {
		va0 := util.Rounddown(dst, uintptr(kconfig.PGSIZE))
		pa, err := as.WalkAddr(va0)
		if err != 0 {
			return err
		}
		off := dst - va0
		page := as.Phys.FrameBytes(mem.FrameOf(pa))
		n := util.Min(uintptr(len(src)), uintptr(kconfig.PGSIZE)-off)
		copy(page[off:off+n], src[:n])
		src = src[n:]
		dst += n
	}
	return 0
}

// CopyIn implements copyin: copies len(dst) bytes from the user address
// space starting at src into dst, page at a time via WalkAddr.
func (as *AddressSpace) CopyIn(dst []byte, src uintptr) kerrno.Errno {
	for len(dst) > 0 {
		va0 := util.Rounddown(src, uintptr(kconfig.PGSIZE))
		pa, err := as.WalkAddr(va0)
		if err != 0 {
			return err
		}
		off := src - va0
		page := as.Phys.FrameBytes(mem.FrameOf(pa))
		n := util.Min(uintptr(len(dst)), uintptr(kconfig.PGSIZE)-off)
		copy(dst[:n], page[off:off+n])
		dst = dst[n:]
		src += n
	}
	return 0
}

// CopyInStr implements copyinstr: copies a NUL-terminated string from
// user address src into dst, stopping at the first NUL or after writing
// max bytes. It returns kerrno.ENAMETOOLONG if no NUL was found within
// max.
func (as *AddressSpace) CopyInStr(dst []byte, src uintptr, max int) kerrno.Errno {
	got := 0
	for got < max {
		va0 := util.Rounddown(src, uintptr(kconfig.PGSIZE))
		pa, err := as.WalkAddr(va0)
		if err != 0 {
			return err
		}
		off := int(src - va0)
		page := as.Phys.FrameBytes(mem.FrameOf(pa))
		for off < kconfig.PGSIZE && got < max {
			b := page[off]
			dst[got] = b
			got++
			off++
			src++
			if b == 0 {
				return 0
			}
		}
	}
	return kerrno.ENAMETOOLONG
}

// Fork implements uvmcopy: for each mapped virtual page below sz,
// materializes an equivalent mapping in child. A swapped-out parent
// page is read from its swap slot into a fresh frame for the child,
// leaving the parent's PTE and slot untouched — this doubles memory
// pressure for swapped pages across a fork, the simpler tradeoff chosen
// over a refcounted copy-on-write share of the swap slot. A resident
// parent page is deep-copied byte for byte. On any failure it unmaps
// everything already installed in child and returns false.
func (as *AddressSpace) Fork(child *AddressSpace, sz uintptr) bool {
	szR := util.Roundup(sz, uintptr(kconfig.PGSIZE))
	var installed []uintptr
	rollback := func() {
		for _, va := range installed {
			child.Walker.Uvmunmap(child.Root, va, 1, true)
		}
	}
	for va := uintptr(0); va < szR; va += kconfig.PGSIZE {
		ref, ok := as.Walker.Walk(as.Root, va, false)
		if !ok {
			panic("addrspace: fork: pte should exist")
		}
		pte := ref.Load()
		perm := pte.Perm()

		switch {
		case pte&pagetable.SWAP != 0:
			frame, ok := child.Phys.Kalloc()
			if !ok {
				rollback()
				return false
			}
			as.IO.Dev.ReadSlot(pte.Slot(), child.Phys.FrameBytes(frame))
			if !child.Walker.Mappages(child.Root, va, kconfig.PGSIZE, frame.ToPhysAddr(), perm|pagetable.V) {
				child.Phys.Kfree(frame)
				rollback()
				return false
			}
			installed = append(installed, va)
			continue
		case pte&pagetable.V == 0:
			panic("addrspace: fork: page not present")
		}

		frame, ok := child.Phys.Kalloc()
		if !ok {
			rollback()
			return false
		}
		// Kalloc may have evicted this very parent page to make room, so
		// its PTE is read again before the copy.
		if pte = ref.Load(); pte&pagetable.SWAP != 0 {
			as.IO.Dev.ReadSlot(pte.Slot(), child.Phys.FrameBytes(frame))
		} else {
			copy(child.Phys.FrameBytes(frame), as.Phys.FrameBytes(pte.Frame()))
		}
		if !child.Walker.Mappages(child.Root, va, kconfig.PGSIZE, frame.ToPhysAddr(), perm|pagetable.V) {
			child.Phys.Kfree(frame)
			rollback()
			return false
		}
		installed = append(installed, va)
	}
	return true
}
