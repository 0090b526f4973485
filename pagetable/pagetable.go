// Package pagetable implements a three-level Sv39-style page-table
// walker and leaf-mapping primitives, with a software SWAP bit standing
// in for hardware refcounting on swapped-out pages.
package pagetable

import (
	"encoding/binary"
	"sync"

	"github.com/lmatarodo/swapvm/kconfig"
	"github.com/lmatarodo/swapvm/mem"
	"github.com/lmatarodo/swapvm/pagemeta"
	"github.com/lmatarodo/swapvm/swapslot"
	"github.com/lmatarodo/swapvm/tlbshoot"
)

// PTE is a 64-bit page-table entry: bits 0..9 are flags, bits 10..53 are
// a physical frame number (resident/intermediate) or a swap-slot index
// (swapped-out).
type PTE uint64

const (
	V    PTE = 1 << 0 // valid / present
	R    PTE = 1 << 1 // readable
	W    PTE = 1 << 2 // writable
	X    PTE = 1 << 3 // executable
	U    PTE = 1 << 4 // user-accessible
	G    PTE = 1 << 5 // global
	A    PTE = 1 << 6 // accessed
	D    PTE = 1 << 7 // dirty
	RSW  PTE = 1 << 8 // reserved software bit
	SWAP PTE = 1 << 9 // software: PPN field holds a swap-slot index

	permMask  = R | W | X | U
	ppnShift  = 10
)

// MakeResident builds a resident leaf or intermediate PTE for frame with
// the given flags (which must include V).
func MakeResident(frame mem.Frame, flags PTE) PTE {
	return PTE(uint64(frame))<<ppnShift | flags
}

// MakeSwapped builds a swapped-out leaf PTE for slot, preserving perm
// (the R/W/X/U bits) and clearing V.
func MakeSwapped(slot int, perm PTE) PTE {
	return PTE(uint64(slot))<<ppnShift | (perm & permMask) | SWAP
}

// Frame extracts the physical frame number from a resident PTE.
func (p PTE) Frame() mem.Frame {
	return mem.Frame(uint64(p) >> ppnShift)
}

// Slot extracts the swap-slot index from a swapped-out PTE.
func (p PTE) Slot() int {
	return int(uint64(p) >> ppnShift)
}

// Perm returns the R/W/X/U bits of p.
func (p PTE) Perm() PTE {
	return p & permMask
}

func idxForLevel(va uintptr, level int) int {
	shift := kconfig.PGSHIFT + kconfig.PXBITS*level
	return int((va >> uint(shift)) & kconfig.PXMASK)
}

func ptLoad(page []byte, idx int) PTE {
	return PTE(binary.LittleEndian.Uint64(page[idx*8:]))
}

func ptStore(page []byte, idx int, v PTE) {
	binary.LittleEndian.PutUint64(page[idx*8:], uint64(v))
}

// Ref is the location of one PTE: the page-table frame holding it and
// the index within that 512-entry table. A real kernel would hold a
// *uint64 into a mapped page; here physical memory is a Go byte slab,
// so an (owning frame, index) pair does the same job. mu is the owning
// Walker's PTE-mutation lock: the evictor can rewrite a PTE belonging to
// an address space other than the one that triggered the allocation
// driving eviction, while that address space's own thread may
// concurrently walk or mutate the very same PTE, so every load and store
// goes through this lock.
type Ref struct {
	page []byte
	idx  int
	mu   *sync.Mutex
}

// Valid reports whether r refers to a real PTE slot (as opposed to the
// zero Ref returned on walk failure).
func (r Ref) Valid() bool {
	return r.page != nil
}

// Load reads the PTE, holding the PTE-mutation lock for the read.
func (r Ref) Load() PTE {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ptLoad(r.page, r.idx)
}

// Store writes the PTE, holding the PTE-mutation lock for the write.
func (r Ref) Store(v PTE) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ptStore(r.page, r.idx, v)
}

// Walker ties the frame allocator, metadata table and swap-slot
// allocator together to walk and mutate page tables. One Walker is
// shared process-wide. mu is the PTE-mutation lock (acquired after the
// frame-allocator and page-metadata/LRU locks, before the swap-bitmap
// lock, per the documented lock order); it is held only around
// individual PTE reads and writes, never across a call into Kalloc, so
// the evictor's own Walk calls (driven from inside Kalloc's evict hook)
// never deadlock against it.
type Walker struct {
	Phys *mem.Physmem
	Meta *pagemeta.Table
	Swap *swapslot.Allocator

	mu sync.Mutex
}

// NewWalker constructs a Walker over the given singletons.
func NewWalker(phys *mem.Physmem, meta *pagemeta.Table, swap *swapslot.Allocator) *Walker {
	return &Walker{Phys: phys, Meta: meta, Swap: swap}
}

func (w *Walker) frameTable(f mem.Frame) []byte {
	return w.Phys.FrameBytes(f)
}

// Walk descends the three-level page table rooted at root for virtual
// address va, optionally creating intermediate tables on demand, and
// returns a Ref to the level-0 (leaf) PTE. It panics if va is out of
// range. It returns (Ref{}, false) when an intermediate table is missing
// and allocIntermediate is false, or when an intermediate allocation
// fails.
func (w *Walker) Walk(root mem.Frame, va uintptr, allocIntermediate bool) (Ref, bool) {
	if va >= kconfig.MAXVA {
		panic("pagetable: walk: va out of range")
	}
	page := w.frameTable(root)
	for level := 2; level > 0; level-- {
		idx := idxForLevel(va, level)
		w.mu.Lock()
		pte := ptLoad(page, idx)
		w.mu.Unlock()
		if pte&V == 0 {
			if !allocIntermediate {
				return Ref{}, false
			}
			nf, ok := w.Phys.Kalloc()
			if !ok {
				return Ref{}, false
			}
			for i := range w.frameTable(nf) {
				w.frameTable(nf)[i] = 0
			}
			w.Meta.MarkPageTable(nf)
			pte = MakeResident(nf, V)
			w.mu.Lock()
			ptStore(page, idx, pte)
			w.mu.Unlock()
			page = w.frameTable(nf)
		} else {
			page = w.frameTable(pte.Frame())
		}
	}
	idx := idxForLevel(va, 0)
	return Ref{page: page, idx: idx, mu: &w.mu}, true
}

// Mappages installs a resident leaf mapping for every page in
// [va, va+size) starting at physical address pa, with the given
// permission flags ORed with V.
//   - va and size must be page-aligned and size > 0 (panics otherwise);
//   - every target PTE must be empty (panics on remap);
//   - fails (returns false) only if an intermediate allocation fails;
//   - if U is set, the frame is not a page-table frame, and va < MAXVA,
//     the frame joins the LRU list.
func (w *Walker) Mappages(root mem.Frame, va uintptr, size uintptr, pa mem.PhysAddr, perm PTE) bool {
	if va%kconfig.PGSIZE != 0 || size%kconfig.PGSIZE != 0 || size == 0 {
		panic("pagetable: mappages: misaligned or empty range")
	}
	for off := uintptr(0); off < size; off += kconfig.PGSIZE {
		a := va + off
		frame := mem.FrameOf(pa + mem.PhysAddr(off))
		ref, ok := w.Walk(root, a, true)
		if !ok {
			return false
		}
		if ref.Load()&V != 0 {
			panic("pagetable: mappages: remap")
		}
		ref.Store(MakeResident(frame, perm|V))
		tlbshoot.Shootdown(a, 1)
		if perm&U != 0 && !w.Meta.IsPageTable(frame) && a < kconfig.MAXVA {
			w.Meta.AddLRU(frame, pagemeta.Root(root), a)
		}
	}
	return true
}

// Uvmunmap unmaps npages pages starting at va. Each target PTE must be a
// valid leaf (resident or swapped-out); unmapping a missing page panics.
// If doFree, a resident frame is removed from the LRU list (if linked)
// and returned to the allocator, or a swapped-out page's slot is freed
// instead. Every PTE write is followed by a TLB shootdown.
func (w *Walker) Uvmunmap(root mem.Frame, va uintptr, npages int, doFree bool) {
	if va%kconfig.PGSIZE != 0 {
		panic("pagetable: uvmunmap: misaligned va")
	}
	for i := 0; i < npages; i++ {
		a := va + uintptr(i)*kconfig.PGSIZE
		ref, ok := w.Walk(root, a, false)
		if !ok {
			panic("pagetable: uvmunmap: not mapped")
		}
		pte := ref.Load()
		switch {
		case pte&V != 0:
			frame := pte.Frame()
			if doFree {
				w.Meta.RemoveLRU(frame)
				w.Phys.Kfree(frame)
			}
		case pte&SWAP != 0:
			if doFree {
				w.Swap.Free(pte.Slot())
			}
		default:
			panic("pagetable: uvmunmap: not mapped")
		}
		ref.Store(0)
		tlbshoot.Shootdown(a, 1)
	}
}

// Freewalk recursively frees the intermediate page-table nodes reachable
// from pt (which must hold only intermediate entries — the caller must
// unmap every leaf first; finding one here is a fatal error).
func (w *Walker) Freewalk(pt mem.Frame) {
	page := w.frameTable(pt)
	for i := 0; i < kconfig.PXMASK+1; i++ {
		w.mu.Lock()
		pte := ptLoad(page, i)
		w.mu.Unlock()
		if pte&V == 0 {
			continue
		}
		if pte&permMask == 0 {
			w.Freewalk(pte.Frame())
			w.mu.Lock()
			ptStore(page, i, 0)
			w.mu.Unlock()
		} else {
			panic("pagetable: freewalk: leaf encountered")
		}
	}
	w.Meta.Clear(pt)
	w.Phys.Kfree(pt)
}
