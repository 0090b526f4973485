package pagetable

import (
	"testing"

	"github.com/lmatarodo/swapvm/kconfig"
	"github.com/lmatarodo/swapvm/mem"
	"github.com/lmatarodo/swapvm/pagemeta"
	"github.com/lmatarodo/swapvm/swapslot"
)

func newWalker(nframes int) (*Walker, mem.Frame) {
	phys := mem.NewPhysmem(nframes)
	meta := pagemeta.NewTable(nframes)
	swap := swapslot.NewAllocator(64)
	w := NewWalker(phys, meta, swap)
	root, ok := phys.Kalloc()
	if !ok {
		panic("newWalker: could not allocate root")
	}
	for i := range phys.FrameBytes(root) {
		phys.FrameBytes(root)[i] = 0
	}
	meta.MarkPageTable(root)
	return w, root
}

func TestMappagesWalkRoundTrip(t *testing.T) {
	w, root := newWalker(16)
	frame, ok := w.Phys.Kalloc()
	if !ok {
		t.Fatal("Kalloc failed")
	}
	if !w.Mappages(root, 0x1000, kconfig.PGSIZE, frame.ToPhysAddr(), R|W|U) {
		t.Fatal("Mappages failed")
	}
	ref, ok := w.Walk(root, 0x1000, false)
	if !ok {
		t.Fatal("Walk failed to find the installed mapping")
	}
	pte := ref.Load()
	if pte&V == 0 {
		t.Error("mapped PTE should be valid")
	}
	if pte.Frame() != frame {
		t.Errorf("Frame() = %d, want %d", pte.Frame(), frame)
	}
	if pte.Perm() != R|W|U {
		t.Errorf("Perm() = %v, want R|W|U", pte.Perm())
	}
}

func TestMappagesRemapPanics(t *testing.T) {
	w, root := newWalker(16)
	frame, _ := w.Phys.Kalloc()
	w.Mappages(root, 0x1000, kconfig.PGSIZE, frame.ToPhysAddr(), R|U)

	defer func() {
		if recover() == nil {
			t.Fatal("remapping an already-mapped page should panic")
		}
	}()
	w.Mappages(root, 0x1000, kconfig.PGSIZE, frame.ToPhysAddr(), R|U)
}

func TestMappagesMisalignedPanics(t *testing.T) {
	w, root := newWalker(16)
	frame, _ := w.Phys.Kalloc()
	defer func() {
		if recover() == nil {
			t.Fatal("misaligned va should panic")
		}
	}()
	w.Mappages(root, 0x1001, kconfig.PGSIZE, frame.ToPhysAddr(), R|U)
}

func TestWalkOutOfRangeVAPanics(t *testing.T) {
	w, root := newWalker(16)
	defer func() {
		if recover() == nil {
			t.Fatal("walk of an out-of-range va should panic")
		}
	}()
	w.Walk(root, kconfig.MAXVA, false)
}

func TestUvmunmapFreesAndZeroes(t *testing.T) {
	w, root := newWalker(16)
	frame, _ := w.Phys.Kalloc()
	w.Mappages(root, 0, kconfig.PGSIZE, frame.ToPhysAddr(), R|W|U)

	before := w.Phys.NumFree()
	w.Uvmunmap(root, 0, 1, true)
	if got := w.Phys.NumFree(); got != before+1 {
		t.Errorf("NumFree() after unmap = %d, want %d", got, before+1)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("unmapping an already-unmapped page should panic")
		}
	}()
	w.Uvmunmap(root, 0, 1, true)
}

func TestUvmunmapSwappedFreesSlot(t *testing.T) {
	w, root := newWalker(16)
	frame, _ := w.Phys.Kalloc()
	w.Mappages(root, 0, kconfig.PGSIZE, frame.ToPhysAddr(), R|W|U)

	ref, _ := w.Walk(root, 0, false)
	slot := w.Swap.Alloc()
	ref.Store(MakeSwapped(slot, R|W|U))

	w.Uvmunmap(root, 0, 1, true)
	if w.Swap.IsAllocated(slot) {
		t.Error("unmapping a swapped-out page with doFree should free its slot")
	}
}

func TestFreewalkOnLeafPanics(t *testing.T) {
	w, root := newWalker(16)
	frame, _ := w.Phys.Kalloc()
	w.Mappages(root, 0, kconfig.PGSIZE, frame.ToPhysAddr(), R|U)

	defer func() {
		if recover() == nil {
			t.Fatal("freewalk encountering a leaf should panic")
		}
	}()
	w.Freewalk(root)
}

func TestMakeResidentMakeSwappedRoundTrip(t *testing.T) {
	p1 := MakeResident(mem.Frame(42), R|W|V)
	if p1.Frame() != 42 {
		t.Errorf("Frame() = %d, want 42", p1.Frame())
	}
	p2 := MakeSwapped(17, R|W|U)
	if p2.Slot() != 17 {
		t.Errorf("Slot() = %d, want 17", p2.Slot())
	}
	if p2&V != 0 {
		t.Error("a swapped PTE must not be valid")
	}
	if p2.Perm() != R|W|U {
		t.Errorf("Perm() = %v, want R|W|U", p2.Perm())
	}
}
