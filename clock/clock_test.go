package clock

import (
	"testing"

	"github.com/lmatarodo/swapvm/mem"
	"github.com/lmatarodo/swapvm/pagemeta"
	"github.com/lmatarodo/swapvm/pagetable"
	"github.com/lmatarodo/swapvm/swapslot"
)

func setup(t *testing.T, nframes int) (*Clock, *pagetable.Walker, mem.Frame) {
	t.Helper()
	phys := mem.NewPhysmem(nframes)
	meta := pagemeta.NewTable(nframes)
	swap := swapslot.NewAllocator(nframes)
	w := pagetable.NewWalker(phys, meta, swap)

	root, ok := phys.Kalloc()
	if !ok {
		t.Fatal("could not allocate root page table")
	}
	for i := range phys.FrameBytes(root) {
		phys.FrameBytes(root)[i] = 0
	}
	meta.MarkPageTable(root)
	return New(meta, w), w, root
}

func TestSelectVictimSkipsAccessedPagesOnceEachLap(t *testing.T) {
	c, w, root := setup(t, 8)

	for i := 0; i < 3; i++ {
		f, _ := w.Phys.Kalloc()
		w.Mappages(root, uintptr(i)*0x1000, 0x1000, f.ToPhysAddr(), pagetable.R|pagetable.W|pagetable.U)
	}

	// Mark every page accessed.
	for i := 0; i < 3; i++ {
		ref, _ := w.Walk(root, uintptr(i)*0x1000, false)
		ref.Store(ref.Load() | pagetable.A)
	}

	victim, ok := c.SelectVictim()
	if !ok {
		t.Fatal("SelectVictim found no victim in a non-empty list")
	}

	ref, _ := w.Walk(root, victimVA(w, root, victim), false)
	if ref.Load()&pagetable.A != 0 {
		t.Error("the Access bit of the returned victim should already be clear")
	}
}

func TestSelectVictimEmptyListReturnsFalse(t *testing.T) {
	c, _, _ := setup(t, 4)
	if _, ok := c.SelectVictim(); ok {
		t.Fatal("SelectVictim on an empty LRU list should return false")
	}
}

func TestSelectVictimPicksUnaccessedImmediately(t *testing.T) {
	c, w, root := setup(t, 8)

	f0, _ := w.Phys.Kalloc()
	w.Mappages(root, 0, 0x1000, f0.ToPhysAddr(), pagetable.R|pagetable.W|pagetable.U)
	f1, _ := w.Phys.Kalloc()
	w.Mappages(root, 0x1000, 0x1000, f1.ToPhysAddr(), pagetable.R|pagetable.W|pagetable.U)

	victim, ok := c.SelectVictim()
	if !ok {
		t.Fatal("expected a victim")
	}
	if victim != f0 && victim != f1 {
		t.Errorf("victim = %d, want one of the two mapped frames", victim)
	}
}

// victimVA recovers the virtual address a frame is mapped at, by probing
// the handful of addresses the tests map, since SelectVictim itself only
// returns the frame number.
func victimVA(w *pagetable.Walker, root mem.Frame, f mem.Frame) uintptr {
	for _, va := range []uintptr{0, 0x1000, 0x2000} {
		if ref, ok := w.Walk(root, va, false); ok {
			if ref.Load()&pagetable.V != 0 && ref.Load().Frame() == f {
				return va
			}
		}
	}
	return 0
}
