package addrspace

import (
	"bytes"
	"testing"

	"github.com/lmatarodo/swapvm/kconfig"
	"github.com/lmatarodo/swapvm/kerrno"
	"github.com/lmatarodo/swapvm/mem"
	"github.com/lmatarodo/swapvm/pagemeta"
	"github.com/lmatarodo/swapvm/pagetable"
	"github.com/lmatarodo/swapvm/swapio"
	"github.com/lmatarodo/swapvm/swapslot"
	"github.com/lmatarodo/swapvm/swapstats"
)

func newSpace(t *testing.T, nframes, nslots int) *AddressSpace {
	t.Helper()
	phys := mem.NewPhysmem(nframes)
	meta := pagemeta.NewTable(nframes)
	swap := swapslot.NewAllocator(nslots)
	dev := swapio.NewMemDevice(nslots)
	io := swapio.NewSwapIO(phys, dev)
	w := pagetable.NewWalker(phys, meta, swap)

	as, ok := Create(phys, meta, w, swap, io, &swapstats.Stats{})
	if !ok {
		t.Fatal("Create failed")
	}
	return as
}

func TestAllocGrowsAndCopyRoundTrips(t *testing.T) {
	as := newSpace(t, 16, 16)
	sz, ok := as.Alloc(0, 3*kconfig.PGSIZE, 0)
	if !ok {
		t.Fatal("Alloc failed")
	}
	if sz != 3*kconfig.PGSIZE {
		t.Fatalf("Alloc returned size %d, want %d", sz, 3*kconfig.PGSIZE)
	}

	msg := []byte("hello, address space")
	if err := as.CopyOut(kconfig.PGSIZE, msg); err != 0 {
		t.Fatalf("CopyOut: %v", err)
	}
	got := make([]byte, len(msg))
	if err := as.CopyIn(got, kconfig.PGSIZE); err != 0 {
		t.Fatalf("CopyIn: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("CopyIn = %q, want %q", got, msg)
	}
}

func TestAllocNoOpWhenNotGrowing(t *testing.T) {
	as := newSpace(t, 16, 16)
	sz, ok := as.Alloc(0, 2*kconfig.PGSIZE, 0)
	if !ok {
		t.Fatal("Alloc failed")
	}
	sz2, ok := as.Alloc(sz, sz-1, 0)
	if !ok || sz2 != sz {
		t.Fatalf("Alloc(oldsz, newsz<=oldsz) = (%d, %v), want (%d, true)", sz2, ok, sz)
	}
}

func TestDeallocUnmapsAboveNewsz(t *testing.T) {
	as := newSpace(t, 16, 16)
	sz, _ := as.Alloc(0, 3*kconfig.PGSIZE, 0)
	freeBefore := as.Phys.NumFree()
	as.Dealloc(sz, kconfig.PGSIZE)
	if got := as.Phys.NumFree(); got != freeBefore+2 {
		t.Errorf("NumFree() after dealloc = %d, want %d", got, freeBefore+2)
	}
	if _, err := as.WalkAddr(2 * kconfig.PGSIZE); err != kerrno.EFAULT {
		t.Errorf("WalkAddr on a deallocated page = %v, want EFAULT", err)
	}
}

func TestClearMakesGuardPage(t *testing.T) {
	as := newSpace(t, 16, 16)
	as.Alloc(0, kconfig.PGSIZE, 0)
	as.Clear(0)
	if _, err := as.WalkAddr(0); err != kerrno.EFAULT {
		t.Errorf("WalkAddr on a guard page = %v, want EFAULT", err)
	}
}

func TestWalkAddrResolvesSwappedPage(t *testing.T) {
	as := newSpace(t, 16, 16)
	as.Alloc(0, kconfig.PGSIZE, 0)

	ref, ok := as.Walker.Walk(as.Root, 0, false)
	if !ok {
		t.Fatal("walk failed")
	}
	frame := ref.Load().Frame()
	slot := as.Swap.Alloc()
	as.IO.Write(frame, slot)
	as.Meta.RemoveLRU(frame)
	as.Phys.Kfree(frame)
	ref.Store(pagetable.MakeSwapped(slot, pagetable.R|pagetable.W|pagetable.U))

	pa, err := as.WalkAddr(0)
	if err != 0 {
		t.Fatalf("WalkAddr: %v", err)
	}
	if pa == 0 {
		t.Error("WalkAddr should return a non-zero physical address after swap-in")
	}
}

func TestCopyInStrStopsAtNUL(t *testing.T) {
	as := newSpace(t, 16, 16)
	as.Alloc(0, kconfig.PGSIZE, 0)
	as.CopyOut(0, []byte("hi\x00garbage"))

	dst := make([]byte, 16)
	if err := as.CopyInStr(dst, 0, 16); err != 0 {
		t.Fatalf("CopyInStr: %v", err)
	}
	if string(dst[:3]) != "hi\x00" {
		t.Fatalf("CopyInStr = %q, want %q", dst[:3], "hi\x00")
	}
}

func TestCopyInStrENAMETOOLONG(t *testing.T) {
	as := newSpace(t, 16, 16)
	as.Alloc(0, kconfig.PGSIZE, 0)
	blob := bytes.Repeat([]byte{'x'}, kconfig.PGSIZE)
	as.CopyOut(0, blob)

	dst := make([]byte, 8)
	if err := as.CopyInStr(dst, 0, 8); err != kerrno.ENAMETOOLONG {
		t.Errorf("CopyInStr with no NUL in range = %v, want ENAMETOOLONG", err)
	}
}

func TestForkCopiesResidentAndSwappedPages(t *testing.T) {
	parent := newSpace(t, 16, 16)
	sz, _ := parent.Alloc(0, 2*kconfig.PGSIZE, 0)
	parent.CopyOut(0, []byte("resident page"))

	// Swap out the second page.
	ref, _ := parent.Walker.Walk(parent.Root, kconfig.PGSIZE, false)
	frame := ref.Load().Frame()
	page := parent.Phys.FrameBytes(frame)
	copy(page, []byte("swapped page"))
	slot := parent.Swap.Alloc()
	parent.IO.Write(frame, slot)
	parent.Meta.RemoveLRU(frame)
	parent.Phys.Kfree(frame)
	ref.Store(pagetable.MakeSwapped(slot, pagetable.R|pagetable.W|pagetable.U))

	child := newSpace(t, 16, 16)
	if !parent.Fork(child, sz) {
		t.Fatal("Fork failed")
	}

	got := make([]byte, 13)
	if err := child.CopyIn(got, 0); err != 0 {
		t.Fatalf("CopyIn (resident page) on child: %v", err)
	}
	if string(got) != "resident page" {
		t.Errorf("child resident page = %q, want %q", got, "resident page")
	}

	got2 := make([]byte, 12)
	if err := child.CopyIn(got2, kconfig.PGSIZE); err != 0 {
		t.Fatalf("CopyIn (formerly-swapped page) on child: %v", err)
	}
	if string(got2) != "swapped page" {
		t.Errorf("child formerly-swapped page = %q, want %q", got2, "swapped page")
	}

	// The parent's own slot must remain untouched by the fork.
	if !parent.Swap.IsAllocated(slot) {
		t.Error("Fork must not free the parent's swap slot")
	}
}
