package swapslot

import "testing"

func TestAllocFreeRoundTrip(t *testing.T) {
	a := NewAllocator(4)
	var slots []int
	for i := 0; i < 4; i++ {
		slots = append(slots, a.Alloc())
	}
	if got := a.NumAllocated(); got != 4 {
		t.Fatalf("NumAllocated() = %d, want 4", got)
	}
	for _, s := range slots {
		if !a.IsAllocated(s) {
			t.Errorf("slot %d should be allocated", s)
		}
	}
	for _, s := range slots {
		a.Free(s)
	}
	if got := a.NumAllocated(); got != 0 {
		t.Fatalf("NumAllocated() after freeing all = %d, want 0", got)
	}
}

func TestAllocExhaustionPanics(t *testing.T) {
	a := NewAllocator(1)
	a.Alloc()
	defer func() {
		if recover() == nil {
			t.Fatal("Alloc on an exhausted allocator should panic")
		}
	}()
	a.Alloc()
}

func TestTryAllocExhaustionReturnsFalse(t *testing.T) {
	a := NewAllocator(1)
	if _, ok := a.TryAlloc(); !ok {
		t.Fatal("first TryAlloc should succeed")
	}
	if _, ok := a.TryAlloc(); ok {
		t.Fatal("TryAlloc on an exhausted allocator should return false, not panic")
	}
}

func TestFreeDoubleFreePanics(t *testing.T) {
	a := NewAllocator(2)
	s := a.Alloc()
	a.Free(s)
	defer func() {
		if recover() == nil {
			t.Fatal("double Free should panic")
		}
	}()
	a.Free(s)
}

func TestFreeOutOfRangePanics(t *testing.T) {
	a := NewAllocator(2)
	defer func() {
		if recover() == nil {
			t.Fatal("Free out of range should panic")
		}
	}()
	a.Free(99)
}

func TestIsAllocatedOutOfRangeIsFalse(t *testing.T) {
	a := NewAllocator(2)
	if a.IsAllocated(99) {
		t.Error("out-of-range slot should report not allocated")
	}
}
