// Package mem implements a physical frame allocator: a free-list of
// fixed-size frames backed by a contiguous byte slab, where every frame
// is either free, a page-table node, or a resident leaf tracked on the
// LRU list.
package mem

import (
	"sync"

	"github.com/lmatarodo/swapvm/kconfig"
)

// Frame is a physical frame number (physical address / PGSIZE).
type Frame int32

// NoFrame is the sentinel for "no frame".
const NoFrame Frame = -1

// PhysAddr is a physical address.
type PhysAddr uint64

// kallocSentinel and kfreeSentinel poison newly allocated and freed
// frame content respectively, with distinct junk bytes, so stale reads
// through a dangling reference are easy to spot during debugging.
const (
	kallocSentinel byte = 0xa5
	kfreeSentinel  byte = 0x5a
)

// ToPhysAddr returns the physical address of the first byte of frame f.
func (f Frame) ToPhysAddr() PhysAddr {
	return PhysAddr(f) << kconfig.PGSHIFT
}

// FrameOf returns the frame number containing physical address pa.
func FrameOf(pa PhysAddr) Frame {
	return Frame(pa >> kconfig.PGSHIFT)
}

// Physmem owns the physical frame pool: a byte slab standing in for RAM
// and a free-list stack over frame numbers. A single mutex protects the
// free-list.
type Physmem struct {
	mu       sync.Mutex
	slab     []byte
	free     []Frame
	nframes  int
	kernBase Frame // frames below this are reserved (kernel image): excluded from the free-list and rejected by Kfree

	// evictHook is invoked with the free-list lock released when Kalloc
	// finds the free-list empty. Set via SetEvictHook; a late-bound
	// callback avoids an import cycle between mem and the evictor
	// (which itself calls back into mem.Kalloc/Kfree).
	evictHook func() bool
}

// NewPhysmem allocates a physical memory pool of nframes frames, all
// initially free.
func NewPhysmem(nframes int) *Physmem {
	return NewPhysmemFrom(0, nframes)
}

// NewPhysmemFrom allocates a physical memory pool of nframes frames,
// reserving the low kernBase of them for the kernel image: those frames
// never enter the free-list and Kfree panics if asked to free one.
func NewPhysmemFrom(kernBase, nframes int) *Physmem {
	if kernBase < 0 || kernBase > nframes {
		panic("mem: newphysmemfrom: kernBase out of range")
	}
	p := &Physmem{
		slab:     make([]byte, nframes*kconfig.PGSIZE),
		free:     make([]Frame, 0, nframes-kernBase),
		nframes:  nframes,
		kernBase: Frame(kernBase),
	}
	for i := nframes - 1; i >= kernBase; i-- {
		f := Frame(i)
		p.poison(f, kfreeSentinel)
		p.free = append(p.free, f)
	}
	return p
}

// SetEvictHook installs the callback Kalloc invokes when the free-list is
// empty. evict.Evictor.EvictPage is wired in here at startup.
func (p *Physmem) SetEvictHook(f func() bool) {
	p.evictHook = f
}

// NFrames returns the number of frames under management.
func (p *Physmem) NFrames() int {
	return p.nframes
}

func (p *Physmem) poison(f Frame, b byte) {
	pg := p.FrameBytes(f)
	for i := range pg {
		pg[i] = b
	}
}

// FrameBytes returns the page-sized byte slice backing frame f. The
// caller must not retain it past the frame's lifetime.
func (p *Physmem) FrameBytes(f Frame) []byte {
	off := int(f) * kconfig.PGSIZE
	return p.slab[off : off+kconfig.PGSIZE]
}

// Kalloc pops the free-list head. If the list is empty it calls the
// evict hook (with the free-list lock released) and retries exactly
// once; it returns (NoFrame, false) only if eviction also fails to free
// a frame. The returned frame's content is filled with a sentinel
// pattern for debugging; permissions are the caller's responsibility.
func (p *Physmem) Kalloc() (Frame, bool) {
	f, ok := p.tryPop()
	if ok {
		p.poison(f, kallocSentinel)
		return f, true
	}
	if p.evictHook == nil || !p.evictHook() {
		return NoFrame, false
	}
	f, ok = p.tryPop()
	if !ok {
		return NoFrame, false
	}
	p.poison(f, kallocSentinel)
	return f, true
}

func (p *Physmem) tryPop() (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return NoFrame, false
	}
	f := p.free[n-1]
	p.free = p.free[:n-1]
	return f, true
}

// Kfree validates f and returns it to the free-list head, poisoning its
// content with a sentinel distinct from the alloc sentinel. It panics on
// an out-of-range frame or one inside the reserved kernel-image region.
func (p *Physmem) Kfree(f Frame) {
	if f < p.kernBase || int(f) >= p.nframes {
		panic("mem: kfree: frame out of range")
	}
	p.poison(f, kfreeSentinel)
	p.mu.Lock()
	p.free = append(p.free, f)
	p.mu.Unlock()
}

// NumFree returns the number of frames currently on the free-list, for
// diagnostics and tests.
func (p *Physmem) NumFree() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
