// Package pagemeta implements the per-physical-page metadata table and
// its circular doubly linked LRU list, indexed directly by frame number
// so no list node is ever heap-allocated separately — every frame is
// addressable in O(1) from its PTE.
package pagemeta

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/lmatarodo/swapvm/kconfig"
	"github.com/lmatarodo/swapvm/mem"
)

// Root identifies an address space by the physical frame of its
// top-level page table.
type Root mem.Frame

// Entry is one physical frame's metadata. prev/next are only meaningful
// while InLRU is set.
type Entry struct {
	IsPageTable bool
	InLRU       bool
	PageTable   Root
	VAddr       uintptr
	prev, next  mem.Frame
}

// Table is the process-wide, fixed-size metadata array plus LRU list.
// It is guarded by two mutexes acquired in the order metadata -> LRU and
// released in reverse; callers that already hold both (the clock's
// victim scan) use the *Locked variants directly.
type Table struct {
	muMeta sync.Mutex
	muLRU  sync.Mutex

	entries []Entry
	head    mem.Frame // least-recently-installed/reset
	tail    mem.Frame // most recently touched
	count   int
}

// NewTable allocates metadata for nframes physical frames, all initially
// unlinked and not page-table frames.
func NewTable(nframes int) *Table {
	t := &Table{
		entries: make([]Entry, nframes),
		head:    mem.NoFrame,
		tail:    mem.NoFrame,
	}
	for i := range t.entries {
		t.entries[i].prev = mem.NoFrame
		t.entries[i].next = mem.NoFrame
	}
	return t
}

func (t *Table) inRange(f mem.Frame) bool {
	return f >= 0 && int(f) < len(t.entries)
}

// MarkPageTable flags f as holding an intermediate page-table node. It
// is mutually exclusive with InLRU; the caller is responsible for having
// already removed f from the LRU list if it was ever mapped as a leaf.
func (t *Table) MarkPageTable(f mem.Frame) {
	t.muMeta.Lock()
	defer t.muMeta.Unlock()
	if !t.inRange(f) {
		return
	}
	t.entries[f].IsPageTable = true
}

// Clear zeroes a frame's metadata entirely: unlinks it from the LRU list
// if linked, clears IsPageTable, PageTable and VAddr. Used after a
// successful eviction and when a page-table frame is freed.
func (t *Table) Clear(f mem.Frame) {
	t.muMeta.Lock()
	t.muLRU.Lock()
	if t.inRange(f) {
		if t.entries[f].InLRU {
			t.unlinkLocked(f)
			t.count--
		}
		t.entries[f] = Entry{prev: mem.NoFrame, next: mem.NoFrame}
	}
	t.muLRU.Unlock()
	t.muMeta.Unlock()
}

// IsPageTable reports whether f currently holds an intermediate
// page-table node.
func (t *Table) IsPageTable(f mem.Frame) bool {
	t.muMeta.Lock()
	defer t.muMeta.Unlock()
	if !t.inRange(f) {
		return false
	}
	return t.entries[f].IsPageTable
}

// AddLRU idempotently relocates f to the LRU tail, recording the leaf
// mapping (root, vaddr) that justifies its presence there. If f was
// already linked it is unlinked first without perturbing the population
// count; the count only grows on a fresh insertion. Preconditions: f in
// range, vaddr < MAXVA, f not a page-table frame; a violated
// precondition makes this a silent no-op rather than a fatal error, to
// tolerate races with the eviction path's metadata clearing.
func (t *Table) AddLRU(f mem.Frame, root Root, vaddr uintptr) {
	t.muMeta.Lock()
	t.muLRU.Lock()
	defer t.muLRU.Unlock()
	defer t.muMeta.Unlock()
	t.addLRULocked(f, root, vaddr)
}

func (t *Table) addLRULocked(f mem.Frame, root Root, vaddr uintptr) {
	if !t.inRange(f) || vaddr >= kconfig.MAXVA {
		return
	}
	e := &t.entries[f]
	if e.IsPageTable {
		return
	}
	fresh := !e.InLRU
	if e.InLRU {
		t.unlinkLocked(f)
	}
	e.InLRU = true
	e.PageTable = root
	e.VAddr = vaddr
	t.linkTailLocked(f)
	if fresh {
		t.count++
	}
}

// RemoveLRU unlinks f from the LRU list if linked, clearing InLRU,
// VAddr and the list links, and decrementing the population count.
func (t *Table) RemoveLRU(f mem.Frame) {
	t.muMeta.Lock()
	t.muLRU.Lock()
	defer t.muLRU.Unlock()
	defer t.muMeta.Unlock()
	t.removeLRULocked(f)
}

func (t *Table) removeLRULocked(f mem.Frame) {
	if !t.inRange(f) {
		return
	}
	e := &t.entries[f]
	if !e.InLRU {
		return
	}
	t.unlinkLocked(f)
	e.InLRU = false
	e.VAddr = 0
	e.PageTable = 0
	t.count--
}

// unlinkLocked removes f from the doubly linked list without touching
// InLRU/VAddr/PageTable; callers update accounting themselves. Both
// locks must already be held.
func (t *Table) unlinkLocked(f mem.Frame) {
	e := &t.entries[f]
	p, n := e.prev, e.next
	if p != mem.NoFrame {
		t.entries[p].next = n
	} else if t.head == f {
		t.head = n
	}
	if n != mem.NoFrame {
		t.entries[n].prev = p
	} else if t.tail == f {
		t.tail = p
	}
	e.prev, e.next = mem.NoFrame, mem.NoFrame
}

// linkTailLocked appends f to the tail of the list. Both locks must
// already be held and f must not currently be linked.
func (t *Table) linkTailLocked(f mem.Frame) {
	e := &t.entries[f]
	e.prev = t.tail
	e.next = mem.NoFrame
	if t.tail != mem.NoFrame {
		t.entries[t.tail].next = f
	} else {
		t.head = f
	}
	t.tail = f
}

// LockAll acquires both the metadata and LRU locks, in order, for a
// caller (the Clock's victim scan) that must hold them across multiple
// operations. UnlockAll releases them in reverse order.
func (t *Table) LockAll() {
	t.muMeta.Lock()
	t.muLRU.Lock()
}

// UnlockAll releases the locks acquired by LockAll.
func (t *Table) UnlockAll() {
	t.muLRU.Unlock()
	t.muMeta.Unlock()
}

// AddLRULocked is the non-locking variant of AddLRU for callers that
// already hold both locks (the clock's "move to tail" rotation).
func (t *Table) AddLRULocked(f mem.Frame, root Root, vaddr uintptr) {
	t.addLRULocked(f, root, vaddr)
}

// RemoveLRULocked is the non-locking variant of RemoveLRU.
func (t *Table) RemoveLRULocked(f mem.Frame) {
	t.removeLRULocked(f)
}

// Head returns the LRU list head (least-recently-installed/reset page),
// or mem.NoFrame if the list is empty. Caller must hold at least the
// LRU lock (LockAll satisfies this).
func (t *Table) Head() mem.Frame {
	return t.head
}

// NextLocked returns the frame following f in the LRU list, wrapping to
// Head when f is the tail, treating the list as circular. Caller must
// hold the locks acquired via LockAll.
func (t *Table) NextLocked(f mem.Frame) mem.Frame {
	n := t.entries[f].next
	if n == mem.NoFrame {
		return t.head
	}
	return n
}

// EntryLocked returns a copy of f's metadata entry. Caller must hold the
// locks acquired via LockAll.
func (t *Table) EntryLocked(f mem.Frame) Entry {
	return t.entries[f]
}

// CountLocked returns the LRU population count for a caller that already
// holds the locks acquired via LockAll (the clock's victim scan, which
// needs a stable iteration bound without re-entering Count's own
// locking).
func (t *Table) CountLocked() int {
	return t.count
}

// Snapshot returns a copy of f's metadata entry, taking both locks for
// the duration of the read. Used by the evictor to read a victim's
// (pagetable, vaddr) pair after the clock's scan has released the
// locks.
func (t *Table) Snapshot(f mem.Frame) Entry {
	t.muMeta.Lock()
	t.muLRU.Lock()
	defer t.muLRU.Unlock()
	defer t.muMeta.Unlock()
	if !t.inRange(f) {
		return Entry{prev: mem.NoFrame, next: mem.NoFrame}
	}
	return t.entries[f]
}

// Count returns the LRU population count.
func (t *Table) Count() int {
	t.muMeta.Lock()
	t.muLRU.Lock()
	defer t.muLRU.Unlock()
	defer t.muMeta.Unlock()
	return t.count
}

// Walk invokes fn for every frame currently linked in the LRU list, head
// to tail. Used by diagnostics that cross-check list length against the
// population count. It takes its own locks.
func (t *Table) Walk(fn func(f mem.Frame, e Entry)) {
	t.LockAll()
	defer t.UnlockAll()
	for f := t.head; f != mem.NoFrame; f = t.entries[f].next {
		fn(f, t.entries[f])
	}
}

// AuditLRU walks the list once, collecting every linked frame, and
// checks that its length matches the population count and that no frame
// appears twice (a corrupted prev/next pair would otherwise manifest as
// a silent infinite loop or a dangling reference elsewhere). It returns
// a descriptive error on the first inconsistency found, or nil if the
// list is well-formed.
func (t *Table) AuditLRU() error {
	var frames []mem.Frame
	t.Walk(func(f mem.Frame, _ Entry) {
		frames = append(frames, f)
	})

	t.muMeta.Lock()
	t.muLRU.Lock()
	count := t.count
	t.muLRU.Unlock()
	t.muMeta.Unlock()

	if len(frames) != count {
		return fmt.Errorf("pagemeta: audit: list length %d does not match population count %d", len(frames), count)
	}

	sorted := slices.Clone(frames)
	slices.Sort(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return fmt.Errorf("pagemeta: audit: frame %d appears twice in the LRU list", sorted[i])
		}
	}
	return nil
}
