// Package clock implements a clock-hand replacement engine: a cursor
// walking the circular LRU list, approximating LRU via the PTE Access
// bit.
package clock

import (
	"github.com/lmatarodo/swapvm/kconfig"
	"github.com/lmatarodo/swapvm/mem"
	"github.com/lmatarodo/swapvm/pagemeta"
	"github.com/lmatarodo/swapvm/pagetable"
)

// Clock holds the persistent cursor into the LRU list, initialized to
// the list head on first use.
type Clock struct {
	Meta   *pagemeta.Table
	Walker *pagetable.Walker

	// DirectMapBase is the lowest virtual address considered part of
	// the kernel direct map; entries at or above it are never chosen
	// as victims. This module does not implement a direct map itself,
	// so it defaults to kconfig.MAXVA — every address the LRU list can
	// ever hold is already below MAXVA by construction
	// (pagemeta.Table.AddLRU rejects vaddr >= MAXVA), making this check
	// a documented no-op rather than a dead one.
	DirectMapBase uintptr

	cursor      mem.Frame
	initialized bool
}

// New constructs a Clock over the given metadata table and walker, with
// DirectMapBase defaulted to kconfig.MAXVA.
func New(meta *pagemeta.Table, walker *pagetable.Walker) *Clock {
	return &Clock{Meta: meta, Walker: walker, DirectMapBase: kconfig.MAXVA}
}

// SelectVictim holds the metadata and LRU locks for the entire scan,
// starting from the cursor. An entry is skipped
// (cursor advanced) if its PTE cannot be resolved, is not a valid
// resident user leaf, or lies in the kernel direct-map range. An entry
// whose Access bit is set has that bit cleared and is moved to the LRU
// tail, giving it another lap. The first entry examined with the Access
// bit already clear is the victim. If a full lap completes with no
// victim chosen by that rule, the entry the lap ends on is returned
// anyway, guaranteeing progress. It returns (mem.NoFrame, false) only if
// the LRU list is empty.
func (c *Clock) SelectVictim() (mem.Frame, bool) {
	c.Meta.LockAll()
	defer c.Meta.UnlockAll()

	if c.Meta.Head() == mem.NoFrame {
		return mem.NoFrame, false
	}
	if !c.initialized || !c.Meta.EntryLocked(c.cursor).InLRU {
		c.cursor = c.Meta.Head()
		c.initialized = true
	}

	n := c.Meta.CountLocked()
	cur := c.cursor
	for i := 0; i < n; i++ {
		e := c.Meta.EntryLocked(cur)
		next := c.Meta.NextLocked(cur)

		ref, ok := c.resolve(e)
		if !ok {
			cur = next
			continue
		}
		pte := ref.Load()
		if pte&pagetable.V == 0 || pte&pagetable.U == 0 || e.VAddr >= c.DirectMapBase {
			cur = next
			continue
		}
		if pte&pagetable.A != 0 {
			ref.Store(pte &^ pagetable.A)
			c.Meta.RemoveLRULocked(cur)
			c.Meta.AddLRULocked(cur, e.PageTable, e.VAddr)
			cur = next
			continue
		}

		c.cursor = next
		return cur, true
	}

	// Full lap with no victim chosen by the Access-bit rule: force
	// progress by evicting wherever the scan ended.
	c.cursor = c.Meta.NextLocked(cur)
	return cur, true
}

func (c *Clock) resolve(e pagemeta.Entry) (pagetable.Ref, bool) {
	return c.Walker.Walk(mem.Frame(e.PageTable), e.VAddr, false)
}
