// Package pagefault implements the page-fault entry point: on a load or
// store fault from user mode, it walks without allocating, and if the
// PTE is swap-encoded it performs the swap-in; any other fault is the
// caller's signal to kill the faulting process.
package pagefault

import (
	"github.com/lmatarodo/swapvm/kerrno"
	"github.com/lmatarodo/swapvm/mem"
	"github.com/lmatarodo/swapvm/pagemeta"
	"github.com/lmatarodo/swapvm/pagetable"
	"github.com/lmatarodo/swapvm/swapin"
	"github.com/lmatarodo/swapvm/swapio"
	"github.com/lmatarodo/swapvm/swapslot"
	"github.com/lmatarodo/swapvm/swapstats"
)

// Handler resolves swap-backed page faults.
type Handler struct {
	Meta   *pagemeta.Table
	Walker *pagetable.Walker
	Swap   *swapslot.Allocator
	IO     *swapio.SwapIO
	Stats  *swapstats.Stats
}

// New constructs a fault Handler from its collaborators.
func New(meta *pagemeta.Table, walker *pagetable.Walker, swap *swapslot.Allocator, io *swapio.SwapIO, stats *swapstats.Stats) *Handler {
	return &Handler{Meta: meta, Walker: walker, Swap: swap, IO: io, Stats: stats}
}

// HandleFault resolves a page fault. root is the faulting address
// space's page-table root frame; addr is the faulting virtual address.
// It returns kerrno 0 on a successfully resolved swap-in, or a non-zero
// Errno the caller should treat as "kill the faulting process" — this
// module has no process table to terminate, so callers (the scheduler,
// here simulated by tests) are responsible for acting on a non-zero
// return.
func (h *Handler) HandleFault(root mem.Frame, addr uintptr) kerrno.Errno {
	ref, ok := h.Walker.Walk(root, addr, false)
	if !ok {
		return kerrno.EFAULT
	}
	if ref.Load()&pagetable.SWAP == 0 {
		// Resident, or entirely empty/permission-denied: not a
		// swap-backed fault. Any other page fault kills the faulting
		// process.
		return kerrno.EFAULT
	}
	if !swapin.Resolve(h.Walker.Phys, h.Meta, h.Swap, h.IO, h.Stats, root, addr, ref) {
		return kerrno.ENOMEM
	}
	return 0
}
