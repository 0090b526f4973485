// Command swapvmctl boots a small synthetic instance of the paging
// subsystem and drives a swap loop: allocate a run of user pages, touch
// them repeatedly under deliberately scarce physical memory to force
// eviction and swap-in, then print the resulting swap statistics. It
// exists purely as a runnable demonstration of the package wiring.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lmatarodo/swapvm/kconfig"
	"github.com/lmatarodo/swapvm/swapio"
	"github.com/lmatarodo/swapvm/swapstats"
	"github.com/lmatarodo/swapvm/vmsystem"
)

func main() {
	const npages = 128

	swapfile := flag.String("swapfile", "", "back the swap device with this file instead of an in-memory device")
	flag.Parse()

	cfg := kconfig.Config{
		NFrames:           32, // deliberately fewer frames than pages, to force eviction
		SwapSlots:         256,
		KernFrames:        4,
		MaxInFlightSwapIO: 4, // exercise swapio.Bounded's queue-depth limit
	}

	var dev swapio.Device
	if *swapfile != "" {
		fd, err := swapio.OpenFileDevice(*swapfile, 0, cfg.SwapSlots)
		if err != nil {
			fmt.Fprintf(os.Stderr, "swapvmctl: %v\n", err)
			os.Exit(1)
		}
		defer fd.Close()
		dev = fd
	} else {
		dev = swapio.NewMemDevice(cfg.SwapSlots)
	}
	sys := vmsystem.Boot(cfg, dev)

	as, ok := sys.NewAddressSpace()
	if !ok {
		panic("swapvmctl: could not create address space")
	}
	if _, ok := as.Alloc(0, npages*kconfig.PGSIZE, 0); !ok {
		panic("swapvmctl: could not allocate pages")
	}

	for i := 0; i < npages; i++ {
		va := uintptr(i * kconfig.PGSIZE)
		if err := as.CopyOut(va, []byte{byte(i)}); err != 0 {
			panic(fmt.Sprintf("swapvmctl: copyout page %d: %v", i, err))
		}
	}

	for pass := 0; pass < 10; pass++ {
		for i := 0; i < npages; i++ {
			va := uintptr(i * kconfig.PGSIZE)
			var got [1]byte
			if err := as.CopyIn(got[:], va); err != 0 {
				panic(fmt.Sprintf("swapvmctl: copyin page %d: %v", i, err))
			}
			if got[0] != byte(i) {
				panic(fmt.Sprintf("swapvmctl: page %d corrupted: got %d", i, got[0]))
			}
		}
	}

	if err := sys.Meta.AuditLRU(); err != nil {
		panic(fmt.Sprintf("swapvmctl: %v", err))
	}

	fmt.Println("swaploop: ok")
	swapstats.PrintSwapStats(sys.Stats)
}
