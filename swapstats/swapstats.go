// Package swapstats accumulates the swap subsystem's lifetime counters
// and renders them for a console diagnostic, via reflection so a new
// counter field needs no change to the formatting code.
package swapstats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/lmatarodo/swapvm/kernlog"
)

// Counter is an atomically updated named counter.
type Counter int64

// Inc increments the counter by one.
func (c *Counter) Inc() {
	atomic.AddInt64((*int64)(c), 1)
}

// Load returns the counter's current value.
func (c *Counter) Load() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// Stats accumulates the swap subsystem's lifetime counters, incremented
// from independent call sites (the evictor, the fault handler, swap-in
// resolution) that never coordinate with each other directly. Each
// Counter is a plain atomic, so those concurrent increments never race
// and a diagnostic read never needs a lock of its own.
type Stats struct {
	PagesEvicted   Counter
	PagesSwappedIn Counter
	SlotsAllocated Counter
	SlotsFreed     Counter
}

// String renders every Counter field using reflection, so adding a new
// counter field never requires touching the formatting code.
func (s *Stats) String() string {
	v := reflect.ValueOf(s).Elem()
	var b strings.Builder
	b.WriteString("swap stats:")
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Type().String() != "swapstats.Counter" {
			continue
		}
		c := f.Addr().Interface().(*Counter)
		b.WriteString("\n\t")
		b.WriteString(v.Type().Field(i).Name)
		b.WriteString(": ")
		b.WriteString(strconv.FormatInt(c.Load(), 10))
	}
	return b.String()
}

// PrintSwapStats writes s to the kernel console.
func PrintSwapStats(s *Stats) {
	kernlog.Printf("%s\n", s.String())
}
