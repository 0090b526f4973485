//go:build unix

// FileDevice is the production-shaped alternative to MemDevice: a
// real-file-backed swap region. golang.org/x/sys/unix is used purely to
// pick up O_DIRECT where the platform defines it, avoiding a page cache
// layer doubling the in-memory copy mem.Physmem's slab already keeps.
package swapio

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/lmatarodo/swapvm/kconfig"
)

// FileDevice stores swap slots in a regular file, one PGSIZE-sized
// region per slot starting at baseOffset.
type FileDevice struct {
	f          *os.File
	baseOffset int64
	capacity   int
}

// OpenFileDevice opens (creating if necessary) a file-backed swap device
// with room for capacity slots. It requests O_DIRECT first; if that open
// fails it retries once without O_DIRECT, and returns an error only if
// the plain open or sizing the file fails too.
func OpenFileDevice(path string, baseOffset int64, capacity int) (*FileDevice, error) {
	flags := os.O_RDWR | os.O_CREATE
	if directFlag() != 0 {
		flags |= directFlag()
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		// O_DIRECT is commonly rejected by tmpfs and some test
		// environments; retry without it before giving up.
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
		if err != nil {
			return nil, err
		}
	}
	need := baseOffset + int64(capacity)*int64(kconfig.PGSIZE)
	if err := f.Truncate(need); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDevice{f: f, baseOffset: baseOffset, capacity: capacity}, nil
}

func directFlag() int {
	return unix.O_DIRECT
}

// Capacity returns the number of slots.
func (d *FileDevice) Capacity() int {
	return d.capacity
}

func (d *FileDevice) offset(slot int) int64 {
	if slot < 0 || slot >= d.capacity {
		panic("swapio: filedevice: slot out of range")
	}
	return d.baseOffset + int64(slot)*int64(kconfig.PGSIZE)
}

// ReadSlot reads slot's page into dst.
func (d *FileDevice) ReadSlot(slot int, dst []byte) {
	if _, err := d.f.ReadAt(dst, d.offset(slot)); err != nil {
		panic("swapio: filedevice: read failed: " + err.Error())
	}
}

// WriteSlot writes src into slot's page.
func (d *FileDevice) WriteSlot(slot int, src []byte) {
	if _, err := d.f.WriteAt(src, d.offset(slot)); err != nil {
		panic("swapio: filedevice: write failed: " + err.Error())
	}
}

// Close releases the backing file descriptor.
func (d *FileDevice) Close() error {
	return d.f.Close()
}
