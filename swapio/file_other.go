//go:build !unix

package swapio

import (
	"errors"
	"os"
)

// FileDevice is unavailable on non-unix platforms; OpenFileDevice always
// fails so callers fall back to NewMemDevice.
type FileDevice struct{}

// OpenFileDevice always returns an error on this platform.
func OpenFileDevice(path string, baseOffset int64, capacity int) (*FileDevice, error) {
	_ = os.Args
	return nil, errors.New("swapio: file-backed swap device not supported on this platform")
}

// Capacity is unused; FileDevice cannot be constructed on this platform.
func (d *FileDevice) Capacity() int { return 0 }

// ReadSlot is unused; FileDevice cannot be constructed on this platform.
func (d *FileDevice) ReadSlot(slot int, dst []byte) {}

// WriteSlot is unused; FileDevice cannot be constructed on this platform.
func (d *FileDevice) WriteSlot(slot int, src []byte) {}

// Close is unused; FileDevice cannot be constructed on this platform.
func (d *FileDevice) Close() error { return nil }
