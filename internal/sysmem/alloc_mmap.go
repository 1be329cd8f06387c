//go:build linux || darwin || freebsd || netbsd || openbsd

package sysmem

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// MmapAllocator maps anonymous private memory outside the Go heap. A failed
// mapping is an ordinary error, and Free unmaps so the pages go straight
// back to the OS without waiting for the collector.
type MmapAllocator struct{}

// Alloc implements Allocator.
func (MmapAllocator) Alloc(size int) (*Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid chunk size %d", ErrOutOfMemory, size)
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		if errors.Is(err, unix.ENOMEM) || errors.Is(err, unix.EAGAIN) {
			return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrOutOfMemory, size, err)
		}
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}

	return NewChunk(data, func() error { return unix.Munmap(data) }), nil
}

// NewAllocator returns the platform's preferred allocator.
func NewAllocator() Allocator {
	return MmapAllocator{}
}
