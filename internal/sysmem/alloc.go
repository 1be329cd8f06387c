package sysmem

import (
	"fmt"
	"sync"
)

// Chunk is a contiguous byte region. Free must be called exactly once; the
// slice must not be touched afterwards.
type Chunk struct {
	Data []byte

	once sync.Once
	free func() error
	err  error
}

// NewChunk wraps data with a release function (nil means nothing to do).
func NewChunk(data []byte, free func() error) *Chunk {
	return &Chunk{Data: data, free: free}
}

// Len returns the chunk size in bytes.
func (c *Chunk) Len() int {
	return len(c.Data)
}

// Free releases the backing memory. Repeated calls return the first result.
func (c *Chunk) Free() error {
	c.once.Do(func() {
		if c.free != nil {
			c.err = c.free()
		}
		c.Data = nil
	})
	return c.err
}

// Allocator hands out chunks. Implementations return an error wrapping
// ErrOutOfMemory when the request cannot be satisfied.
type Allocator interface {
	Alloc(size int) (*Chunk, error)
}

// HeapAllocator allocates from the Go heap. Because the Go runtime aborts
// rather than failing an oversized make, it first asks Available whether
// size bytes can be had while keeping Headroom bytes free.
type HeapAllocator struct {
	Available func() (uint64, error)
	Headroom  uint64
}

// Alloc implements Allocator.
func (h HeapAllocator) Alloc(size int) (*Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid chunk size %d", ErrOutOfMemory, size)
	}

	if h.Available != nil {
		avail, err := h.Available()
		if err == nil && avail < uint64(size)+h.Headroom {
			return nil, fmt.Errorf("%w: %d bytes requested, %d available", ErrOutOfMemory, size, avail)
		}
	}

	return NewChunk(make([]byte, size), nil), nil
}
