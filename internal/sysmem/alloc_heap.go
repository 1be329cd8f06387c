//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package sysmem

// NewAllocator returns the platform's preferred allocator.
func NewAllocator() Allocator {
	return HeapAllocator{Available: AvailableBytes, Headroom: 256 * MiB}
}
