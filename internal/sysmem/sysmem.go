// Package sysmem answers how much physical memory the host has and hands out
// large byte chunks whose allocation can fail gracefully instead of
// aborting the process.
package sysmem

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/shirou/gopsutil/v3/mem"
)

const MiB = 1 << 20

var (
	// ErrOutOfMemory reports that a chunk could not be obtained.
	ErrOutOfMemory = errors.New("sysmem: out of memory")
	// ErrUnknownTotal reports that the physical memory size is unavailable.
	ErrUnknownTotal = errors.New("sysmem: total physical memory unknown")
)

// TotalBytes returns the host's physical memory.
func TotalBytes() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err == nil && vm.Total > 0 {
		return vm.Total, nil
	}

	if total, ferr := fallbackTotal(); ferr == nil && total > 0 {
		return total, nil
	}

	if err == nil {
		err = ErrUnknownTotal
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownTotal, err)
}

// AvailableBytes returns memory the OS can hand out without swapping.
func AvailableBytes() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// Reclaim runs a forced collection and returns freed heap spans to the OS
// so RSS drops right after large buffers are dropped.
func Reclaim() {
	runtime.GC()
	debug.FreeOSMemory()
}
