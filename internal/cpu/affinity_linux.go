//go:build linux

package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCore pins the current OS thread to a specific CPU core.
// Must be called after runtime.LockOSThread().
//
// cpuID wraps around the number of logical CPUs so stress workers beyond
// the core count share cores round-robin.
func pinToCore(cpuID int) (int, error) {
	cpuID = wrap(cpuID)

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpuID)

	if err := unix.SchedSetaffinity(0, &mask); err != nil { // 0 = current thread
		return 0, err
	}
	return cpuID, nil
}

// Pin locks the calling goroutine to its OS thread and binds that thread
// to core workerID mod NumCPU. The returned function undoes the lock; the
// thread keeps its affinity and is discarded by the runtime when the
// goroutine exits while still locked, so callers should defer the release
// only if they intend to keep running on the goroutine afterwards.
func Pin(workerID int) (release func(), err error) {
	runtime.LockOSThread()
	if _, err = pinToCore(workerID); err != nil {
		return runtime.UnlockOSThread, err
	}
	return runtime.UnlockOSThread, nil
}
