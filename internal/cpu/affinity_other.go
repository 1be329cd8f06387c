//go:build !linux && !darwin && !windows

package cpu

import "runtime"

// Pin locks the goroutine to an OS thread; affinity is not set on this
// platform.
func Pin(workerID int) (release func(), err error) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread, nil
}
